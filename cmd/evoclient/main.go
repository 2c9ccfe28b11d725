// Package main provides the evoclient CLI application.
//
// evoclient is a client for a server-driven bacterial resistance evolution
// simulator. It starts and follows simulation runs over WebSocket, keeps
// sessions in durable local storage, and recovers interrupted sessions.
package main

import (
	"flag"
	"fmt"
	"os"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run() error {
	// Define global flags.
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")

	flag.Parse()

	if *showVersion {
		fmt.Printf("evoclient %s\n", version)
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]

	switch command {
	case "run":
		return runRunCommand(*configPath, args[1:])
	case "sessions":
		return runSessionsCommand(*configPath, args[1:])
	case "export":
		return runExportCommand(*configPath, args[1:])
	case "import":
		return runImportCommand(*configPath, args[1:])
	case "recover":
		return runRecoverCommand(*configPath, args[1:])
	case "checkpoint":
		return runCheckpointCommand(*configPath, args[1:])
	case "history":
		return runHistoryCommand(*configPath, args[1:])
	case "cleanup":
		return runCleanupCommand(*configPath, args[1:])
	case "config":
		return runConfigCommand(*configPath, args[1:])
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// showUsage displays usage information.
func showUsage() error {
	usage := `evoclient - bacterial resistance simulation client

Usage:
  evoclient [flags] <command> [command flags]

Commands:
  run         Start a simulation run and follow it live
  sessions    Session management (list, create, show, delete, current, use)
  export      Export a session (json, csv, xlsx)
  import      Import a session from a json export
  recover     Recovery of interrupted sessions (check, auto, one)
  checkpoint  Checkpoint management (create, list, restore)
  history     Show session history
  cleanup     Remove sessions older than the retention age
  config      Configuration management (show, path, init)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Run Command Flags:
  -session      Session id (default: current session)
  -name         Create a new session with this name first
  -population   Initial population size (default: 500)
  -generations  Number of generations (default: 50)
  -mutation     Mutation rate (default: 0.01)
  -antibiotic   Antibiotic concentration (default: 0.3)
  -url          Server URL override
  -resume       Resume the session's paused run instead of starting a new one

Sessions Command:
  evoclient sessions list [-status s] [-tag t] [-search q] [-sort field] [-desc] [-format f]
  evoclient sessions create <name> [-priority p] [-tags a,b]
  evoclient sessions show <id>
  evoclient sessions delete <id>
  evoclient sessions current
  evoclient sessions use <id>

Import Command:
  evoclient import <file> [-use]
  evoclient import -watch [-dir path]

Recover Command:
  evoclient recover check [-format f]
  evoclient recover auto [-format f]
  evoclient recover one <id> [-from-checkpoint] [-discard-runs] [-no-backup]

Checkpoint Command:
  evoclient checkpoint create <session-id>
  evoclient checkpoint list <session-id>
  evoclient checkpoint restore <session-id> <checkpoint-id>

Examples:
  # Start a run in a fresh session
  evoclient run -name overnight -generations 100

  # Follow a run in the current session with custom parameters
  evoclient run -population 1000 -antibiotic 0.5

  # List paused sessions
  evoclient sessions list -status paused

  # Export the current session as a spreadsheet
  evoclient export -format xlsx

  # Scan for interrupted sessions and recover the safe ones
  evoclient recover check
  evoclient recover auto

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
