package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evosim/evoclient/pkg/client"
	"github.com/evosim/evoclient/pkg/config"
	"github.com/evosim/evoclient/pkg/connection"
	"github.com/evosim/evoclient/pkg/display"
	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// app bundles the components every command needs.
type app struct {
	cfg   *config.Config
	log   logger.Logger
	store store.Store
}

// initApp loads configuration and opens the session store.
func initApp(configPath string) (*app, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	st, err := store.New(store.Config{
		DBPath:          cfg.Storage.DBPath,
		MaxStorageBytes: cfg.Session.MaxStorageBytes,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	return &app{cfg: cfg, log: log, store: st}, nil
}

// close releases the app's resources.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close session store", "error", err)
	}
}

// formatter builds a display formatter, defaulting to the configured format.
func (a *app) formatter(format string, compact bool) display.Formatter {
	if format == "" {
		format = a.cfg.Display.DefaultFormat
	}
	return display.New(display.Config{
		Format:         display.Format(format),
		ShowTimestamps: true,
		Compact:        compact,
	})
}

// newClient builds a client wired to the configured backend.
func (a *app) newClient() client.Client {
	return client.New(client.Config{
		ServerURL: a.cfg.Server.URL,
		Retry: connection.RetryPolicy{
			Delay:       a.cfg.Server.ReconnectDelay,
			MaxAttempts: a.cfg.Server.ReconnectMaxAttempts,
			Jitter:      a.cfg.Server.ReconnectJitter,
		},
		ReconnectWhilePaused: a.cfg.Server.ReconnectWhilePaused,
		HandshakeTimeout:     a.cfg.Server.HandshakeTimeout,
		AutoSaveInterval:     a.cfg.Session.AutoSaveInterval,
		Recovery: recovery.Config{
			MaxSessionAge: a.cfg.Session.MaxSessionAge,
			MinIntegrity:  a.cfg.Session.MinIntegrity,
		},
	}, a.store, a.log)
}

// resolveSession finds a session by exact id, unique id prefix, or falls
// back to the current session when id is empty.
func (a *app) resolveSession(id string) (*store.Session, error) {
	if id == "" {
		session, err := a.store.Current()
		if err != nil {
			return nil, fmt.Errorf("no session specified and no current session: %w", err)
		}
		return session, nil
	}

	session, err := a.store.Get(id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, err
	}

	// Try a unique prefix match.
	sessions, listErr := a.store.List(store.Filter{})
	if listErr != nil {
		return nil, listErr
	}

	var match *store.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("session id prefix %q is ambiguous", id)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	return match, nil
}

// runRunCommand runs the run command.
func runRunCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id (default: current session)")
	name := fs.String("name", "", "create a new session with this name first")
	population := fs.Int("population", 500, "initial population size")
	generations := fs.Int("generations", 50, "number of generations")
	mutation := fs.Float64("mutation", 0.01, "mutation rate")
	antibiotic := fs.Float64("antibiotic", 0.3, "antibiotic concentration")
	urlOverride := fs.String("url", "", "server url override")
	resume := fs.Bool("resume", false, "resume the session's paused run instead of starting a new one")

	if err := fs.Parse(args); err != nil {
		return err
	}

	params := protocol.Parameters{
		InitialPopulationSize:   *population,
		NumGenerations:          *generations,
		MutationRate:            *mutation,
		AntibioticConcentration: *antibiotic,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if *urlOverride != "" {
		a.cfg.Server.URL = *urlOverride
	}

	var session *store.Session
	if *name != "" {
		session = store.NewSession(*name)
		session.Config.AutoSaveInterval = a.cfg.Session.AutoSaveInterval
		session.Config.MaxSimulations = a.cfg.Session.MaxSimulations
		session.Config.MinIntegrity = a.cfg.Session.MinIntegrity
		if err := a.store.Create(session); err != nil {
			return err
		}
		fmt.Printf("Created session %s (%s)\n", session.Name, session.ID)
	} else {
		session, err = a.resolveSession(*sessionID)
		if err != nil {
			return err
		}
	}

	cmd := &runCommand{app: a, session: session, params: params, resume: *resume}
	return cmd.Execute()
}

// runCommand starts (or resumes) a simulation and follows it until it
// finishes.
type runCommand struct {
	app     *app
	session *store.Session
	params  protocol.Parameters
	resume  bool
}

// Execute runs the run command.
func (c *runCommand) Execute() error {
	cli := c.app.newClient()
	defer func() {
		if err := cli.Close(); err != nil {
			c.app.log.Error("failed to close client", "error", err)
		}
	}()

	var runID string
	var err error
	if c.resume {
		runID, err = cli.ResumeSession(c.session.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Resumed run %s in session %s\n", runID, c.session.Name)
	} else {
		runID, err = cli.StartRun(c.session.ID, c.params)
		if err != nil {
			return err
		}
		fmt.Printf("Started run %s in session %s\n", runID, c.session.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.follow(ctx, cli)
}

// follow renders live updates until the run reaches a terminal status
// or the user interrupts.
func (c *runCommand) follow(ctx context.Context, cli client.Client) error {
	updates := cli.Updates()
	notifications := cli.Notifications()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted; run state saved")
			if err := cli.StopRun(); err != nil && !errors.Is(err, client.ErrNoRun) {
				return err
			}
			return nil

		case state, ok := <-updates:
			if !ok {
				return nil
			}

			fmt.Printf("\r%s", display.StatusLine(state, 0))

			switch state.Status {
			case simulation.StatusCompleted, simulation.StatusError, simulation.StatusCancelled:
				fmt.Println()
				if state.Status == simulation.StatusError {
					return fmt.Errorf("simulation failed: %s", state.ErrorMessage)
				}
				if err := cli.StopRun(); err != nil && !errors.Is(err, client.ErrNoRun) {
					return err
				}
				return nil
			}

		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			fmt.Printf("\n%s: %s\n", n.Type, n.Message)
		}
	}
}

// runRecoverCommand runs the recover command.
func runRecoverCommand(configPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("recover requires a subcommand: check, auto, one")
	}

	sub := args[0]
	rest := args[1:]

	// recover one takes the session id before its flags.
	var target string
	if sub == "one" {
		if len(rest) == 0 {
			return fmt.Errorf("recover one requires a session id")
		}
		target = rest[0]
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("recover "+sub, flag.ExitOnError)
	format := fs.String("format", "", "output format (table, json, simple)")
	fromCheckpoint := fs.Bool("from-checkpoint", false, "restore from the newest checkpoint")
	discardRuns := fs.Bool("discard-runs", false, "mark in-flight runs cancelled instead of resuming them")
	noBackup := fs.Bool("no-backup", false, "skip the backup checkpoint")

	if err := fs.Parse(rest); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cli := a.newClient()
	defer cli.Close()
	engine := cli.Recovery()

	out := a.formatter(*format, false)

	switch sub {
	case "check", "suggest":
		suggestions, err := engine.Suggestions()
		if err != nil {
			return err
		}
		return out.FormatSuggestions(os.Stdout, suggestions)

	case "auto":
		results := cli.AutoRecover()
		return out.FormatResults(os.Stdout, results)

	case "one":
		session, err := a.resolveSession(target)
		if err != nil {
			return err
		}

		opts := recovery.Options{
			Type:                recovery.RecoverFromState,
			ValidateIntegrity:   true,
			CreateBackup:        !*noBackup,
			PreserveSimulations: !*discardRuns,
		}
		if *fromCheckpoint {
			opts.Type = recovery.RecoverFromCheckpoint
		}

		result := engine.RecoverSession(session.ID, opts)
		return out.FormatResults(os.Stdout, []recovery.RecoveryResult{result})

	default:
		return fmt.Errorf("unknown recover subcommand: %s", sub)
	}
}

// runCheckpointCommand runs the checkpoint command.
func runCheckpointCommand(configPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("checkpoint requires a subcommand: create, list, restore")
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	cli := a.newClient()
	defer cli.Close()
	engine := cli.Recovery()

	sub := args[0]
	rest := args[1:]

	switch sub {
	case "create":
		if len(rest) != 1 {
			return fmt.Errorf("checkpoint create requires a session id")
		}
		session, err := a.resolveSession(rest[0])
		if err != nil {
			return err
		}

		cp, err := engine.CreateCheckpoint(session.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Created checkpoint %s for session %s\n", cp.ID, session.Name)
		return nil

	case "list":
		if len(rest) != 1 {
			return fmt.Errorf("checkpoint list requires a session id")
		}
		session, err := a.resolveSession(rest[0])
		if err != nil {
			return err
		}

		checkpoints, err := a.store.ListCheckpoints(session.ID)
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints")
			return nil
		}
		for _, cp := range checkpoints {
			fmt.Printf("%s  %s  %d run states\n",
				cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), len(cp.States))
		}
		return nil

	case "restore":
		if len(rest) != 2 {
			return fmt.Errorf("checkpoint restore requires a session id and a checkpoint id")
		}
		session, err := a.resolveSession(rest[0])
		if err != nil {
			return err
		}

		result := engine.RestoreFromCheckpoint(session.ID, rest[1])
		out := a.formatter("", false)
		return out.FormatResults(os.Stdout, []recovery.RecoveryResult{result})

	default:
		return fmt.Errorf("unknown checkpoint subcommand: %s", sub)
	}
}

// runCleanupCommand runs the cleanup command.
func runCleanupCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	maxAge := fs.Duration("max-age", 0, "retention age (default: configured max_session_age)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	age := *maxAge
	if age == 0 {
		age = a.cfg.Session.MaxSessionAge
	}

	removed, err := a.store.Cleanup(age)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d sessions older than %s\n", removed, age)
	return nil
}

// runHistoryCommand runs the history command.
func runHistoryCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	sessionID := fs.String("session", "", "limit to one session (default: all)")
	format := fs.String("format", "", "output format (table, json, simple)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := initApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	id := ""
	if *sessionID != "" {
		session, err := a.resolveSession(*sessionID)
		if err != nil {
			return err
		}
		id = session.ID
	}

	events, err := a.store.History(id)
	if err != nil {
		return err
	}

	return a.formatter(*format, false).FormatHistory(os.Stdout, events)
}
