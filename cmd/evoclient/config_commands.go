package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evosim/evoclient/pkg/config"
)

// runConfigCommand runs the config command.
func runConfigCommand(configPath string, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		return configShow(configPath)
	case "path":
		return configPathCmd(configPath)
	case "init":
		return configInit(configPath)
	default:
		return fmt.Errorf("unknown config subcommand: %s", sub)
	}
}

// configShow prints the effective configuration as YAML.
func configShow(configPath string) error {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	_, err = os.Stdout.Write(data)
	return err
}

// configPathCmd prints the config file location in use.
func configPathCmd(configPath string) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	fmt.Println(configPath)
	return nil
}

// configInit writes the default configuration to the config path.
func configInit(configPath string) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if configPath == "" {
		return fmt.Errorf("cannot determine config path")
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := config.Save(config.Default(), configPath); err != nil {
		return err
	}

	fmt.Printf("Wrote default config to %s\n", configPath)
	return nil
}
