package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage hegel configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/hegel/config.yaml (if set)
  2. ~/.config/hegel/config.yaml

Environment variables can override config file settings using the
HEGEL_ prefix:
  HEGEL_DATA_PATH=~/measurements
  HEGEL_SWEEP_BEFORE_WAIT=50ms`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by $VISUAL, then $EDITOR, falling back to
'vi'. If the config file doesn't exist, a default one is created
first.`,
	RunE: runConfigEdit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

func configFilePath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path, err := configFilePath()
	if err == nil {
		if _, serr := os.Stat(path); serr == nil {
			fmt.Printf("Config file: %s\n\n", path)
		} else {
			fmt.Println("Config file: (using defaults, no file found)")
			fmt.Println()
		}
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("data_path:          %s\n", cfg.DataPath)
	fmt.Printf("lock_dir:           %s\n", cfg.LockDir)
	fmt.Printf("timeout:            %s\n", cfg.Timeout)
	fmt.Printf("sweep.before_wait:  %s\n", cfg.Sweep.BeforeWait)
	fmt.Printf("sweep.filename:     %s\n", cfg.Sweep.Filename)
	fmt.Printf("history.enabled:    %v\n", cfg.History.Enabled)
	fmt.Printf("history.path:       %s\n", cfg.History.Path)
	fmt.Printf("history.retention:  %d days\n", cfg.History.RetentionDays)
	fmt.Printf("logging.level:      %s\n", cfg.Logging.Level)
	fmt.Printf("daemon.auto_start:  %v\n", cfg.Daemon.AutoStart)

	fmt.Println("\nInstruments:")
	names := make([]string, 0, len(cfg.Instruments))
	for name := range cfg.Instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		in := cfg.Instruments[name]
		fmt.Printf("  %-12s %s", name, in.Resource)
		if in.Driver != "" {
			fmt.Printf(" (driver: %s)", in.Driver)
		}
		fmt.Println()
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}
	if err := config.WriteDefault(); err != nil {
		return err
	}
	printInfo("Created %s", path)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	if err := config.WriteDefault(); err != nil {
		return err
	}
	path, err := configFilePath()
	if err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
