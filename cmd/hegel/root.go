package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/logging"
	"github.com/hegelab/hegel/pkg/hegel/output"
)

var rootCmd = &cobra.Command{
	Use:   "hegel",
	Short: "Control lab instruments, sweep them and record data",
	Long: `Hegel talks to lab instruments over VISA-style resources, sweeps
device values while recording measurements, and keeps the resulting
data files and run history organized.

Instruments are declared in the config file. When the hegeld daemon is
running (or daemon.auto_start is set), instrument connections are
shared between every hegel invocation; otherwise hegel opens the
instruments directly.

Examples:
  hegel list                               # Show configured instruments
  hegel get src.level dmm.readval          # Read devices
  hegel set src.level 1.5                  # Set a device
  hegel sweep src.level 0 1 101 -o dmm.readval
  hegel record -o dmm.readval -i 0.5 -p 100
  hegel data ls                            # List data files
  hegel history                            # View past runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "f", "pretty", "output format (pretty, plain, json, yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Bool("local", false, "bypass the daemon, open instruments directly")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("local", rootCmd.PersistentFlags().Lookup("local"))
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	return cfg, nil
}

// printReport renders a report in the format selected by --output.
func printReport(r *output.Report) error {
	name := viper.GetString("output")
	f, err := output.Get(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
