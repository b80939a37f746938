package main

import (
	"errors"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/client"
	"github.com/hegelab/hegel/pkg/daemon"
	"github.com/hegelab/hegel/pkg/hegel/output"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the hegeld daemon",
	Long: `Manage the hegeld session daemon.

The daemon owns the instrument connections so several hegel
invocations (and long-running sweeps) share them instead of fighting
over the hardware.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the hegeld daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the hegeld daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	err = client.StartDaemon(cmd.Context(), cfg)
	if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		printInfo("Daemon already running")
		return nil
	}
	if err != nil {
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidPath := client.PIDPath(cfg)
	if !daemon.IsRunning(pidPath) {
		printInfo("Daemon is not running")
		return nil
	}
	if err := daemon.Stop(pidPath); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !daemon.IsRunning(client.PIDPath(cfg)) {
		printInfo("Daemon is not running")
		return nil
	}

	c, err := client.Dial(cmd.Context(), client.SocketPath(cfg))
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Status(cmd.Context())
	if err != nil {
		return err
	}

	report := &output.Report{Title: "Daemon status"}
	report.Notes = append(report.Notes,
		"pid: "+strconv.Itoa(st.PID),
		"uptime: "+output.FormatDuration(st.Uptime),
		"instruments: "+strconv.Itoa(st.Instruments),
		"subscribers: "+strconv.Itoa(st.Subscribers),
		"heap: "+humanize.IBytes(st.MemAlloc),
	)
	for state, n := range st.Jobs {
		report.Notes = append(report.Notes, "jobs "+state+": "+strconv.Itoa(n))
	}
	return printReport(report)
}
