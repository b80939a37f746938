package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/cmd/hegel/tui"
	"github.com/hegelab/hegel/pkg/daemon"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <instr.dev> <start> <stop> <points>",
	Short: "Sweep a device and record measurements",
	Long: `Sweep a device across a span of values, reading the output devices at
each point and writing the rows to a data file.

The file gets a header with the full instrument state so the
measurement conditions stay attached to the data.

Examples:
  hegel sweep src.level 0 1 101 -o dmm.readval
  hegel sweep src.level 1e-3 1 61 -o dmm.readval --log
  hegel sweep src.level -1 1 201 -o dmm.readval --updown --reset`,
	Args: cobra.ExactArgs(4),
	RunE: runSweep,
}

var (
	sweepOut        []string
	sweepLog        bool
	sweepUpDown     bool
	sweepReset      bool
	sweepAsync      bool
	sweepFile       string
	sweepBeforeWait float64
	sweepDetach     bool
	sweepNoTUI      bool
)

func init() {
	sweepCmd.Flags().StringSliceVarP(&sweepOut, "out", "o", nil, "output devices to read at each point")
	sweepCmd.Flags().BoolVar(&sweepLog, "log", false, "space points logarithmically")
	sweepCmd.Flags().BoolVar(&sweepUpDown, "updown", false, "sweep up then back down")
	sweepCmd.Flags().BoolVar(&sweepReset, "reset", false, "return the device to the first value afterwards")
	sweepCmd.Flags().BoolVar(&sweepAsync, "async", false, "read output devices in parallel")
	sweepCmd.Flags().StringVar(&sweepFile, "file", "", "data filename template (default from config)")
	sweepCmd.Flags().Float64Var(&sweepBeforeWait, "beforewait", 0, "settle delay in seconds between set and read")
	sweepCmd.Flags().BoolVar(&sweepDetach, "detach", false, "start the job on the daemon and return immediately")
	sweepCmd.Flags().Bool("no-tui", false, "plain text progress instead of the TUI")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	start, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid start %q: %w", args[1], err)
	}
	stop, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid stop %q: %w", args[2], err)
	}
	points, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid points %q: %w", args[3], err)
	}
	sweepNoTUI, _ = cmd.Flags().GetBool("no-tui")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	params := daemon.SweepStartParams{
		Device:   args[0],
		Start:    start,
		Stop:     stop,
		Points:   points,
		Log:      sweepLog,
		UpDown:   sweepUpDown,
		Reset:    sweepReset,
		Async:    sweepAsync,
		Out:      sweepOut,
		Filename: sweepFile,
	}
	if cmd.Flags().Changed("beforewait") {
		params.BeforeWait = &sweepBeforeWait
	}
	jobID, err := s.SweepStart(ctx, params)
	if err != nil {
		return err
	}

	st, err := s.SweepStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if sweepDetach {
		if _, local := s.(*localSession); local {
			return errors.New("--detach needs a running daemon")
		}
		printInfo("job %s started, writing %s", jobID, st.Filename)
		return nil
	}

	events, err := s.Events(ctx, jobID)
	if err != nil {
		return err
	}
	abort := func() { _ = s.SweepAbort(context.Background(), jobID) }

	if sweepNoTUI || getQuiet() {
		return waitSweepPlain(ctx, s, jobID, events)
	}

	// A short sweep can finish before the subscription exists, and its
	// terminal event then reaches nobody. Re-check the status once so
	// the view never waits on an event that already passed.
	st, err = s.SweepStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if st.State != daemon.StateRunning {
		return reportSweepEnd(ctx, s, jobID, st.State)
	}

	final, err := tui.Run(tui.New(jobID, args[0], st.Filename, events, abort))
	if err != nil {
		return err
	}
	return reportSweepEnd(ctx, s, jobID, final.State)
}

// waitSweepPlain follows the job without the TUI, printing a line per
// progress update.
func waitSweepPlain(ctx context.Context, s session, jobID string, events <-chan daemon.ProgressEvent) error {
	st, err := s.SweepStatus(ctx, jobID)
	if err != nil {
		return err
	}
	if st.State != daemon.StateRunning {
		return reportSweepEnd(ctx, s, jobID, st.State)
	}
	for {
		select {
		case <-ctx.Done():
			_ = s.SweepAbort(context.Background(), jobID)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed")
			}
			if ev.JobID != jobID {
				continue
			}
			if ev.State != daemon.StateRunning {
				return reportSweepEnd(ctx, s, jobID, ev.State)
			}
			printVerbose("point %d/%d value %g", ev.Progress.PointsDone,
				ev.Progress.PointsTotal, ev.Progress.CurrentValue)
		}
	}
}

func reportSweepEnd(ctx context.Context, s session, jobID, state string) error {
	st, err := s.SweepStatus(ctx, jobID)
	if err != nil {
		return err
	}
	switch state {
	case daemon.StateDone:
		printInfo("sweep complete: %d points written to %s",
			st.Progress.PointsDone, st.Filename)
		return nil
	case daemon.StateAborted:
		printInfo("sweep aborted after %d points, partial data in %s",
			st.Progress.PointsDone, st.Filename)
		return nil
	default:
		return fmt.Errorf("sweep failed: %s", st.Error)
	}
}
