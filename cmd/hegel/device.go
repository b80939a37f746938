package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/output"
)

var getCmd = &cobra.Command{
	Use:   "get <instr.dev> [instr.dev...]",
	Short: "Read device values",
	Long: `Read one or more devices and print the values.

Devices are addressed as "instrument.device", e.g. "dmm.readval".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <instr.dev> <value>",
	Short: "Set a device value",
	Long: `Set a device to a value. The value is checked against the device's
limits before anything is sent to the instrument.`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

var moveCmd = &cobra.Command{
	Use:   "move <instr.dev> <target>",
	Short: "Ramp a device to a target value",
	Long: `Ramp a device to a target value at a bounded rate instead of jumping
there in one step. With --rate 0 the device jumps directly.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

var snapCmd = &cobra.Command{
	Use:   "snap <instr.dev> [instr.dev...]",
	Short: "Read a set of devices in one shot",
	Long:  `Read the named devices together and print one timestamped row.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSnap,
}

var moveRate float64

func init() {
	moveCmd.Flags().Float64VarP(&moveRate, "rate", "r", 0.1, "ramp rate in units per second (0 jumps)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(snapCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
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

	report := &output.Report{Title: "Readings"}
	for _, addr := range args {
		res, err := s.Get(ctx, addr)
		if err != nil {
			return err
		}
		report.Readings = append(report.Readings, output.Reading{
			Device: res.Device,
			Value:  res.Value,
			Unit:   res.Unit,
			Time:   time.Now(),
		})
	}
	return printReport(report)
}

func runSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
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

	if err := s.Set(ctx, args[0], value); err != nil {
		return err
	}
	printInfo("%s = %v", args[0], value)
	return nil
}

// runMove ramps with client-side steps so it works the same against a
// daemon and against directly opened instruments.
func runMove(cmd *cobra.Command, args []string) error {
	target, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", args[1], err)
	}
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

	addr := args[0]
	if moveRate <= 0 {
		if err := s.Set(ctx, addr, target); err != nil {
			return err
		}
		printInfo("%s = %v", addr, target)
		return nil
	}

	cur, err := s.Get(ctx, addr)
	if err != nil {
		return err
	}
	if err := rampTo(ctx, s, addr, cur.Value, target, moveRate); err != nil {
		return err
	}
	printInfo("%s = %v", addr, target)
	return nil
}

const rampStepPeriod = 50 * time.Millisecond

// rampTo walks from start to target in rate-limited steps.
func rampTo(ctx context.Context, s session, addr string, start, target, rate float64) error {
	step := rate * rampStepPeriod.Seconds()
	if target < start {
		step = -step
	}
	ticker := time.NewTicker(rampStepPeriod)
	defer ticker.Stop()

	for v := start + step; (step > 0 && v < target) || (step < 0 && v > target); v += step {
		if math.Abs(target-v) < math.Abs(step) {
			break
		}
		if err := s.Set(ctx, addr, v); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.Set(ctx, addr, target)
}

func runSnap(cmd *cobra.Command, args []string) error {
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

	now := time.Now()
	report := &output.Report{Title: "Snapshot"}
	for _, addr := range args {
		res, err := s.Get(ctx, addr)
		if err != nil {
			return err
		}
		report.Readings = append(report.Readings, output.Reading{
			Device: res.Device,
			Value:  res.Value,
			Unit:   res.Unit,
			Time:   now,
		})
	}
	return printReport(report)
}
