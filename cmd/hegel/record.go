package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/trace"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record device readings over time",
	Long: `Read the output devices at a fixed interval and write each
timestamped row to a data file.

With --points 0 the recording runs until interrupted; ctrl-c stops it
cleanly and keeps the data written so far.

Examples:
  hegel record -o dmm.readval -i 0.5 -p 100
  hegel record -o dmm.readval -o src.level -i 2`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var (
	recordOut      []string
	recordInterval float64
	recordPoints   int
	recordFile     string
)

func init() {
	recordCmd.Flags().StringSliceVarP(&recordOut, "out", "o", nil, "devices to read (required)")
	recordCmd.Flags().Float64VarP(&recordInterval, "interval", "i", 1.0, "seconds between readings")
	recordCmd.Flags().IntVarP(&recordPoints, "points", "p", 0, "number of readings (0 runs until interrupted)")
	recordCmd.Flags().StringVar(&recordFile, "file", "", "data filename template (default from config)")
	_ = recordCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	if recordInterval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", recordInterval)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	tmpl := recordFile
	if tmpl == "" {
		tmpl = cfg.Sweep.Filename
	}
	path, _, err := trace.ProcessFilename(filepath.Join(cfg.DataPath, tmpl))
	if err != nil {
		return err
	}

	columns := append([]string{"time"}, recordOut...)
	w, err := trace.NewWriter(path, trace.Header{
		Title:    fmt.Sprintf("hegel record interval=%gs points=%d", recordInterval, recordPoints),
		Snapshot: snapshot,
		Columns:  columns,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	printInfo("recording to %s (ctrl-c to stop)", path)

	interval := time.Duration(recordInterval * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := 0
loop:
	for {
		row := make([]float64, 0, len(recordOut)+1)
		row = append(row, float64(time.Now().UnixNano())/1e9)
		for _, addr := range recordOut {
			res, err := s.Get(ctx, addr)
			if err != nil {
				if ctx.Err() != nil {
					break loop
				}
				return err
			}
			row = append(row, res.Value)
		}
		if err := w.WriteRow(row); err != nil {
			return err
		}
		done++
		printVerbose("point %d", done)

		if recordPoints > 0 && done >= recordPoints {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	printInfo("recorded %d points to %s", done, path)
	return nil
}
