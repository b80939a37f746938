package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/config"
	"github.com/hegelab/hegel/pkg/hegel/output"
	"github.com/hegelab/hegel/pkg/hegel/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past sweep and record runs",
	Long: `View the run history: which devices were swept, how many points were
taken and where the data landed.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove history entries past the retention period",
	RunE:  runHistoryPrune,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the run history store from the config. The store
// takes an exclusive lock, so this fails while a daemon holds it.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("run history is disabled in the config")
	}
	return store.Open(cfg.History.Path)
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := h.List(historyLimit)
	if err != nil {
		return err
	}

	report := &output.Report{Title: "Run history"}
	for _, r := range runs {
		report.Runs = append(report.Runs, output.RunInfo{
			ID:       r.ID,
			Kind:     r.Kind,
			Devices:  r.Devices,
			Filename: r.Filename,
			Points:   r.Points,
			Start:    r.Start,
			Duration: r.End.Sub(r.Start),
			Checksum: r.Checksum,
		})
	}
	if len(report.Runs) == 0 {
		report.Notes = append(report.Notes, "No runs recorded yet.")
	}
	return printReport(report)
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	r, err := h.Get(args[0])
	if err != nil {
		return err
	}
	report := &output.Report{
		Title: "Run " + r.ID,
		Runs: []output.RunInfo{{
			ID:       r.ID,
			Kind:     r.Kind,
			Devices:  r.Devices,
			Filename: r.Filename,
			Points:   r.Points,
			Start:    r.Start,
			Duration: r.End.Sub(r.Start),
			Checksum: r.Checksum,
		}},
	}
	return printReport(report)
}

func runHistoryPrune(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	cutoff := time.Now().Add(-retention)
	n, err := h.Prune(cutoff)
	if err != nil {
		return err
	}
	printInfo("pruned %d runs older than %s", n, cutoff.Format("2006-01-02"))
	return nil
}
