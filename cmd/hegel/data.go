package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/output"
	"github.com/hegelab/hegel/pkg/hegel/trace"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Browse recorded data files",
	Long:  `Browse the data files under the configured data directory.`,
}

var dataLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List data files, newest first",
	RunE:  runDataLs,
}

var dataShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print a data file's header and rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataShow,
}

var (
	dataLimit    int
	dataShowRows int
)

func init() {
	dataLsCmd.Flags().IntVarP(&dataLimit, "limit", "l", 20, "maximum number of files to list")
	dataShowCmd.Flags().IntVarP(&dataShowRows, "rows", "r", 10, "number of data rows to print (0 for all)")

	dataCmd.AddCommand(dataLsCmd)
	dataCmd.AddCommand(dataShowCmd)
	rootCmd.AddCommand(dataCmd)
}

func runDataLs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := trace.ListFiles(cmd.Context(), cfg.DataPath)
	if err != nil {
		return err
	}

	report := &output.Report{Title: "Data files"}
	for i, f := range files {
		if dataLimit > 0 && i >= dataLimit {
			break
		}
		report.Files = append(report.Files, output.DataFile{
			Path:      f.Path,
			Size:      f.Size,
			SizeHuman: humanize.IBytes(uint64(f.Size)),
			ModTime:   f.ModTime,
			Age:       time.Since(f.ModTime),
		})
	}
	if len(report.Files) == 0 {
		report.Notes = append(report.Notes,
			fmt.Sprintf("No data files under %s. Run 'hegel sweep' or 'hegel record' first.", cfg.DataPath))
	}
	return printReport(report)
}

func runDataShow(_ *cobra.Command, args []string) error {
	f, err := trace.ReadFile(args[0])
	if err != nil {
		return err
	}

	for _, c := range f.Comments {
		printInfo("# %s", c)
	}
	if len(f.Columns) > 0 {
		printInfo("# %s", strings.Join(f.Columns, "\t"))
	}

	rows := f.Rows
	truncated := 0
	if dataShowRows > 0 && len(rows) > dataShowRows {
		truncated = len(rows) - dataShowRows
		rows = rows[:dataShowRows]
	}
	for _, row := range rows {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = trace.FormatValue(v)
		}
		fmt.Println(strings.Join(fields, "\t"))
	}
	if truncated > 0 {
		printInfo("... %d more rows (use --rows 0 for all)", truncated)
	}
	return nil
}
