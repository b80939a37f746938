package main

import (
	"github.com/spf13/cobra"

	"github.com/hegelab/hegel/pkg/hegel/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured instruments and their devices",
	Long: `List the instruments from the configuration with their identification
and the devices each driver declares.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
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

	infos, err := s.List(ctx)
	if err != nil {
		return err
	}

	report := &output.Report{Title: "Instruments"}
	for _, in := range infos {
		report.Instruments = append(report.Instruments, output.Instrument{
			Name:     in.Name,
			Resource: in.Resource,
			Vendor:   in.Vendor,
			Model:    in.Model,
			Serial:   in.Serial,
			Firmware: in.Firmware,
			Devices:  in.Devices,
		})
	}
	if len(report.Instruments) == 0 {
		report.Notes = append(report.Notes,
			"No instruments configured. Add them under 'instruments:' in the config file.")
	}
	return printReport(report)
}
