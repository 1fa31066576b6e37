package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loadshed-mqtt/app"
)

var outputFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch the schedule once and print the derived status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(baseContext(cmd), 30*time.Second)
	defer cancel()
	report, err := app.Status(ctx, cfg)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), outputFormat, report)
}

func writeReport(w io.Writer, format string, r app.Report) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
