package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadshed-mqtt/app"
	"github.com/kilianp07/loadshed-mqtt/config"
	"github.com/kilianp07/loadshed-mqtt/infra/logger"
)

const defaultConfigPath = "config.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "loadshed-mqtt",
	Short:        "Publish the EskomSePush loadshedding schedule as a Homie MQTT device",
	SilenceUsage: true,
	RunE:         run,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the schedule and publish it until interrupted",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "configuration file; without it only LS_ environment variables are read")
	rootCmd.AddCommand(runCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(baseContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// configPath returns the file to load. A missing default file falls back to
// environment-only configuration; an explicit path must exist.
func configPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") || cfgPath != defaultConfigPath {
		return cfgPath
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return cfgPath
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath(cmd))
}

func baseContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
