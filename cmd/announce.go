package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/loadshed-mqtt/app"
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Publish the Homie device description once and exit",
	RunE:  runAnnounce,
}

func init() {
	rootCmd.AddCommand(announceCmd)
}

func runAnnounce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// keep clear of the running service's session
	if cfg.MQTT.ClientID != "" {
		cfg.MQTT.ClientID = fmt.Sprintf("%s-announce-%d", cfg.MQTT.ClientID, time.Now().UnixNano())
	}
	ctx, cancel := context.WithTimeout(baseContext(cmd), time.Minute)
	defer cancel()
	if err := app.Announce(ctx, cfg); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "announced %s/%s\n", cfg.Homie.BaseTopic, cfg.Homie.DeviceID)
	return err
}
