package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/loadshed-mqtt/config"
	"github.com/kilianp07/loadshed-mqtt/core/allowance"
	"github.com/kilianp07/loadshed-mqtt/core/event"
	"github.com/kilianp07/loadshed-mqtt/core/homie"
	"github.com/kilianp07/loadshed-mqtt/core/poller"
	"github.com/kilianp07/loadshed-mqtt/core/status"
	"github.com/kilianp07/loadshed-mqtt/infra/esp"
	"github.com/kilianp07/loadshed-mqtt/infra/logger"
	"github.com/kilianp07/loadshed-mqtt/infra/mqtt"
)

// Report is the one-shot view printed by the status command.
type Report struct {
	AreaID    string          `json:"area_id" yaml:"area_id"`
	Area      string          `json:"area" yaml:"area"`
	Region    string          `json:"region" yaml:"region"`
	Allowance allowance.State `json:"allowance" yaml:"allowance"`
	Status    status.Status   `json:"status" yaml:"status"`
	Events    []event.Event   `json:"events" yaml:"events"`
}

// Snapshot fetches the quota and schedule once and derives the status at now.
func Snapshot(ctx context.Context, cfg *config.Config, f poller.Fetcher, now time.Time) (Report, error) {
	pcfg, err := cfg.Schedule.PollerConfig(cfg.ESP.AreaID)
	if err != nil {
		return Report{}, err
	}
	q, err := f.FetchAllowance(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("allowance: %w", err)
	}
	r := Report{AreaID: cfg.ESP.AreaID, Allowance: allowance.NewTracker(pcfg.Location).Refresh(q, now)}
	if r.Allowance.Exhausted() {
		return r, fmt.Errorf("api allowance exhausted (%d/%d)", q.Count, q.Limit)
	}
	s, err := f.FetchSchedule(ctx, cfg.ESP.AreaID)
	if err != nil {
		return r, fmt.Errorf("schedule: %w", err)
	}
	r.Area, r.Region, r.Events = s.AreaName, s.RegionName, s.Events
	r.Status = status.Compute(s.Events, now.In(pcfg.Location), pcfg.Status)
	return r, nil
}

// Status runs Snapshot against the configured API.
func Status(ctx context.Context, cfg *config.Config) (Report, error) {
	if err := Setup(cfg); err != nil {
		return Report{}, err
	}
	return Snapshot(ctx, cfg, esp.NewClient(cfg.ESP, logger.New("esp")), time.Now())
}

// Announce connects, publishes the Homie attribute tree once and disconnects.
func Announce(ctx context.Context, cfg *config.Config) error {
	if err := Setup(cfg); err != nil {
		return err
	}
	device := poller.NewDevice(cfg.Homie.DeviceInfo(), cfg.Homie.MaxEvents)
	client, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	return announceTo(client, device)
}

func announceTo(pub homie.Publisher, device homie.Device) error {
	if err := device.Announce(pub); err != nil {
		return fmt.Errorf("announce %s: %w", device.ID, err)
	}
	return nil
}
