package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kilianp07/loadshed-mqtt/core/poller"
	"github.com/kilianp07/loadshed-mqtt/core/status"
)

// ScheduleConfig holds the poller cadence and status thresholds.
type ScheduleConfig struct {
	TickSeconds             int    `json:"tick_seconds"`
	InitSeconds             int    `json:"init_seconds"`
	PublishAllSeconds       int    `json:"publish_all_seconds"`
	AllowanceRefreshSeconds int    `json:"allowance_refresh_seconds"`
	RetrySeconds            int    `json:"retry_seconds"`
	Timezone                string `json:"timezone"`
	Warn5MinSeconds         int    `json:"warn_5min_seconds"`
	Warn15MinSeconds        int    `json:"warn_15min_seconds"`
	RecheckSeconds          int    `json:"recheck_seconds"`
	// NextEndPolicy is "any" or "upcoming".
	NextEndPolicy string `json:"next_end_policy"`
}

func (c *ScheduleConfig) SetDefaults() {
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setInt(&c.TickSeconds, 5)
	setInt(&c.InitSeconds, 24*60*60)
	setInt(&c.PublishAllSeconds, 60)
	setInt(&c.AllowanceRefreshSeconds, 600)
	setInt(&c.RetrySeconds, 60)
	setInt(&c.Warn5MinSeconds, 5*60)
	setInt(&c.Warn15MinSeconds, 15*60)
	setInt(&c.RecheckSeconds, 5*60)
	if c.Timezone == "" {
		c.Timezone = "Africa/Johannesburg"
	}
	if c.NextEndPolicy == "" {
		c.NextEndPolicy = status.NextEndAny.String()
	}
}

func (c ScheduleConfig) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("schedule: timezone: %w", err))
	}
	if _, err := status.ParseNextEndPolicy(c.NextEndPolicy); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if c.Warn5MinSeconds > c.Warn15MinSeconds {
		errs = append(errs, fmt.Errorf("schedule: warn_5min_seconds exceeds warn_15min_seconds"))
	}
	return errors.Join(errs...)
}

// Location loads the configured timezone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PollerConfig converts the section for areaID.
func (c ScheduleConfig) PollerConfig(areaID string) (poller.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return poller.Config{}, err
	}
	policy, err := status.ParseNextEndPolicy(c.NextEndPolicy)
	if err != nil {
		return poller.Config{}, err
	}
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return poller.Config{
		AreaID:            areaID,
		Tick:              sec(c.TickSeconds),
		InitInterval:      sec(c.InitSeconds),
		PublishInterval:   sec(c.PublishAllSeconds),
		AllowanceInterval: sec(c.AllowanceRefreshSeconds),
		RetryInterval:     sec(c.RetrySeconds),
		Location:          loc,
		Status: status.Config{
			Warn5Min:  sec(c.Warn5MinSeconds),
			Warn15Min: sec(c.Warn15MinSeconds),
			Recheck:   sec(c.RecheckSeconds),
			NextEnd:   policy,
		},
	}, nil
}
