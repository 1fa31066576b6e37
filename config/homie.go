package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kilianp07/loadshed-mqtt/core/poller"
)

var topicID = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// HomieConfig describes the published Homie device.
type HomieConfig struct {
	BaseTopic      string `json:"base_topic"`
	DeviceID       string `json:"device_id"`
	DeviceName     string `json:"device_name"`
	Version        string `json:"version"`
	Extensions     string `json:"extensions"`
	Implementation string `json:"implementation"`
	// MaxEvents adds event1..eventN nodes listing the raw schedule.
	MaxEvents int `json:"max_events"`
}

func (c *HomieConfig) SetDefaults() {
	if c.BaseTopic == "" {
		c.BaseTopic = "homie"
	}
	if c.DeviceID == "" {
		c.DeviceID = "eskomsepush"
	}
	if c.DeviceName == "" {
		c.DeviceName = "Eskom Loadshedding Schedule"
	}
	if c.Version == "" {
		c.Version = "4.0.0"
	}
	if c.Implementation == "" {
		c.Implementation = "esp_mqtt"
	}
}

func (c HomieConfig) Validate() error {
	if c.BaseTopic == "" || strings.ContainsAny(c.BaseTopic, "+#") {
		return fmt.Errorf("homie: invalid base_topic %q", c.BaseTopic)
	}
	if !topicID.MatchString(c.DeviceID) {
		return fmt.Errorf("homie: device_id %q must match %s", c.DeviceID, topicID)
	}
	if c.MaxEvents < 0 {
		return fmt.Errorf("homie: max_events must not be negative")
	}
	return nil
}

// DeviceInfo converts the section for poller.NewDevice.
func (c HomieConfig) DeviceInfo() poller.DeviceInfo {
	return poller.DeviceInfo{
		BaseTopic:      c.BaseTopic,
		ID:             c.DeviceID,
		Name:           c.DeviceName,
		Version:        c.Version,
		Extensions:     c.Extensions,
		Implementation: c.Implementation,
	}
}
