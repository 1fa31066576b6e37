// Package esp is the HTTP client for the EskomSePush business API.
package esp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/loadshed-mqtt/core/allowance"
	"github.com/kilianp07/loadshed-mqtt/core/event"
	"github.com/kilianp07/loadshed-mqtt/core/logger"
)

// DefaultAPIURL is the production API base.
const DefaultAPIURL = "https://developer.sepush.co.za/business/2.0"

// ErrUnexpectedStatus is returned for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Config holds the API credentials and the area to follow.
type Config struct {
	APIURL string `json:"api_url"`
	Token  string `json:"token"`
	AreaID string `json:"area_id"`
	// Test asks the API for a synthetic schedule: "current" or "future".
	Test           string `json:"test"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c *Config) SetDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("esp: token is required")
	}
	if c.AreaID == "" {
		return fmt.Errorf("esp: area_id is required")
	}
	switch c.Test {
	case "", "current", "future":
	default:
		return fmt.Errorf("esp: test must be current or future, got %q", c.Test)
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("esp: api_url: %w", err)
	}
	return nil
}

// Client implements poller.Fetcher.
type Client struct {
	base   string
	token  string
	test   string
	client *http.Client
	log    logger.Logger
}

// NewClient creates an API client. A nil log discards output.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		base:   strings.TrimRight(cfg.APIURL, "/"),
		token:  cfg.Token,
		test:   cfg.Test,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    log,
	}
}

type allowanceResponse struct {
	Allowance allowance.Quota `json:"allowance"`
}

type areaResponse struct {
	Info struct {
		Name   string `json:"name"`
		Region string `json:"region"`
	} `json:"info"`
	Events []event.Raw `json:"events"`
}

// FetchAllowance returns the current API quota.
func (c *Client) FetchAllowance(ctx context.Context) (allowance.Quota, error) {
	var resp allowanceResponse
	if err := c.get(ctx, "/api_allowance", nil, &resp); err != nil {
		return allowance.Quota{}, err
	}
	return resp.Allowance, nil
}

// FetchSchedule returns the area info and its upcoming events. Timestamps
// are validated here so a malformed feed never replaces a good schedule.
func (c *Client) FetchSchedule(ctx context.Context, areaID string) (event.Schedule, error) {
	q := url.Values{"id": {areaID}}
	if c.test != "" {
		q.Set("test", c.test)
	}
	var resp areaResponse
	if err := c.get(ctx, "/area", q, &resp); err != nil {
		return event.Schedule{}, err
	}
	events, err := event.Parse(resp.Events)
	if err != nil {
		return event.Schedule{}, fmt.Errorf("area %s: %w", areaID, err)
	}
	return event.Schedule{AreaName: resp.Info.Name, RegionName: resp.Info.Region, Events: events}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("token", c.token)
	req.Header.Set("Accept", "application/json")

	c.log.Debugf("GET %s", path)
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: get %s: %d %s", ErrUnexpectedStatus, path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
