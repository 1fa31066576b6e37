// Package mqtt implements the Homie publisher on top of Eclipse Paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/loadshed-mqtt/core/monitoring"
	"github.com/kilianp07/loadshed-mqtt/infra/logger"
)

// ErrConnectFailed is returned when the broker stays unreachable after the
// configured connect attempts.
var ErrConnectFailed = errors.New("mqtt connect failed")

// ErrPublishTimeout is returned when a publish is not acknowledged in time.
// With QoS > 0 paho keeps the message in its store and delivers it once the
// broker is reachable again.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// ErrNotConnected is returned by Publish while paho is reconnecting. Retained
// values are republished by the re-init that follows the reconnect.
var ErrNotConnected = errors.New("mqtt not connected")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string `json:"broker"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	UseTLS     bool   `json:"use_tls"`
	ClientCert string `json:"client_cert"`
	ClientKey  string `json:"client_key"`
	CABundle   string `json:"ca_bundle"`
	QoS        byte   `json:"qos"`
	Retain     bool   `json:"retain"`
	MaxRetries int    `json:"max_retries"`
	BackoffMS  int    `json:"backoff_ms"`
	// PublishTimeoutMS bounds the wait for a publish acknowledgment.
	PublishTimeoutMS int `json:"publish_timeout_ms"`

	ConnectRetries      int `json:"connect_retries"`
	ConnectBackoffMS    int `json:"connect_backoff_ms"`
	ConnectMaxBackoffMS int `json:"connect_max_backoff_ms"`

	// Will is set from the Homie device, not from the config file.
	WillTopic   string      `json:"-"`
	WillPayload string      `json:"-"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills unset connection settings.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.PublishTimeoutMS <= 0 {
		c.PublishTimeoutMS = 5000
	}
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 5
	}
	if c.ConnectBackoffMS <= 0 {
		c.ConnectBackoffMS = 500
	}
	if c.ConnectMaxBackoffMS <= 0 {
		c.ConnectMaxBackoffMS = 30_000
	}
}

// Validate checks the broker address and QoS.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("mqtt: use_tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	IsConnectionOpen() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Option customises a Client.
type Option func(*Client)

// WithOnConnect registers fn to run after every successful (re)connect.
func WithOnConnect(fn func()) Option { return func(c *Client) { c.onConnect = fn } }

// WithSubscription subscribes to filter on every connect. Inbound messages
// are logged and otherwise ignored.
func WithSubscription(filter string) Option { return func(c *Client) { c.filter = filter } }

// WithLogger replaces the default component logger.
func WithLogger(l logger.Logger) Option { return func(c *Client) { c.logger = l } }

// Client publishes retained Homie messages through Eclipse Paho.
type Client struct {
	cli        pahoClient
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	logger     logger.Logger
	onConnect  func()
	filter     string
}

// Connect dials the broker, retrying with exponential backoff up to
// cfg.ConnectRetries times. Once connected, paho's auto-reconnect owns the
// link.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	popts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout:    time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
		logger:     logger.New("mqtt_client"),
	}
	for _, o := range opts {
		o(c)
	}

	popts.OnConnect = c.handleConnect
	popts.OnConnectionLost = func(_ paho.Client, err error) {
		c.logger.Errorf("connection lost: %v", err)
	}
	popts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		c.logger.Warnf("reconnecting to MQTT broker")
	}
	c.cli = newMQTTClient(popts)

	delay := time.Duration(cfg.ConnectBackoffMS) * time.Millisecond
	maxDelay := time.Duration(cfg.ConnectMaxBackoffMS) * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		c.logger.Infof("connecting to %s (attempt %d/%d)", cfg.Broker, attempt, cfg.ConnectRetries)
		token := c.cli.Connect()
		token.Wait()
		if lastErr = token.Error(); lastErr == nil {
			return c, nil
		}
		c.logger.Warnf("connect attempt %d failed: %v", attempt, lastErr)
		if attempt == cfg.ConnectRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectFailed, cfg.Broker, cfg.ConnectRetries, lastErr)
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "loadshed-" + uuid.NewString()
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, cfg.QoS, cfg.Retain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (c *Client) handleConnect(pc paho.Client) {
	c.logger.Infof("MQTT connected")
	if c.filter != "" {
		if token := pc.Subscribe(c.filter, c.qos, c.onMessage); token.Wait() && token.Error() != nil {
			c.logger.Errorf("subscribe %s: %v", c.filter, token.Error())
		}
	}
	if c.onConnect != nil {
		c.onConnect()
	}
}

func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	c.logger.Infof("ignoring message on %s: %q", msg.Topic(), msg.Payload())
}

// Publish sends payload with the configured QoS. The message is retained
// only when both retained and the configured retain flag are set. Failed
// publishes are retried with exponential backoff. A publish that is not
// acknowledged within the publish timeout returns ErrPublishTimeout without
// a retry.
func (c *Client) Publish(topic, payload string, retained bool) error {
	if !c.cli.IsConnectionOpen() {
		return fmt.Errorf("%w: %s", ErrNotConnected, topic)
	}
	retained = retained && c.retain
	var publishErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := c.cli.Publish(topic, c.qos, retained, payload)
		if !token.WaitTimeout(c.timeout) {
			c.logger.Warnf("publish %s not acknowledged after %s", topic, c.timeout)
			return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
		}
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		c.logger.Errorf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt < c.maxRetries {
			time.Sleep(c.backoff * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": topic})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
