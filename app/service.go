package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/loadshed-mqtt/config"
	"github.com/kilianp07/loadshed-mqtt/core/homie"
	coremon "github.com/kilianp07/loadshed-mqtt/core/monitoring"
	"github.com/kilianp07/loadshed-mqtt/core/poller"
	"github.com/kilianp07/loadshed-mqtt/infra/esp"
	"github.com/kilianp07/loadshed-mqtt/infra/logger"
	"github.com/kilianp07/loadshed-mqtt/infra/metrics"
	infmon "github.com/kilianp07/loadshed-mqtt/infra/monitoring"
	"github.com/kilianp07/loadshed-mqtt/infra/mqtt"
	"github.com/kilianp07/loadshed-mqtt/infra/store"
)

// Service wires the poller to the API client, the broker and the sinks.
type Service struct {
	Poller *poller.Poller

	device   homie.Device
	client   *mqtt.Client
	cache    *store.SQLiteStore
	log      logger.Logger
	promAddr string
}

// Setup applies the process wide settings: log level and error monitor.
func Setup(cfg *config.Config) error {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return err
	}
	coremon.Init(mon)
	return nil
}

// New connects to the broker and builds the poller. The returned Service
// must be closed.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if err := Setup(cfg); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	pcfg, err := cfg.Schedule.PollerConfig(cfg.ESP.AreaID)
	if err != nil {
		return nil, fmt.Errorf("schedule config: %w", err)
	}
	device := poller.NewDevice(cfg.Homie.DeviceInfo(), cfg.Homie.MaxEvents)

	sink, err := metrics.NewSink(cfg.Metrics, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	svc := &Service{device: device, log: logg}
	if cfg.Metrics.PrometheusEnabled {
		svc.promAddr = cfg.Metrics.PrometheusAddr
	}
	opts := []poller.Option{poller.WithLogger(logger.New("poller")), poller.WithSink(sink)}
	if cfg.Cache.Enabled() {
		if svc.cache, err = store.NewSQLiteStore(cfg.Cache.Path); err != nil {
			return nil, fmt.Errorf("schedule cache: %w", err)
		}
		opts = append(opts, poller.WithCache(svc.cache))
	}

	// the broker may call back before the poller exists
	var current atomic.Pointer[poller.Poller]
	mcfg := cfg.MQTT
	mcfg.WillTopic = device.StateTopic()
	mcfg.WillPayload = string(homie.StateLost)
	svc.client, err = mqtt.Connect(ctx, mcfg,
		mqtt.WithSubscription(device.SetTopicFilter()),
		mqtt.WithOnConnect(func() {
			if p := current.Load(); p != nil {
				p.RequestInit()
			}
		}),
	)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}

	fetcher := esp.NewClient(cfg.ESP, logger.New("esp"))
	svc.Poller = poller.New(pcfg, fetcher, svc.client, device, opts...)
	current.Store(svc.Poller)
	return svc, nil
}

// Run starts the metrics endpoint and the poller and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.Poller.Run(ctx)
}

// Close marks the device disconnected and releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.client != nil {
		if err := s.device.PublishState(s.client, homie.StateDisconnected); err != nil {
			errs = append(errs, err)
		}
		s.client.Disconnect()
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
