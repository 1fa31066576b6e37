package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/loadshed-mqtt/core/metrics"
)

// PromSink exposes the poller state as Prometheus metrics.
type PromSink struct {
	shedding  *prometheus.GaugeVec
	warning   *prometheus.GaugeVec
	nextStart *prometheus.GaugeVec
	events    *prometheus.GaugeVec
	quota     *prometheus.GaugeVec
	fetches   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	actions   *prometheus.CounterVec
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		shedding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadshed_active",
			Help: "1 while the area is inside an outage window",
		}, []string{"area"}),
		warning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadshed_warning",
			Help: "1 while the next outage starts within the window",
		}, []string{"area", "window"}),
		nextStart: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadshed_next_start_timestamp_seconds",
			Help: "Unix time of the next outage start, 0 when none is scheduled",
		}, []string{"area"}),
		events: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadshed_schedule_events",
			Help: "Number of events in the current schedule",
		}, []string{"area"}),
		quota: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "esp_api_allowance",
			Help: "API allowance as last reported",
		}, []string{"kind"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esp_fetch_total",
			Help: "Calls to the schedule API by endpoint and result",
		}, []string{"endpoint", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esp_fetch_duration_seconds",
			Help:    "Schedule API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poller_actions_total",
			Help: "Actions taken by the poller",
		}, []string{"action"}),
	}
	var err error
	if s.shedding, err = register(reg, s.shedding); err != nil {
		return nil, err
	}
	if s.warning, err = register(reg, s.warning); err != nil {
		return nil, err
	}
	if s.nextStart, err = register(reg, s.nextStart); err != nil {
		return nil, err
	}
	if s.events, err = register(reg, s.events); err != nil {
		return nil, err
	}
	if s.quota, err = register(reg, s.quota); err != nil {
		return nil, err
	}
	if s.fetches, err = register(reg, s.fetches); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.actions, err = register(reg, s.actions); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordStatus sets the status gauges of the area.
func (s *PromSink) RecordStatus(ev coremetrics.StatusEvent) error {
	st := ev.Status
	s.shedding.WithLabelValues(ev.AreaID).Set(boolToFloat(st.LoadShedding))
	s.warning.WithLabelValues(ev.AreaID, "5m").Set(boolToFloat(st.Warning5Min))
	s.warning.WithLabelValues(ev.AreaID, "15m").Set(boolToFloat(st.Warning15Min))
	next := 0.0
	if t, ok := st.NextStart.Time(); ok {
		next = float64(t.Unix())
	}
	s.nextStart.WithLabelValues(ev.AreaID).Set(next)
	s.events.WithLabelValues(ev.AreaID).Set(float64(ev.Events))
	return nil
}

// RecordAllowance sets the quota gauges.
func (s *PromSink) RecordAllowance(ev coremetrics.AllowanceEvent) error {
	s.quota.WithLabelValues("count").Set(float64(ev.State.Count))
	s.quota.WithLabelValues("limit").Set(float64(ev.State.Limit))
	s.quota.WithLabelValues("remaining").Set(float64(ev.State.Remaining()))
	return nil
}

// RecordFetch counts the call and observes its latency.
func (s *PromSink) RecordFetch(ev coremetrics.FetchEvent) error {
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	s.fetches.WithLabelValues(ev.Endpoint, result).Inc()
	s.latency.WithLabelValues(ev.Endpoint).Observe(ev.Latency.Seconds())
	return nil
}

// RecordAction counts the action.
func (s *PromSink) RecordAction(ev coremetrics.ActionEvent) error {
	s.actions.WithLabelValues(ev.Action).Inc()
	return nil
}
