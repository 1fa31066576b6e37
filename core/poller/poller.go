// Package poller runs the tick loop that fetches the outage schedule,
// derives the loadshedding status and republishes it as a Homie device.
//
// All state is owned by the goroutine calling Run (or Tick). The only
// cross-goroutine input is RequestInit, used by the MQTT client to ask for a
// re-announce after a reconnect.
package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kilianp07/loadshed-mqtt/core/allowance"
	"github.com/kilianp07/loadshed-mqtt/core/event"
	"github.com/kilianp07/loadshed-mqtt/core/homie"
	"github.com/kilianp07/loadshed-mqtt/core/logger"
	"github.com/kilianp07/loadshed-mqtt/core/metrics"
	"github.com/kilianp07/loadshed-mqtt/core/monitoring"
	"github.com/kilianp07/loadshed-mqtt/core/status"
)

// ErrNoCachedSchedule is returned by a Cache holding nothing for an area.
var ErrNoCachedSchedule = errors.New("no cached schedule")

// Fetcher retrieves data from the upstream schedule API.
type Fetcher interface {
	FetchAllowance(ctx context.Context) (allowance.Quota, error)
	FetchSchedule(ctx context.Context, areaID string) (event.Schedule, error)
}

// Cache keeps the last good schedule across restarts.
type Cache interface {
	SaveSchedule(ctx context.Context, areaID string, s event.Schedule, fetched time.Time) error
	LoadSchedule(ctx context.Context, areaID string) (event.Schedule, time.Time, error)
}

// Config controls the cadence of each action.
type Config struct {
	AreaID            string
	Tick              time.Duration
	InitInterval      time.Duration
	PublishInterval   time.Duration
	AllowanceInterval time.Duration
	// RetryInterval delays the next attempt after a failed fetch.
	RetryInterval time.Duration
	Location      *time.Location
	Status        status.Config
}

// DefaultConfig mirrors the cadence of the original bridge.
func DefaultConfig() Config {
	return Config{
		Tick:              5 * time.Second,
		InitInterval:      24 * time.Hour,
		PublishInterval:   60 * time.Second,
		AllowanceInterval: 10 * time.Minute,
		RetryInterval:     60 * time.Second,
		Location:          time.Local,
		Status:            status.DefaultConfig(),
	}
}

// Option customises a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(p *Poller) { p.log = l } }

// WithSink sets the metrics sink.
func WithSink(s metrics.Sink) Option { return func(p *Poller) { p.sink = s } }

// WithCache enables the schedule cache.
func WithCache(c Cache) Option { return func(p *Poller) { p.cache = c } }

// WithNow overrides the time source used by Run.
func WithNow(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

// Poller owns the schedule, quota and status and decides what to do on each tick.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	pub     homie.Publisher
	device  homie.Device
	tracker allowance.Tracker
	cache   Cache
	sink    metrics.Sink
	log     logger.Logger
	now     func() time.Time

	initRequested atomic.Bool

	clock        Clock
	schedule     event.Schedule
	haveSchedule bool
	lastUpdate   time.Time
	quota        allowance.State
	status       status.Status
	haveStatus   bool
}

// New creates a Poller publishing device through pub.
func New(cfg Config, fetcher Fetcher, pub homie.Publisher, device homie.Device, opts ...Option) *Poller {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		pub:     pub,
		device:  device,
		tracker: allowance.NewTracker(cfg.Location),
		sink:    metrics.NopSink{},
		log:     logger.NopLogger{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RequestInit asks for a re-announce on the next tick. Safe for concurrent use.
func (p *Poller) RequestInit() { p.initRequested.Store(true) }

// Clock returns the current next-due times.
func (p *Poller) Clock() Clock { return p.clock }

// Status returns the last computed status and whether one exists.
func (p *Poller) Status() (status.Status, bool) { return p.status, p.haveStatus }

// Allowance returns the last known quota.
func (p *Poller) Allowance() allowance.State { return p.quota }

// Schedule returns the current schedule and whether one was loaded.
func (p *Poller) Schedule() (event.Schedule, bool) { return p.schedule, p.haveSchedule }

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	defer monitoring.Recover()

	p.restore(ctx)
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	p.log.Infof("poller started for area %s, tick %s", p.cfg.AreaID, p.cfg.Tick)
	p.Tick(ctx, p.now())
	for {
		select {
		case <-ctx.Done():
			p.log.Infof("poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx, p.now())
		}
	}
}

// Tick performs at most one action and returns it.
func (p *Poller) Tick(ctx context.Context, now time.Time) Action {
	if p.initRequested.Swap(false) {
		p.clock.ForceInit = true
	}
	action := p.clock.Decide(now)
	switch action {
	case ActionInit:
		p.announce(now)
	case ActionFetchSchedule:
		p.fetchSchedule(ctx, now)
	case ActionRecomputeStatus:
		p.recompute(now)
		p.publishAll()
	case ActionPublishAll:
		p.recompute(now)
		p.publishAll()
		p.clock.NextFullPublish = now.Add(p.cfg.PublishInterval)
	case ActionRefreshAllowance:
		if p.refreshAllowance(ctx, now) {
			p.publishNode(NodeAPI, p.apiValues())
		}
	default:
		return ActionNone
	}
	p.log.Debugw("tick", map[string]any{"action": action.String(), "next": p.clock.Next()})
	p.record(p.sink.RecordAction(metrics.ActionEvent{Action: action.String(), Time: now}))
	return action
}

func (p *Poller) restore(ctx context.Context) {
	if p.cache == nil {
		return
	}
	s, fetched, err := p.cache.LoadSchedule(ctx, p.cfg.AreaID)
	if err != nil {
		if !errors.Is(err, ErrNoCachedSchedule) {
			p.log.Warnf("load cached schedule: %v", err)
		}
		return
	}
	p.setSchedule(s, fetched)
	p.log.Infof("restored %d cached events fetched at %s", len(s.Events), fetched.Format(time.RFC3339))
}

func (p *Poller) setSchedule(s event.Schedule, fetched time.Time) {
	p.schedule = s
	p.haveSchedule = true
	p.lastUpdate = fetched
}

func (p *Poller) announce(now time.Time) {
	p.log.Infof("announcing homie device %s", p.device.ID)
	if err := p.device.Announce(p.pub); err != nil {
		p.log.Warnf("announce: %v", err)
	}
	if p.haveStatus {
		p.publishAll()
	}
	p.clock.NextInit = now.Add(p.cfg.InitInterval)
	p.clock.ForceInit = false
}

// fetchSchedule refreshes the quota and, when calls remain, the schedule.
// A failed allowance call is retried after RetryInterval; a failed schedule
// call waits for the quota-derived refresh time so errors cannot drain it.
func (p *Poller) fetchSchedule(ctx context.Context, now time.Time) {
	if !p.refreshAllowance(ctx, now) {
		p.clock.NextScheduleFetch = now.Add(p.cfg.RetryInterval)
		return
	}
	if p.quota.Exhausted() {
		p.log.Warnf("api allowance exhausted (%d/%d), next schedule fetch at %s",
			p.quota.Count, p.quota.Limit, p.quota.NextRefresh.Format(time.RFC3339))
	} else {
		start := time.Now()
		s, err := p.fetcher.FetchSchedule(ctx, p.cfg.AreaID)
		p.record(p.sink.RecordFetch(metrics.FetchEvent{Endpoint: "schedule", Err: err, Latency: time.Since(start), Time: now}))
		if err != nil {
			p.log.Errorf("fetch schedule for %s: %v", p.cfg.AreaID, err)
			monitoring.CaptureException(err, map[string]string{"module": "poller", "endpoint": "schedule"})
		} else {
			p.setSchedule(s, now)
			p.log.Infof("fetched %d events for %s", len(s.Events), s.AreaName)
			if p.cache != nil {
				if err := p.cache.SaveSchedule(ctx, p.cfg.AreaID, s, now); err != nil {
					p.log.Warnf("cache schedule: %v", err)
				}
			}
			// the schedule call consumed quota
			p.refreshAllowance(ctx, now)
		}
	}
	p.clock.NextScheduleFetch = p.quota.NextRefresh
	p.recompute(now)
	p.publishAll()
}

// refreshAllowance fetches the quota and reports whether it succeeded.
func (p *Poller) refreshAllowance(ctx context.Context, now time.Time) bool {
	start := time.Now()
	q, err := p.fetcher.FetchAllowance(ctx)
	p.record(p.sink.RecordFetch(metrics.FetchEvent{Endpoint: "allowance", Err: err, Latency: time.Since(start), Time: now}))
	if err != nil {
		p.log.Errorf("fetch allowance: %v", err)
		monitoring.CaptureException(err, map[string]string{"module": "poller", "endpoint": "allowance"})
		p.clock.NextAllowanceRefresh = now.Add(p.cfg.RetryInterval)
		return false
	}
	p.quota = p.tracker.Refresh(q, now)
	p.clock.NextAllowanceRefresh = now.Add(p.cfg.AllowanceInterval)
	p.record(p.sink.RecordAllowance(metrics.AllowanceEvent{State: p.quota, Time: now}))
	p.log.Debugw("allowance", map[string]any{
		"count": p.quota.Count, "limit": p.quota.Limit, "next_refresh": p.quota.NextRefresh,
	})
	return true
}

// recompute derives the status from the current schedule. Without a
// schedule nothing is derived and the recompute is retried later.
func (p *Poller) recompute(now time.Time) {
	if !p.haveSchedule {
		p.clock.NextStatusRecompute = now.Add(p.cfg.Status.Recheck)
		return
	}
	p.status = status.Compute(p.schedule.Events, now, p.cfg.Status)
	p.haveStatus = true
	p.clock.NextStatusRecompute = p.status.NextWake
	p.record(p.sink.RecordStatus(metrics.StatusEvent{
		AreaID: p.cfg.AreaID, Status: p.status, Events: len(p.schedule.Events), Time: now,
	}))
}

func (p *Poller) publishAll() {
	p.publishNode(NodeArea, p.areaValues())
	p.publishNode(NodeAPI, p.apiValues())
	if p.haveStatus {
		p.publishNode(NodeStatus, p.statusValues())
	}
	for i := 1; p.haveSchedule; i++ {
		id := EventNodeID(i)
		if _, ok := p.device.Node(id); !ok {
			break
		}
		p.publishNode(id, p.eventValues(i-1))
	}
}

func (p *Poller) publishNode(node string, values []homie.Value) {
	if len(values) == 0 {
		return
	}
	if err := p.device.PublishValues(p.pub, node, values); err != nil {
		p.log.Warnf("publish %s: %v", node, err)
	}
}

func (p *Poller) areaValues() []homie.Value {
	values := []homie.Value{{Property: PropAreaID, Payload: p.cfg.AreaID}}
	if p.haveSchedule {
		values = append(values,
			homie.Value{Property: PropAreaName, Payload: p.schedule.AreaName},
			homie.Value{Property: PropRegionName, Payload: p.schedule.RegionName},
		)
	}
	return values
}

func (p *Poller) apiValues() []homie.Value {
	var values []homie.Value
	if !p.lastUpdate.IsZero() {
		values = append(values, homie.Value{Property: PropLastAPIUpdate, Payload: homie.DateTime(p.lastUpdate, p.cfg.Location)})
	}
	if p.quota.Known() {
		values = append(values,
			homie.Value{Property: PropAPICount, Payload: homie.Int(p.quota.Count)},
			homie.Value{Property: PropAPILimit, Payload: homie.Int(p.quota.Limit)},
			homie.Value{Property: PropAPILimitType, Payload: p.quota.Kind},
		)
	}
	return values
}

func (p *Poller) statusValues() []homie.Value {
	st := p.status
	return []homie.Value{
		{Property: PropLoadShedding, Payload: homie.Bool(st.LoadShedding)},
		{Property: PropWarning5Min, Payload: homie.Bool(st.Warning5Min)},
		{Property: PropWarning15Min, Payload: homie.Bool(st.Warning15Min)},
		{Property: PropNextStart, Payload: st.NextStart.Format(homie.DateTimeLayout, p.cfg.Location)},
		{Property: PropNextEnd, Payload: st.NextEnd.Format(homie.DateTimeLayout, p.cfg.Location)},
		{Property: PropEndOfCurrent, Payload: st.EndOfCurrent.Format(homie.DateTimeLayout, p.cfg.Location)},
		{Property: PropNote, Payload: st.Note},
	}
}

// eventValues lists the i-th (0-based) event in feed order, or empty values
// to clear a slot with no event.
func (p *Poller) eventValues(i int) []homie.Value {
	var ev event.Event
	if i < len(p.schedule.Events) {
		ev = p.schedule.Events[i]
	}
	return []homie.Value{
		{Property: PropEventStart, Payload: homie.DateTime(ev.Start, p.cfg.Location)},
		{Property: PropEventEnd, Payload: homie.DateTime(ev.End, p.cfg.Location)},
		{Property: PropEventNote, Payload: ev.Note},
	}
}

func (p *Poller) record(err error) {
	if err != nil {
		p.log.Warnf("record metrics: %v", err)
	}
}
