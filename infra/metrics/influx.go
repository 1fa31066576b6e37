package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/loadshed-mqtt/core/metrics"
	"github.com/kilianp07/loadshed-mqtt/infra/logger"
)

// InfluxSink writes the status history to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStatus writes a status snapshot.
func (s *InfluxSink) RecordStatus(ev coremetrics.StatusEvent) error {
	st := ev.Status
	p := write.NewPointWithMeasurement("loadshed_status").
		AddTag("area", ev.AreaID).
		AddField("loadshedding", st.LoadShedding).
		AddField("warning_5min", st.Warning5Min).
		AddField("warning_15min", st.Warning15Min).
		AddField("events", ev.Events).
		AddField("note", st.Note)
	if t, ok := st.NextStart.Time(); ok {
		p = p.AddField("next_start", t.Unix())
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordAllowance writes a quota reading.
func (s *InfluxSink) RecordAllowance(ev coremetrics.AllowanceEvent) error {
	q := ev.State
	p := write.NewPointWithMeasurement("esp_allowance").
		AddTag("type", q.Kind).
		AddField("count", q.Count).
		AddField("limit", q.Limit).
		AddField("remaining", q.Remaining()).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordFetch writes one API call.
func (s *InfluxSink) RecordFetch(ev coremetrics.FetchEvent) error {
	p := write.NewPointWithMeasurement("esp_fetch").
		AddTag("endpoint", ev.Endpoint).
		AddField("ok", ev.Err == nil).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAction is not stored in InfluxDB; the Prometheus counter covers it.
func (s *InfluxSink) RecordAction(coremetrics.ActionEvent) error { return nil }

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
