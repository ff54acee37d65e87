package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/logger"
	"coop_door/internal/models"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurement           = "coop_door"
	pingTimeout           = 5 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 // seconds
	millisecondsPerSecond = 1000
)

var ErrInfluxUnhealthy = errors.New("influxdb not healthy")

// pointWriter is satisfied by api.WriteAPI.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder writes one point per control tick with the fused light level,
// debounced position and door state. Writes are batched and non-blocking.
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	doorID string
	log    *logger.Logger
}

func NewInfluxRecorder(cfg config.InfluxDBConfig, doorID string, log *logger.Logger) (*InfluxRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*millisecondsPerSecond))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		client.Close()
		return nil, ErrInfluxUnhealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := newInfluxRecorder(writeAPI, doorID, log)
	r.client = client
	go r.logErrors(writeAPI.Errors())
	return r, nil
}

func newInfluxRecorder(w pointWriter, doorID string, log *logger.Logger) *InfluxRecorder {
	return &InfluxRecorder{writer: w, doorID: doorID, log: log.Named("influxdb")}
}

func (r *InfluxRecorder) logErrors(errs <-chan error) {
	for err := range errs {
		r.log.Warnw("influx_write_failed", "err", err)
	}
}

// Publish records every tick regardless of changed.
func (r *InfluxRecorder) Publish(st models.DoorStatus, changed bool) {
	ts := st.Reading.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	r.writer.WritePoint(statusPoint(r.doorID, st, ts))
}

func statusPoint(doorID string, st models.DoorStatus, ts time.Time) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{"door_id": doorID},
		map[string]interface{}{
			"light":        st.Reading.LightLevel,
			"light_stable": st.Reading.LightStable,
			"position":     string(st.Reading.Position),
			"state":        string(st.State),
		},
		ts,
	)
}

// Close flushes pending points and closes the client.
func (r *InfluxRecorder) Close() error {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
