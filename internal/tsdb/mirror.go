package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	"github.com/calden87/tuyatrace/internal/store"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the client API.
	millisecondsPerSecond = 1000
)

// Mirror writes numeric device datapoints to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are non-blocking and batched.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig
	log      *logging.Logger

	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Connect establishes the InfluxDB connection and verifies it with a
// ping. Returns ErrDisabled when the mirror is off in config.
func Connect(cfg config.InfluxDBConfig, log *logging.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	m := &Mirror{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		log:       log.With("component", "tsdb"),
		connected: true,
	}

	go m.handleWriteErrors(m.writeAPI.Errors())
	return m, nil
}

// handleWriteErrors processes async write errors from the write API.
func (m *Mirror) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		m.mu.RLock()
		callback := m.onError
		m.mu.RUnlock()

		if callback != nil {
			callback(err)
		} else {
			m.log.Warn("async write failed", "error", err)
		}
	}
}

// Publish mirrors one stored record when its value is numeric. It
// satisfies the watcher's sink contract; non-numeric values are skipped
// without error.
func (m *Mirror) Publish(ctx context.Context, rec store.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}

	value, ok := numericValue(rec.Value)
	if !ok {
		return nil
	}

	point := write.NewPoint(
		"device_events",
		map[string]string{
			"device_id": rec.DeviceID,
			"code":      rec.Code,
			"source":    rec.Source,
		},
		map[string]interface{}{
			"value": value,
		},
		time.UnixMilli(rec.EventTime),
	)
	m.writeAPI.WritePoint(point)
	return nil
}

// numericValue extracts a float from a record value. Values arrive as
// JSON scalars ("21.5", "true") or raw strings; booleans count as 0/1
// so switch datapoints chart cleanly.
func numericValue(v string) (float64, bool) {
	var f float64
	if err := json.Unmarshal([]byte(v), &f); err == nil {
		return f, true
	}
	var b bool
	if err := json.Unmarshal([]byte(v), &b); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}
	// Numbers sometimes arrive wrapped in quotes.
	var s string
	if err := json.Unmarshal([]byte(v), &s); err == nil {
		if err := json.Unmarshal([]byte(s), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// IsConnected returns the last known connection state.
func (m *Mirror) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// HealthCheck verifies the InfluxDB connection with an active ping.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := m.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("tsdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("tsdb health check failed: server not healthy")
	}
	return nil
}

// SetOnError sets a callback for async write failures.
func (m *Mirror) SetOnError(callback func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = callback
}

// Flush forces pending writes out. Safe to call when disconnected.
func (m *Mirror) Flush() {
	if m.writeAPI == nil {
		return
	}
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	if connected {
		m.writeAPI.Flush()
	}
}

// Close flushes pending writes and shuts the client down.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	m.writeAPI.Flush()
	m.client.Close()
	return nil
}
