package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/calden87/tuyatrace/internal/infrastructure/config"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	"github.com/calden87/tuyatrace/internal/store"
	"github.com/calden87/tuyatrace/internal/tuya"
)

// rateLimitRetries bounds in-cycle retries of a rate-limited page.
const rateLimitRetries = 3

// API is the slice of the cloud client the collector needs.
type API interface {
	// AllDevices enumerates the device universe.
	AllDevices(ctx context.Context, pageSize int) ([]tuya.Device, error)

	// DeviceLogs fetches one page of event history.
	DeviceLogs(ctx context.Context, deviceID string, startTime, endTime int64, eventTypes string, pageSize int, lastRowKey string) (*tuya.LogPage, error)
}

// LogStore is the slice of the store the collector writes through.
type LogStore interface {
	UpsertLogs(ctx context.Context, records []store.Record) (int, error)
	Cursor(ctx context.Context, deviceID string) (int64, bool, error)
	SetCursor(ctx context.Context, deviceID string, ts int64) error
	StartRun(ctx context.Context) (string, error)
	FinishRun(ctx context.Context, id string, seen, failed, inserted int, status string) error
}

// Result summarizes one collection cycle.
type Result struct {
	DevicesFound  int
	DevicesOK     int
	DevicesFailed int
	LogsFetched   int
	LogsInserted  int
	Duration      time.Duration
	Errors        []string
}

// Collector reconciles polled device history into the store.
type Collector struct {
	api   API
	store LogStore
	cfg   config.CollectorConfig
	log   *logging.Logger

	// Injectable for deterministic tests.
	now func() time.Time
}

// New creates a Collector.
func New(api API, st LogStore, cfg config.CollectorConfig, log *logging.Logger) *Collector {
	return &Collector{
		api:   api,
		store: st,
		cfg:   cfg,
		log:   log.With("component", "collector"),
		now:   time.Now,
	}
}

// Collect runs one cycle across every known device.
//
// Per-device failures are absorbed into the Result; the returned error is
// non-nil only for cycle-level failures (device enumeration, run
// bookkeeping) that make the whole cycle meaningless.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	started := c.now()
	result := &Result{}

	runID, err := c.store.StartRun(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := c.api.AllDevices(ctx, c.cfg.PageSize)
	if err != nil {
		c.finishRun(ctx, runID, result, store.RunFailed)
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	result.DevicesFound = len(devices)
	c.log.Info("collection cycle started", "devices", len(devices))

	for _, dev := range devices {
		if dev.ID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			c.finishRun(ctx, runID, result, store.RunFailed)
			return result, err
		}

		if err := c.collectDevice(ctx, dev, result); err != nil {
			result.DevicesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", dev.DisplayName(), dev.ID, err))
			c.log.Error("device collection failed", "device_id", dev.ID, "error", err)
		} else {
			result.DevicesOK++
		}

		if !c.wait(ctx, c.cfg.RequestDelay) {
			c.finishRun(ctx, runID, result, store.RunFailed)
			return result, ctx.Err()
		}
	}

	result.Duration = c.now().Sub(started)
	status := store.RunCompleted
	if result.DevicesFailed > 0 {
		status = store.RunCompletedWithWarns
	}
	c.finishRun(ctx, runID, result, status)

	c.log.Info("collection cycle finished",
		"devices_ok", result.DevicesOK,
		"devices_failed", result.DevicesFailed,
		"logs_inserted", result.LogsInserted,
		"duration", result.Duration)
	return result, nil
}

// finishRun records the cycle outcome; failure here is logged, never
// allowed to mask the cycle's own result.
func (c *Collector) finishRun(ctx context.Context, runID string, r *Result, status string) {
	if err := c.store.FinishRun(ctx, runID, r.DevicesFound, r.DevicesFailed, r.LogsInserted, status); err != nil {
		c.log.Error("recording run outcome failed", "run_id", runID, "error", err)
	}
}

// collectDevice reconciles one device's history window into the store and
// advances its cursor. The cursor moves only after the batch is durably
// stored; on any failure it is left untouched for the next cycle.
func (c *Collector) collectDevice(ctx context.Context, dev tuya.Device, result *Result) error {
	endTime := c.now().UnixMilli()

	startTime, ok, err := c.store.Cursor(ctx, dev.ID)
	if err != nil {
		return err
	}
	if ok {
		// Overlap by one second; same-millisecond events on the boundary
		// re-fetch harmlessly and dedupe.
		startTime -= 1000
	} else {
		lookback := int64(c.cfg.LookbackDays) * 24 * int64(time.Hour/time.Millisecond)
		startTime = endTime - lookback
	}

	records, err := c.fetchWindow(ctx, dev.ID, startTime, endTime)
	if err != nil {
		return err
	}
	result.LogsFetched += len(records)
	if len(records) == 0 {
		c.log.Debug("no new logs", "device_id", dev.ID)
		return nil
	}

	inserted, err := c.store.UpsertLogs(ctx, records)
	if err != nil {
		return err
	}
	result.LogsInserted += inserted

	var newest int64
	for _, r := range records {
		if r.EventTime > newest {
			newest = r.EventTime
		}
	}
	if err := c.store.SetCursor(ctx, dev.ID, newest); err != nil {
		return err
	}

	c.log.Info("device collected",
		"device", dev.DisplayName(), "fetched", len(records), "new", inserted)
	return nil
}

// fetchWindow pages through a device's history in [startTime, endTime].
func (c *Collector) fetchWindow(ctx context.Context, deviceID string, startTime, endTime int64) ([]store.Record, error) {
	var (
		records    []store.Record
		lastRowKey string
	)

	maxPages := c.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	for page := 0; page < maxPages; page++ {
		logPage, err := c.fetchPage(ctx, deviceID, startTime, endTime, lastRowKey)
		if err != nil {
			return nil, err
		}

		for _, entry := range logPage.Logs {
			records = append(records, recordFromEntry(deviceID, entry))
		}

		if !logPage.HasNext {
			break
		}
		// Defend against a stuck pagination token.
		if logPage.NextRowKey == "" || logPage.NextRowKey == lastRowKey {
			break
		}
		lastRowKey = logPage.NextRowKey

		if !c.wait(ctx, c.cfg.RequestDelay) {
			return nil, ctx.Err()
		}
	}
	return records, nil
}

// fetchPage fetches one page, retrying rate-limited responses within the
// cycle. The executor surfaces rate limits rather than retrying them; the
// collector is the layer that can afford to wait.
func (c *Collector) fetchPage(ctx context.Context, deviceID string, startTime, endTime int64, lastRowKey string) (*tuya.LogPage, error) {
	for attempt := 0; ; attempt++ {
		page, err := c.api.DeviceLogs(ctx, deviceID, startTime, endTime,
			c.cfg.EventTypes, c.cfg.PageSize, lastRowKey)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, tuya.ErrRateLimited) || attempt >= rateLimitRetries {
			return nil, err
		}

		delay := retryDelay(err, attempt)
		c.log.Warn("rate limited, backing off",
			"device_id", deviceID, "delay", delay, "attempt", attempt+1)
		if !c.wait(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

// retryDelay picks the wait before retrying a rate-limited page: the
// server's hint when present, else 10s doubling per attempt.
func retryDelay(err error, attempt int) time.Duration {
	var apiErr *tuya.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return 10 * time.Second << attempt
}

// wait sleeps for d unless ctx is cancelled first.
func (c *Collector) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// recordFromEntry maps one vendor log entry to a storable record.
func recordFromEntry(deviceID string, e tuya.LogEntry) store.Record {
	raw, _ := json.Marshal(e)
	return store.Record{
		DeviceID:  deviceID,
		EventID:   strconv.FormatInt(e.EventID, 10),
		EventTime: e.EventTime,
		Source:    "poll",
		Code:      e.Code,
		Value:     string(e.Value),
		Status:    e.Status,
		RawJSON:   string(raw),
	}
}
