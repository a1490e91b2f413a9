package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/calden87/tuyatrace/internal/infrastructure/database"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
	_ "github.com/calden87/tuyatrace/migrations"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return New(db, logging.Default())
}

func record(deviceID, eventID string, eventTime int64) Record {
	return Record{
		DeviceID:  deviceID,
		EventID:   eventID,
		EventTime: eventTime,
		Source:    "poll",
		Code:      "switch_1",
		Value:     "true",
		Status:    "1",
		RawJSON:   `{"code":"switch_1","value":true}`,
	}
}

func TestUpsertLogsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	batch := []Record{
		record("dev1", "e1", 1000),
		record("dev1", "e2", 2000),
		record("dev2", "e3", 1500),
	}

	n, err := s.UpsertLogs(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("first insert = %d, want 3", n)
	}

	// Same batch again: nothing new.
	n, err = s.UpsertLogs(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second insert = %d, want 0", n)
	}

	all, err := s.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("stored = %d, want 3", len(all))
	}
}

func TestUpsertLogsDeduplicatesAcrossSplits(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// The same logical set offered in overlapping batches from two
	// producers, in shuffled order.
	full := []Record{
		record("dev1", "e1", 1000),
		record("dev1", "e2", 2000),
		record("dev1", "e3", 3000),
		record("dev2", "e4", 1200),
	}
	splits := [][]Record{
		{full[1], full[0]},
		{full[2], full[1], full[3]},
		{full[0], full[3]},
	}

	total := 0
	for _, batch := range splits {
		// Stream-sourced duplicates carry a different source but the
		// same key; they must still dedupe.
		for i := range batch {
			batch[i].Source = "stream"
		}
		n, err := s.UpsertLogs(ctx, batch)
		if err != nil {
			t.Fatal(err)
		}
		total += n
	}
	if total != len(full) {
		t.Errorf("total inserted = %d, want %d", total, len(full))
	}

	all, err := s.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(full) {
		t.Errorf("stored = %d, want %d", len(all), len(full))
	}
}

func TestUpsertLogsDedupKeyComponents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := record("dev1", "e1", 1000)
	differentTime := base
	differentTime.EventTime = 1001
	differentDevice := base
	differentDevice.DeviceID = "dev2"
	differentEvent := base
	differentEvent.EventID = "e2"

	n, err := s.UpsertLogs(ctx, []Record{base, differentTime, differentDevice, differentEvent})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("inserted = %d, want 4 distinct keys", n)
	}
}

func TestUpsertLogsEmptyBatch(t *testing.T) {
	s := testStore(t)
	n, err := s.UpsertLogs(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("inserted = %d, want 0", n)
	}
}

func TestQueryOrderingAndFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Inserted deliberately out of time order.
	batch := []Record{
		record("dev1", "e3", 3000),
		record("dev1", "e1", 1000),
		record("dev2", "e4", 2500),
		record("dev1", "e2", 2000),
	}
	if _, err := s.UpsertLogs(ctx, batch); err != nil {
		t.Fatal(err)
	}

	t.Run("ascending by event time", func(t *testing.T) {
		got, err := s.Query(ctx, Filter{DeviceID: "dev1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].EventTime < got[i-1].EventTime {
				t.Errorf("results not ascending at %d: %d < %d", i, got[i].EventTime, got[i-1].EventTime)
			}
		}
	})

	t.Run("time range inclusive", func(t *testing.T) {
		got, err := s.Query(ctx, Filter{DeviceID: "dev1", Since: 1000, Until: 2000})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.Query(ctx, Filter{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].EventTime != 1000 {
			t.Errorf("limit must keep ascending order, first = %d", got[0].EventTime)
		}
	})

	t.Run("limit with offset", func(t *testing.T) {
		got, err := s.Query(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].EventTime != 2500 {
			t.Errorf("offset should skip two oldest rows, first = %d", got[0].EventTime)
		}
	})

	t.Run("code filter", func(t *testing.T) {
		got, err := s.Query(ctx, Filter{Code: "no_such_code"})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
	})
}

func TestCursors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("absent cursor", func(t *testing.T) {
		_, ok, err := s.Cursor(ctx, "dev1")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("expected no cursor for a new device")
		}
	})

	t.Run("set and read back", func(t *testing.T) {
		if err := s.SetCursor(ctx, "dev1", 5000); err != nil {
			t.Fatal(err)
		}
		ts, ok, err := s.Cursor(ctx, "dev1")
		if err != nil {
			t.Fatal(err)
		}
		if !ok || ts != 5000 {
			t.Errorf("cursor = (%d, %v), want (5000, true)", ts, ok)
		}
	})

	t.Run("advance overwrites", func(t *testing.T) {
		if err := s.SetCursor(ctx, "dev1", 9000); err != nil {
			t.Fatal(err)
		}
		ts, _, err := s.Cursor(ctx, "dev1")
		if err != nil {
			t.Fatal(err)
		}
		if ts != 9000 {
			t.Errorf("cursor = %d, want 9000", ts)
		}
	})

	t.Run("all cursors", func(t *testing.T) {
		if err := s.SetCursor(ctx, "dev2", 100); err != nil {
			t.Fatal(err)
		}
		all, err := s.AllCursors(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 {
			t.Fatalf("len = %d, want 2", len(all))
		}
		if all[0].DeviceID != "dev1" || all[1].DeviceID != "dev2" {
			t.Errorf("order = %s, %s", all[0].DeviceID, all[1].DeviceID)
		}
	})
}

func TestRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("no runs yet", func(t *testing.T) {
		last, err := s.LastRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if last != nil {
			t.Errorf("last = %+v, want nil", last)
		}
	})

	id, err := s.StartRun(ctx)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("running until finished", func(t *testing.T) {
		last, err := s.LastRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if last == nil || last.Status != RunRunning {
			t.Fatalf("last = %+v, want running", last)
		}
	})

	t.Run("finish records outcome", func(t *testing.T) {
		if err := s.FinishRun(ctx, id, 5, 1, 42, RunCompleted); err != nil {
			t.Fatal(err)
		}
		last, err := s.LastRun(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if last.DevicesSeen != 5 || last.DevicesFailed != 1 || last.LogsInserted != 42 {
			t.Errorf("last = %+v", last)
		}
		if last.Status != RunCompleted {
			t.Errorf("status = %s", last.Status)
		}
		if last.FinishedAt == 0 {
			t.Error("FinishedAt not set")
		}
	})

	t.Run("finish unknown run", func(t *testing.T) {
		err := s.FinishRun(ctx, "no-such-run", 0, 0, 0, RunFailed)
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("err = %v, want ErrRunNotFound", err)
		}
	})
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		st, err := s.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if st.TotalLogs != 0 || st.Devices != 0 || st.LastRun != nil {
			t.Errorf("stats = %+v", st)
		}
	})

	if _, err := s.UpsertLogs(ctx, []Record{
		record("dev1", "e1", 1000),
		record("dev1", "e2", 3000),
		record("dev2", "e3", 2000),
	}); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalLogs != 3 || st.Devices != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.OldestEvent != 1000 || st.NewestEvent != 3000 {
		t.Errorf("range = (%d, %d)", st.OldestEvent, st.NewestEvent)
	}
}

func TestCollectedAtSetByStore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fixed := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return fixed }

	if _, err := s.UpsertLogs(ctx, []Record{record("dev1", "e1", 1000)}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Query(ctx, Filter{DeviceID: "dev1"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].CollectedAt != fixed.UnixMilli() {
		t.Errorf("CollectedAt = %d, want %d", got[0].CollectedAt, fixed.UnixMilli())
	}
}

// Cursor safety: a failed batch advances nothing; a retried cycle over a
// superset window converges to the same deduplicated state.
func TestCursorSafetyOnRetriedWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// First attempt stores the window but the cycle dies before the
	// cursor write. The retry re-requests the same window plus overlap.
	window := []Record{
		record("dev1", "e1", 1000),
		record("dev1", "e2", 2000),
	}
	if _, err := s.UpsertLogs(ctx, window); err != nil {
		t.Fatal(err)
	}

	// Cursor never advanced; retry covers a superset.
	retry := append([]Record{record("dev1", "e0", 500)}, window...)
	n, err := s.UpsertLogs(ctx, retry)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("retry inserted = %d, want 1 (only the new record)", n)
	}

	all, err := s.Query(ctx, Filter{DeviceID: "dev1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("stored = %d, want 3", len(all))
	}
}
