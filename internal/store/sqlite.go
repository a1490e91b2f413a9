package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calden87/tuyatrace/internal/infrastructure/database"
	"github.com/calden87/tuyatrace/internal/infrastructure/logging"
)

// Store is the SQLite-backed log store.
//
// Thread Safety:
//   - All methods are safe for concurrent use; SQLite serializes writes
//     through the single connection configured by the database package.
type Store struct {
	db  *database.DB
	log *logging.Logger

	// Injectable for deterministic tests.
	now func() time.Time
}

// New creates a Store on an open database. The schema must already be
// migrated.
func New(db *database.DB, log *logging.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With("component", "store"),
		now: time.Now,
	}
}

// UpsertLogs stores a batch of records and returns how many were newly
// inserted. Records whose deduplication key already exists are silently
// skipped. The batch is transactional: on failure none of it applies.
func (s *Store) UpsertLogs(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO device_logs
			(device_id, event_id, event_time, source, code, value, status, raw_json, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("%w: preparing insert: %v", ErrStorage, err)
	}
	defer stmt.Close() //nolint:errcheck // read side close

	collectedAt := s.now().UnixMilli()
	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.DeviceID, r.EventID, r.EventTime, r.Source,
			r.Code, r.Value, r.Status, r.RawJSON, collectedAt)
		if err != nil {
			return 0, fmt.Errorf("%w: inserting log for %s: %v", ErrStorage, r.DeviceID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing batch: %v", ErrStorage, err)
	}
	return inserted, nil
}

// Cursor returns a device's collection watermark. ok is false when the
// device has never been collected.
func (s *Store) Cursor(ctx context.Context, deviceID string) (ts int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT last_event_time FROM collection_cursors WHERE device_id = ?`,
		deviceID).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading cursor for %s: %v", ErrStorage, deviceID, err)
	}
	return ts, true, nil
}

// SetCursor advances a device's collection watermark.
func (s *Store) SetCursor(ctx context.Context, deviceID string, ts int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_cursors (device_id, last_event_time, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			last_event_time = excluded.last_event_time,
			updated_at = excluded.updated_at`,
		deviceID, ts, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: writing cursor for %s: %v", ErrStorage, deviceID, err)
	}
	return nil
}

// AllCursors returns every device's watermark, for the status command.
func (s *Store) AllCursors(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, last_event_time, updated_at FROM collection_cursors ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing cursors: %v", ErrStorage, err)
	}
	defer rows.Close() //nolint:errcheck // read side close

	var cursors []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.DeviceID, &c.LastEventTime, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return cursors, nil
}

// Query returns stored records matching f, ordered by EventTime
// ascending regardless of insertion order.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.Code != "" {
		where = append(where, "code = ?")
		args = append(args, f.Code)
	}
	if f.Since > 0 {
		where = append(where, "event_time >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		where = append(where, "event_time <= ?")
		args = append(args, f.Until)
	}

	query := `SELECT device_id, event_id, event_time, source, code, value, status, raw_json, collected_at
		FROM device_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_time ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying logs: %v", ErrStorage, err)
	}
	defer rows.Close() //nolint:errcheck // read side close

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.DeviceID, &r.EventID, &r.EventTime, &r.Source,
			&r.Code, &r.Value, &r.Status, &r.RawJSON, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return records, nil
}

// StartRun records the beginning of a collector cycle and returns its
// identifier.
func (s *Store) StartRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, s.now().UnixMilli(), RunRunning)
	if err != nil {
		return "", fmt.Errorf("%w: recording run start: %v", ErrStorage, err)
	}
	return id, nil
}

// FinishRun records the outcome of a collector cycle.
func (s *Store) FinishRun(ctx context.Context, id string, seen, failed, inserted int, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collection_runs
		SET finished_at = ?, devices_seen = ?, devices_failed = ?, logs_inserted = ?, status = ?
		WHERE id = ?`,
		s.now().UnixMilli(), seen, failed, inserted, status, id)
	if err != nil {
		return fmt.Errorf("%w: recording run end: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// LastRun returns the most recently started collector cycle, or nil when
// none has run.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	var (
		r        Run
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, devices_seen, devices_failed, logs_inserted, status
		FROM collection_runs ORDER BY started_at DESC, id DESC LIMIT 1`).
		Scan(&r.ID, &r.StartedAt, &finished, &r.DevicesSeen, &r.DevicesFailed, &r.LogsInserted, &r.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading last run: %v", ErrStorage, err)
	}
	r.FinishedAt = finished.Int64
	return &r, nil
}

// Stats returns aggregate counts for the status command.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var (
		st     Stats
		oldest sql.NullInt64
		newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT device_id),
			COALESCE(MIN(event_time), 0), COALESCE(MAX(event_time), 0)
		FROM device_logs`).
		Scan(&st.TotalLogs, &st.Devices, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stats: %v", ErrStorage, err)
	}
	st.OldestEvent = oldest.Int64
	st.NewestEvent = newest.Int64

	last, err := s.LastRun(ctx)
	if err != nil {
		return nil, err
	}
	st.LastRun = last
	return &st, nil
}
