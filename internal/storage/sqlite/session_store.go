package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodtune/apptime/internal/storage"
)

const timeLayout = time.RFC3339Nano

// legacyTimeLayout reads the zone-less ISO timestamps of older
// timetracker.db files, which hold local wall time. A fractional second
// is accepted when present.
const legacyTimeLayout = "2006-01-02T15:04:05"

type sessionStore struct {
	db *sql.DB
}

// Append inserts one session inside a transaction. The app id is checked in
// the same transaction so a record never points at a missing app.
func (s *sessionStore) Append(ctx context.Context, record storage.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM apps WHERE rowid = ?`, record.EntityID).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("check app %d: %w", record.EntityID, err)
	}
	if exists == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("%w: id %d", storage.ErrUnknownEntity, record.EntityID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO time_tracking (app_id, start_time, end_time, seconds)
		VALUES (?, ?, ?, ?)
	`,
		record.EntityID,
		record.StartTime.Format(timeLayout),
		record.EndTime.Format(timeLayout),
		record.Seconds,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *sessionStore) SumByEntity(ctx context.Context) ([]storage.EntityTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT apps.name, SUM(time_tracking.seconds)
		FROM time_tracking
		JOIN apps ON time_tracking.app_id = apps.rowid
		GROUP BY apps.name
	`)
	if err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}
	defer rows.Close()

	totals := make([]storage.EntityTotal, 0)
	for rows.Next() {
		var total storage.EntityTotal
		if err := rows.Scan(&total.Name, &total.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

func (s *sessionStore) List(ctx context.Context, name string) ([]storage.SessionRecord, error) {
	query := `
		SELECT time_tracking.app_id, apps.name, time_tracking.start_time, time_tracking.end_time, time_tracking.seconds
		FROM time_tracking
		JOIN apps ON time_tracking.app_id = apps.rowid`
	args := []any{}
	if name != "" {
		query += ` WHERE apps.name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY time_tracking.rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]storage.SessionRecord, 0)
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	storage.SortByStart(records)
	return records, nil
}

func scanSession(rows *sql.Rows) (storage.SessionRecord, error) {
	var (
		record     storage.SessionRecord
		start, end string
	)
	if err := rows.Scan(&record.EntityID, &record.Entity, &start, &end, &record.Seconds); err != nil {
		return record, fmt.Errorf("scan session: %w", err)
	}

	var err error
	if record.StartTime, err = parseTime(start); err != nil {
		return record, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if record.EndTime, err = parseTime(end); err != nil {
		return record, fmt.Errorf("failed to parse end_time: %w", err)
	}
	return record, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	if legacy, legacyErr := time.ParseInLocation(legacyTimeLayout, value, time.Local); legacyErr == nil {
		return legacy, nil
	}
	return time.Time{}, err
}
