package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// Create inserts an execution record and returns its id.
func (s *HistoryStore) Create(ctx context.Context, rec domain.HistoryRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var completed sql.NullInt64
	if rec.CompletedAt != nil {
		completed = sql.NullInt64{Int64: rec.CompletedAt.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, schedule_id, task_id, started_at, completed_at, status, error_message, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ScheduleID, rec.TaskID, unixOrZero(rec.StartedAt), completed,
		string(rec.Status), rec.ErrorMessage, rec.DurationSeconds)
	if err != nil {
		return "", fmt.Errorf("failed to insert history record: %w", err)
	}
	return rec.ID, nil
}

// Finalize writes the terminal fields of a running record.
func (s *HistoryStore) Finalize(ctx context.Context, id string, upd domain.HistoryUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE history SET
			completed_at = ?, status = ?, error_message = ?, duration_seconds = ?, task_id = ?
		WHERE id = ?`,
		nullableUnix(upd.CompletedAt), string(upd.Status), upd.ErrorMessage,
		upd.DurationSeconds, upd.TaskID, id)
	if err != nil {
		return fmt.Errorf("failed to finalize history record: %w", err)
	}
	return requireRow(res, domain.ErrHistoryNotFound)
}

// ListBySchedule returns the most recent records, newest first.
func (s *HistoryStore) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, task_id, started_at, completed_at, status, error_message, duration_seconds
		FROM history
		WHERE schedule_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes terminal records started before cutoff.
func (s *HistoryStore) DeleteOlderThan(ctx context.Context, scheduleID string, cutoff time.Time, statuses []domain.HistoryStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{scheduleID, cutoff.Unix()}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM history
		WHERE schedule_id = ? AND started_at < ?
		AND status IN (`+statusPlaceholders(len(statuses))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history by age: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// IDsBeyondCount lists every record past the keep newest ones.
func (s *HistoryStore) IDsBeyondCount(ctx context.Context, scheduleID string, keep int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM history
		WHERE schedule_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT -1 OFFSET ?`, scheduleID, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to query history overflow: %w", err)
	}
	return collectIDs(rows)
}

// DeleteByIDs removes the given records.
func (s *HistoryStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE id IN (`+statusPlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history records: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Get returns one record by id.
func (s *HistoryStore) Get(ctx context.Context, id string) (domain.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, task_id, started_at, completed_at, status, error_message, duration_seconds
		FROM history WHERE id = ?`, id)
	rec, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryRecord{}, domain.ErrHistoryNotFound
	}
	return rec, err
}

func scanHistory(row rowScanner) (domain.HistoryRecord, error) {
	var (
		rec       domain.HistoryRecord
		started   int64
		completed sql.NullInt64
		status    string
	)
	err := row.Scan(&rec.ID, &rec.ScheduleID, &rec.TaskID, &started, &completed,
		&status, &rec.ErrorMessage, &rec.DurationSeconds)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.StartedAt = timeFromUnix(started)
	if completed.Valid {
		t := timeFromUnix(completed.Int64)
		rec.CompletedAt = &t
	}
	rec.Status = domain.HistoryStatus(status)
	return rec, nil
}
