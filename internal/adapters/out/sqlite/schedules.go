package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/virtwarden/virtwarden/internal/domain"
)

const scheduleColumns = `id, tenant_id, name, cluster_id, node, vmid,
	trigger_kind, trigger_value, retention_days, retention_count,
	compression, mode, storage,
	notify_on_success, notify_on_failure, notify_email,
	enabled, next_run, last_run, last_status, last_error, claimed_until,
	created_at, updated_at`

// Create inserts a new backup schedule.
func (s *ScheduleStore) Create(ctx context.Context, sched domain.Schedule) error {
	days, count := retentionColumns(sched.Retention)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.TenantID, sched.Name, sched.ClusterID, sched.Node, sched.VMID,
		string(sched.Trigger.Kind), sched.Trigger.Value(), days, count,
		sched.Options.Compression, sched.Options.Mode, sched.Options.Storage,
		boolToInt(sched.NotifyOnSuccess), boolToInt(sched.NotifyOnFailure), sched.NotifyEmail,
		boolToInt(sched.Enabled), unixOrZero(sched.NextRun), nullableUnix(sched.LastRun),
		string(sched.LastStatus), sched.LastError, unixOrZero(sched.ClaimedUntil),
		unixOrZero(sched.CreatedAt), unixOrZero(sched.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// Update rewrites all mutable fields of a schedule.
func (s *ScheduleStore) Update(ctx context.Context, sched domain.Schedule) error {
	days, count := retentionColumns(sched.Retention)
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			tenant_id = ?, name = ?, cluster_id = ?, node = ?, vmid = ?,
			trigger_kind = ?, trigger_value = ?, retention_days = ?, retention_count = ?,
			compression = ?, mode = ?, storage = ?,
			notify_on_success = ?, notify_on_failure = ?, notify_email = ?,
			enabled = ?, next_run = ?, updated_at = ?
		WHERE id = ?`,
		sched.TenantID, sched.Name, sched.ClusterID, sched.Node, sched.VMID,
		string(sched.Trigger.Kind), sched.Trigger.Value(), days, count,
		sched.Options.Compression, sched.Options.Mode, sched.Options.Storage,
		boolToInt(sched.NotifyOnSuccess), boolToInt(sched.NotifyOnFailure), sched.NotifyEmail,
		boolToInt(sched.Enabled), unixOrZero(sched.NextRun), unixOrZero(sched.UpdatedAt),
		sched.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireRow(res, domain.ErrScheduleNotFound)
}

// Delete removes a schedule and its history.
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE schedule_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete schedule history: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if err := requireRow(res, domain.ErrScheduleNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns one schedule by id.
func (s *ScheduleStore) Get(ctx context.Context, id string) (domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return sched, err
}

// List returns schedules, optionally filtered by tenant, ordered by name.
func (s *ScheduleStore) List(ctx context.Context, tenantID string) ([]domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// SetEnabled toggles a schedule without touching its trigger state.
func (s *ScheduleStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to toggle schedule: %w", err)
	}
	return requireRow(res, domain.ErrScheduleNotFound)
}

// ClaimDue atomically leases every enabled schedule that is due and not
// already claimed, and returns the leased rows.
func (s *ScheduleStore) ClaimDue(ctx context.Context, now, until time.Time) ([]domain.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM schedules
		WHERE enabled = 1 AND next_run <= ? AND claimed_until <= ?
		ORDER BY next_run`, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, until.Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET claimed_until = ? WHERE id IN (`+statusPlaceholders(len(ids))+`)`,
		args...); err != nil {
		return nil, fmt.Errorf("failed to stamp leases: %w", err)
	}

	var out []domain.Schedule
	for _, id := range ids {
		row := tx.QueryRowContext(ctx,
			`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
		sched, err := scanSchedule(row)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, tx.Commit()
}

// Claim leases a single schedule for an immediate run.
func (s *ScheduleStore) Claim(ctx context.Context, id string, now, until time.Time) (domain.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE schedules SET claimed_until = ?
		WHERE id = ? AND claimed_until <= ?`,
		until.Unix(), id, now.Unix())
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to claim schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Schedule{}, err
	}
	if n == 0 {
		// Distinguish a missing row from a held lease.
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM schedules WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Schedule{}, domain.ErrScheduleNotFound
		}
		if err != nil {
			return domain.Schedule{}, err
		}
		return domain.Schedule{}, fmt.Errorf("schedule %s is already running", id)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		return domain.Schedule{}, err
	}
	return sched, tx.Commit()
}

// UpdateTrigger persists the post-run trigger state and releases the lease.
func (s *ScheduleStore) UpdateTrigger(ctx context.Context, id string, upd domain.TriggerUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			last_run = ?, next_run = ?, last_status = ?, last_error = ?,
			claimed_until = 0, updated_at = ?
		WHERE id = ?`,
		nullableUnix(upd.LastRun), unixOrZero(upd.NextRun),
		string(upd.LastStatus), upd.LastError, unixOrZero(upd.LastRun), id)
	if err != nil {
		return fmt.Errorf("failed to update trigger state: %w", err)
	}
	return requireRow(res, domain.ErrScheduleNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		sched                              domain.Schedule
		kind, value, lastStatus            string
		days, count, lastRun               sql.NullInt64
		notifySuccess, notifyFail, enabled int
		nextRun, claimed, created, updated int64
	)
	err := row.Scan(
		&sched.ID, &sched.TenantID, &sched.Name, &sched.ClusterID, &sched.Node, &sched.VMID,
		&kind, &value, &days, &count,
		&sched.Options.Compression, &sched.Options.Mode, &sched.Options.Storage,
		&notifySuccess, &notifyFail, &sched.NotifyEmail,
		&enabled, &nextRun, &lastRun, &lastStatus, &sched.LastError, &claimed,
		&created, &updated)
	if err != nil {
		return domain.Schedule{}, err
	}

	trig, err := domain.ParseTrigger(kind, value)
	if err != nil {
		// An unrecognized trigger fails open: the raw pair is kept so the
		// schedule reschedules on the fallback delay and stays visible
		// instead of wedging the claim for every other due row.
		trig = domain.Trigger{Kind: domain.TriggerKind(kind), Expr: value}
	}
	sched.Trigger = trig
	sched.Retention = domain.RetentionFromColumns(nullableInt(days), nullableInt(count))
	sched.NotifyOnSuccess = notifySuccess != 0
	sched.NotifyOnFailure = notifyFail != 0
	sched.Enabled = enabled != 0
	sched.NextRun = timeFromUnix(nextRun)
	if lastRun.Valid {
		sched.LastRun = timeFromUnix(lastRun.Int64)
	}
	sched.LastStatus = domain.RunStatus(lastStatus)
	sched.ClaimedUntil = timeFromUnix(claimed)
	sched.CreatedAt = timeFromUnix(created)
	sched.UpdatedAt = timeFromUnix(updated)
	return sched, nil
}

func retentionColumns(pol domain.RetentionPolicy) (days, count sql.NullInt64) {
	switch pol.Kind {
	case domain.RetentionDays:
		days = sql.NullInt64{Int64: int64(pol.N), Valid: true}
	case domain.RetentionCount:
		count = sql.NullInt64{Int64: int64(pol.N), Valid: true}
	}
	return days, count
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timeFromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
