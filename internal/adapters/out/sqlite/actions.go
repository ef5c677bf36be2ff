package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/virtwarden/virtwarden/internal/domain"
)

const actionColumns = `id, tenant_id, name, cluster_id, node, vmid, action,
	trigger_kind, trigger_value, enabled, next_run, last_run, last_status,
	last_error, claimed_until, created_at, updated_at`

func (s *ActionStore) Create(ctx context.Context, a domain.ActionSchedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_schedules (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Name, a.ClusterID, a.Node, a.VMID, string(a.Action),
		string(a.Trigger.Kind), a.Trigger.Value(), boolToInt(a.Enabled),
		unixOrZero(a.NextRun), nullableUnix(a.LastRun), string(a.LastStatus),
		a.LastError, unixOrZero(a.ClaimedUntil), unixOrZero(a.CreatedAt), unixOrZero(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert action schedule: %w", err)
	}
	return nil
}

func (s *ActionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action schedule: %w", err)
	}
	return requireRow(res, domain.ErrScheduleNotFound)
}

func (s *ActionStore) Get(ctx context.Context, id string) (domain.ActionSchedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM action_schedules WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ActionSchedule{}, domain.ErrScheduleNotFound
	}
	return a, err
}

func (s *ActionStore) List(ctx context.Context, tenantID string) ([]domain.ActionSchedule, error) {
	query := `SELECT ` + actionColumns + ` FROM action_schedules`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list action schedules: %w", err)
	}
	defer rows.Close()

	var out []domain.ActionSchedule
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClaimDue mirrors the backup schedule lease semantics.
func (s *ActionStore) ClaimDue(ctx context.Context, now, until time.Time) ([]domain.ActionSchedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM action_schedules
		WHERE enabled = 1 AND next_run <= ? AND claimed_until <= ?
		ORDER BY next_run`, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query due actions: %w", err)
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
		`UPDATE action_schedules SET claimed_until = ? WHERE id IN (`+statusPlaceholders(len(ids))+`)`,
		args...); err != nil {
		return nil, fmt.Errorf("failed to stamp leases: %w", err)
	}

	var out []domain.ActionSchedule
	for _, id := range ids {
		row := tx.QueryRowContext(ctx,
			`SELECT `+actionColumns+` FROM action_schedules WHERE id = ?`, id)
		a, err := scanAction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, tx.Commit()
}

func (s *ActionStore) UpdateTrigger(ctx context.Context, id string, upd domain.TriggerUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_schedules SET
			last_run = ?, next_run = ?, last_status = ?, last_error = ?,
			claimed_until = 0, updated_at = ?
		WHERE id = ?`,
		nullableUnix(upd.LastRun), unixOrZero(upd.NextRun),
		string(upd.LastStatus), upd.LastError, unixOrZero(upd.LastRun), id)
	if err != nil {
		return fmt.Errorf("failed to update action trigger state: %w", err)
	}
	return requireRow(res, domain.ErrScheduleNotFound)
}

func scanAction(row rowScanner) (domain.ActionSchedule, error) {
	var (
		a                                  domain.ActionSchedule
		action, kind, value, lastStatus    string
		lastRun                            sql.NullInt64
		enabled                            int
		nextRun, claimed, created, updated int64
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.ClusterID, &a.Node, &a.VMID, &action,
		&kind, &value, &enabled, &nextRun, &lastRun, &lastStatus,
		&a.LastError, &claimed, &created, &updated)
	if err != nil {
		return domain.ActionSchedule{}, err
	}

	trig, err := domain.ParseTrigger(kind, value)
	if err != nil {
		// Fail open like scanSchedule: keep the raw pair and reschedule on
		// the fallback delay rather than aborting the whole claim.
		trig = domain.Trigger{Kind: domain.TriggerKind(kind), Expr: value}
	}
	a.Trigger = trig
	a.Action = domain.ActionKind(action)
	a.Enabled = enabled != 0
	a.NextRun = timeFromUnix(nextRun)
	if lastRun.Valid {
		a.LastRun = timeFromUnix(lastRun.Int64)
	}
	a.LastStatus = domain.RunStatus(lastStatus)
	a.ClaimedUntil = timeFromUnix(claimed)
	a.CreatedAt = timeFromUnix(created)
	a.UpdatedAt = timeFromUnix(updated)
	return a, nil
}
