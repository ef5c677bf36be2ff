// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (sqlite, the cluster API, SMTP, etc.).
package out

import (
	"context"
	"time"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// ScheduleStore persists backup schedule definitions and trigger state.
type ScheduleStore interface {
	Create(ctx context.Context, s domain.Schedule) error
	Update(ctx context.Context, s domain.Schedule) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Schedule, error)
	List(ctx context.Context, tenantID string) ([]domain.Schedule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// ClaimDue atomically selects schedules with enabled=true, nextRun <= now
	// and an expired (or empty) lease, and stamps their lease to until.
	ClaimDue(ctx context.Context, now, until time.Time) ([]domain.Schedule, error)

	// Claim leases a single schedule by id regardless of its nextRun, for
	// run-now requests. Returns domain.ErrScheduleNotFound if absent and an
	// error if the lease is already held.
	Claim(ctx context.Context, id string, now, until time.Time) (domain.Schedule, error)

	// UpdateTrigger persists the post-run trigger state in one update and
	// releases the lease.
	UpdateTrigger(ctx context.Context, id string, upd domain.TriggerUpdate) error
}

// HistoryStore persists execution history records.
type HistoryStore interface {
	Create(ctx context.Context, rec domain.HistoryRecord) (string, error)
	Finalize(ctx context.Context, id string, upd domain.HistoryUpdate) error
	ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]domain.HistoryRecord, error)

	// DeleteOlderThan removes records of the given statuses started before
	// cutoff and reports how many were deleted.
	DeleteOlderThan(ctx context.Context, scheduleID string, cutoff time.Time, statuses []domain.HistoryStatus) (int, error)

	// IDsBeyondCount returns the ids of all records except the keep most
	// recent ones ordered by startedAt descending.
	IDsBeyondCount(ctx context.Context, scheduleID string, keep int) ([]string, error)

	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// ActionStore persists recurring VM action schedules.
type ActionStore interface {
	Create(ctx context.Context, a domain.ActionSchedule) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.ActionSchedule, error)
	List(ctx context.Context, tenantID string) ([]domain.ActionSchedule, error)
	ClaimDue(ctx context.Context, now, until time.Time) ([]domain.ActionSchedule, error)
	UpdateTrigger(ctx context.Context, id string, upd domain.TriggerUpdate) error
}

// ClusterStore persists registered clusters.
type ClusterStore interface {
	CreateCluster(ctx context.Context, c domain.Cluster) error
	GetCluster(ctx context.Context, id string) (domain.Cluster, error)
	ListClusters(ctx context.Context) ([]domain.Cluster, error)
	DeleteCluster(ctx context.Context, id string) error
}
