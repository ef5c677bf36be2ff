package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

// dayPrunableStatuses are the statuses day-based retention may delete.
// Failed and running records are kept for diagnosis.
var dayPrunableStatuses = []domain.HistoryStatus{
	domain.HistoryCompleted,
	domain.HistoryExpired,
}

// Retention enforces a schedule's retention policy against its history.
type Retention struct {
	history out.HistoryStore
	log     zerolog.Logger
	nowFn   func() time.Time
}

// NewRetention creates a retention enforcer.
func NewRetention(history out.HistoryStore, log zerolog.Logger) *Retention {
	return &Retention{
		history: history,
		log:     log,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Apply prunes history records exceeding the policy. Day-based pruning only
// touches completed and expired records; count-based pruning keeps the N most
// recent records regardless of status.
func (r *Retention) Apply(ctx context.Context, scheduleID string, pol domain.RetentionPolicy) error {
	switch pol.Kind {
	case domain.RetentionDays:
		cutoff := r.nowFn().AddDate(0, 0, -pol.N)
		n, err := r.history.DeleteOlderThan(ctx, scheduleID, cutoff, dayPrunableStatuses)
		if err != nil {
			return &domain.PersistenceError{Op: "history.deleteOlderThan", Err: err}
		}
		if n > 0 {
			r.log.Debug().Str("schedule_id", scheduleID).Int("deleted", n).Msg("day-based retention pruned history")
		}
		return nil

	case domain.RetentionCount:
		ids, err := r.history.IDsBeyondCount(ctx, scheduleID, pol.N)
		if err != nil {
			return &domain.PersistenceError{Op: "history.idsBeyondCount", Err: err}
		}
		if len(ids) == 0 {
			return nil
		}
		n, err := r.history.DeleteByIDs(ctx, ids)
		if err != nil {
			return &domain.PersistenceError{Op: "history.deleteByIDs", Err: err}
		}
		r.log.Debug().Str("schedule_id", scheduleID).Int("deleted", n).Msg("count-based retention pruned history")
		return nil

	default:
		return nil
	}
}
