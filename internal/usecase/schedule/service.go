// Package schedule implements administrative schedule management.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
	"github.com/virtwarden/virtwarden/internal/usecase/trigger"
)

// Service implements the ScheduleService interface.
type Service struct {
	schedules out.ScheduleStore
	actions   out.ActionStore
	history   out.HistoryStore
	clusters  out.ClusterStore
	log       zerolog.Logger
	nowFn     func() time.Time
}

// NewService creates a schedule management service.
func NewService(
	schedules out.ScheduleStore,
	actions out.ActionStore,
	history out.HistoryStore,
	clusters out.ClusterStore,
	log zerolog.Logger,
) *Service {
	return &Service{
		schedules: schedules,
		actions:   actions,
		history:   history,
		clusters:  clusters,
		log:       log,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateSchedule validates, assigns an id, computes the initial next run and
// persists a new backup schedule.
func (s *Service) CreateSchedule(ctx context.Context, sched domain.Schedule) (domain.Schedule, error) {
	if err := s.validate(ctx, &sched); err != nil {
		return domain.Schedule{}, err
	}

	now := s.nowFn()
	sched.ID = uuid.NewString()
	sched.NextRun = trigger.Next(sched.Trigger, now)
	sched.CreatedAt = now
	sched.UpdatedAt = now

	if err := s.schedules.Create(ctx, sched); err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to create schedule: %w", err)
	}
	s.log.Info().Str("schedule_id", sched.ID).Str("name", sched.Name).Time("next_run", sched.NextRun).Msg("schedule created")
	return sched, nil
}

// UpdateSchedule replaces the definition fields of an existing schedule and
// recomputes the next run when the trigger changed.
func (s *Service) UpdateSchedule(ctx context.Context, sched domain.Schedule) (domain.Schedule, error) {
	existing, err := s.schedules.Get(ctx, sched.ID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := s.validate(ctx, &sched); err != nil {
		return domain.Schedule{}, err
	}

	// Trigger state belongs to the orchestrator.
	sched.LastRun = existing.LastRun
	sched.LastStatus = existing.LastStatus
	sched.LastError = existing.LastError
	sched.CreatedAt = existing.CreatedAt
	sched.UpdatedAt = s.nowFn()

	sched.NextRun = existing.NextRun
	if sched.Trigger != existing.Trigger {
		sched.NextRun = trigger.Next(sched.Trigger, s.nowFn())
	}

	if err := s.schedules.Update(ctx, sched); err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to update schedule: %w", err)
	}
	return sched, nil
}

// DeleteSchedule removes a schedule definition. History records remain until
// retention or manual cleanup removes them.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.schedules.Get(ctx, id); err != nil {
		return err
	}
	return s.schedules.Delete(ctx, id)
}

func (s *Service) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	return s.schedules.Get(ctx, id)
}

func (s *Service) ListSchedules(ctx context.Context, tenantID string) ([]domain.Schedule, error) {
	return s.schedules.List(ctx, tenantID)
}

func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.schedules.SetEnabled(ctx, id, enabled)
}

func (s *Service) History(ctx context.Context, scheduleID string, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.history.ListBySchedule(ctx, scheduleID, limit)
}

// CreateAction validates and persists a recurring VM action schedule.
func (s *Service) CreateAction(ctx context.Context, act domain.ActionSchedule) (domain.ActionSchedule, error) {
	switch act.Action {
	case domain.ActionStart, domain.ActionStop, domain.ActionSnapshot:
	default:
		return domain.ActionSchedule{}, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, act.Action)
	}
	if act.VMID <= 0 || act.Node == "" {
		return domain.ActionSchedule{}, fmt.Errorf("%w: action target is incomplete", domain.ErrValidation)
	}
	if _, err := s.clusters.GetCluster(ctx, act.ClusterID); err != nil {
		return domain.ActionSchedule{}, err
	}

	now := s.nowFn()
	act.ID = uuid.NewString()
	act.NextRun = trigger.Next(act.Trigger, now)
	act.CreatedAt = now
	act.UpdatedAt = now

	if err := s.actions.Create(ctx, act); err != nil {
		return domain.ActionSchedule{}, fmt.Errorf("failed to create action schedule: %w", err)
	}
	return act, nil
}

func (s *Service) DeleteAction(ctx context.Context, id string) error {
	if _, err := s.actions.Get(ctx, id); err != nil {
		return err
	}
	return s.actions.Delete(ctx, id)
}

func (s *Service) ListActions(ctx context.Context, tenantID string) ([]domain.ActionSchedule, error) {
	return s.actions.List(ctx, tenantID)
}

func (s *Service) validate(ctx context.Context, sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: schedule name is required", domain.ErrValidation)
	}
	if sched.VMID <= 0 || sched.Node == "" {
		return fmt.Errorf("%w: schedule target is incomplete", domain.ErrValidation)
	}
	if _, err := domain.ParseTrigger(string(sched.Trigger.Kind), sched.Trigger.Value()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTrigger, err)
	}
	if err := trigger.Validate(sched.Trigger); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTrigger, err)
	}
	if sched.Retention.N < 0 {
		return fmt.Errorf("%w: retention value must be positive", domain.ErrValidation)
	}
	if _, err := s.clusters.GetCluster(ctx, sched.ClusterID); err != nil {
		return err
	}
	return nil
}
