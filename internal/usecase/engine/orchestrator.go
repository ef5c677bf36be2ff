package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
	"github.com/virtwarden/virtwarden/internal/usecase/trigger"
)

// defaultLeaseTTL covers the 5-minute poll cap with margin so an overlapping
// cycle cannot reclaim a schedule that is still executing.
const defaultLeaseTTL = 10 * time.Minute

// executor is the per-schedule execution contract the orchestrator drives.
type executor interface {
	Execute(ctx context.Context, sched domain.Schedule) domain.Outcome
}

// Orchestrator runs one engine cycle: claim due schedules, execute each with
// failure isolation, advance triggers and enforce retention.
type Orchestrator struct {
	schedules out.ScheduleStore
	exec      executor
	retention *Retention
	log       zerolog.Logger

	nowFn    func() time.Time
	leaseTTL time.Duration
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLeaseTTL overrides the claim lease duration.
func WithLeaseTTL(ttl time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.leaseTTL = ttl }
}

// WithOrchestratorNowFunc injects the clock.
func WithOrchestratorNowFunc(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.nowFn = now }
}

// NewOrchestrator creates the cycle orchestrator.
func NewOrchestrator(
	schedules out.ScheduleStore,
	exec executor,
	retention *Retention,
	log zerolog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		schedules: schedules,
		exec:      exec,
		retention: retention,
		log:       log,
		nowFn:     func() time.Time { return time.Now().UTC() },
		leaseTTL:  defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle processes every currently due schedule sequentially. Only a
// failure of the due-schedule claim itself is returned; per-schedule failures
// are recorded on the schedule and never abort the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	now := o.nowFn()
	due, err := o.schedules.ClaimDue(ctx, now, now.Add(o.leaseTTL))
	if err != nil {
		return &domain.PersistenceError{Op: "schedules.claimDue", Err: err}
	}
	if len(due) == 0 {
		return nil
	}
	o.log.Info().Int("due", len(due)).Msg("engine cycle started")

	for _, sched := range due {
		o.process(ctx, sched)
	}
	return nil
}

// RunSchedule executes one schedule immediately under a lease, outside its
// trigger. The trigger state is updated the same way a cycle would.
func (o *Orchestrator) RunSchedule(ctx context.Context, id string) (domain.Outcome, error) {
	now := o.nowFn()
	sched, err := o.schedules.Claim(ctx, id, now, now.Add(o.leaseTTL))
	if err != nil {
		return domain.Outcome{}, err
	}
	return o.process(ctx, sched), nil
}

// process runs one schedule and persists its post-run state. The executor is
// designed not to fail loudly, but the orchestrator still guards against
// panics so one schedule can never block the rest of the cycle.
func (o *Orchestrator) process(ctx context.Context, sched domain.Schedule) (outcome domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Outcome{Success: false, Message: fmt.Sprintf("executor panic: %v", r)}
			o.log.Error().Str("schedule_id", sched.ID).Interface("panic", r).Msg("executor panicked")
			o.finish(ctx, sched, outcome)
		}
	}()

	outcome = o.exec.Execute(ctx, sched)
	o.finish(ctx, sched, outcome)
	return outcome
}

// finish advances the trigger and enforces retention. Retention runs even
// after a failed execution.
func (o *Orchestrator) finish(ctx context.Context, sched domain.Schedule, outcome domain.Outcome) {
	now := o.nowFn()
	upd := domain.TriggerUpdate{
		LastRun:    now,
		NextRun:    trigger.Next(sched.Trigger, now),
		LastStatus: domain.RunStatusSuccess,
	}
	if !outcome.Success {
		upd.LastStatus = domain.RunStatusFailed
		upd.LastError = outcome.Message
	}

	if err := o.schedules.UpdateTrigger(ctx, sched.ID, upd); err != nil {
		o.log.Error().Err(err).Str("schedule_id", sched.ID).Msg("failed to advance schedule trigger")
	}

	if err := o.retention.Apply(ctx, sched.ID, sched.Retention); err != nil {
		o.log.Error().Err(err).Str("schedule_id", sched.ID).Msg("retention enforcement failed")
	}
}
