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

// Action tasks finish fast compared to backups, so the poll ceiling is one
// minute instead of five.
const actionPollAttempts = 12

// ActionRunner executes due recurring VM actions (start, stop, snapshot). It
// is a sibling of the backup orchestrator: same trigger computation and claim
// semantics, no per-run history.
type ActionRunner struct {
	actions out.ActionStore
	client  out.JobClient
	creds   out.CredentialProvider
	log     zerolog.Logger

	nowFn        func() time.Time
	leaseTTL     time.Duration
	pollInterval time.Duration
	pollAttempts int
}

// ActionRunnerOption configures the ActionRunner.
type ActionRunnerOption func(*ActionRunner)

// WithActionPolling overrides the poll interval and attempt ceiling.
func WithActionPolling(interval time.Duration, attempts int) ActionRunnerOption {
	return func(r *ActionRunner) {
		r.pollInterval = interval
		r.pollAttempts = attempts
	}
}

// WithActionNowFunc injects the clock.
func WithActionNowFunc(now func() time.Time) ActionRunnerOption {
	return func(r *ActionRunner) { r.nowFn = now }
}

// NewActionRunner creates the recurring-action runner.
func NewActionRunner(
	actions out.ActionStore,
	client out.JobClient,
	creds out.CredentialProvider,
	log zerolog.Logger,
	opts ...ActionRunnerOption,
) *ActionRunner {
	r := &ActionRunner{
		actions:      actions,
		client:       client,
		creds:        creds,
		log:          log,
		nowFn:        func() time.Time { return time.Now().UTC() },
		leaseTTL:     defaultLeaseTTL,
		pollInterval: defaultPollInterval,
		pollAttempts: actionPollAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle processes every due action schedule sequentially with the same
// failure isolation as the backup orchestrator.
func (r *ActionRunner) RunCycle(ctx context.Context) error {
	now := r.nowFn()
	due, err := r.actions.ClaimDue(ctx, now, now.Add(r.leaseTTL))
	if err != nil {
		return &domain.PersistenceError{Op: "actions.claimDue", Err: err}
	}

	for _, act := range due {
		r.process(ctx, act)
	}
	return nil
}

// process runs one action and persists its post-run state. Panics are
// contained the same way the backup orchestrator contains them, so one
// action can never abort the rest of the cycle.
func (r *ActionRunner) process(ctx context.Context, act domain.ActionSchedule) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("action_id", act.ID).Interface("panic", rec).Msg("action runner panicked")
			r.advance(ctx, act, domain.Outcome{Success: false, Message: fmt.Sprintf("action panic: %v", rec)})
		}
	}()

	r.advance(ctx, act, r.execute(ctx, act))
}

// advance moves the trigger forward and releases the lease.
func (r *ActionRunner) advance(ctx context.Context, act domain.ActionSchedule, outcome domain.Outcome) {
	now := r.nowFn()
	upd := domain.TriggerUpdate{
		LastRun:    now,
		NextRun:    trigger.Next(act.Trigger, now),
		LastStatus: domain.RunStatusSuccess,
	}
	if !outcome.Success {
		upd.LastStatus = domain.RunStatusFailed
		upd.LastError = outcome.Message
	}
	if err := r.actions.UpdateTrigger(ctx, act.ID, upd); err != nil {
		r.log.Error().Err(err).Str("action_id", act.ID).Msg("failed to advance action trigger")
	}
}

func (r *ActionRunner) execute(ctx context.Context, act domain.ActionSchedule) domain.Outcome {
	log := r.log.With().Str("action_id", act.ID).Str("action", string(act.Action)).Int("vmid", act.VMID).Logger()

	creds, err := r.creds.Resolve(ctx, act.ClusterID)
	if err != nil {
		aerr := &domain.AuthenticationError{Cluster: act.ClusterID, Err: err}
		log.Error().Err(aerr).Msg("action dispatch failed")
		return domain.Outcome{Success: false, Message: aerr.Error()}
	}
	sess, err := r.client.Authenticate(ctx, creds)
	if err != nil {
		aerr := &domain.AuthenticationError{Cluster: act.ClusterID, Err: err}
		log.Error().Err(aerr).Msg("action dispatch failed")
		return domain.Outcome{Success: false, Message: aerr.Error()}
	}

	taskID, err := r.client.SubmitAction(ctx, sess, act.Node, act.VMID, act.Action)
	if err != nil {
		derr := &domain.DispatchError{Node: act.Node, Err: err}
		log.Error().Err(derr).Msg("action submission rejected")
		return domain.Outcome{Success: false, Message: derr.Error()}
	}

	if err := r.waitTerminal(ctx, log, sess, act.Node, taskID); err != nil {
		return domain.Outcome{Success: false, Message: err.Error()}
	}
	log.Info().Str("task_id", taskID).Msg("action completed")
	return domain.Outcome{Success: true, Message: "action completed"}
}

func (r *ActionRunner) waitTerminal(ctx context.Context, log zerolog.Logger, sess out.Session, node, taskID string) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= r.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := r.client.PollStatus(ctx, sess, node, taskID)
		if err != nil {
			log.Warn().Err(err).Str("task_id", taskID).Int("attempt", attempt).Msg("task poll failed")
			continue
		}
		if !status.Terminal {
			continue
		}
		if status.Success {
			return nil
		}
		return &domain.RemoteTerminalFailure{TaskID: taskID, ExitStatus: status.ExitStatus}
	}
	return &domain.PollingTimeoutError{TaskID: taskID, Attempts: r.pollAttempts}
}
