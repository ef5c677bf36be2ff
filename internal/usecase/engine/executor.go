// Package engine implements the scheduled backup execution engine: the job
// executor, the per-cycle orchestrator and the retention enforcer.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 60

	defaultCompression = "zstd"
	defaultMode        = "snapshot"
	defaultStorage     = "local"
)

// Executor runs one backup schedule end to end: authenticate, record, submit,
// poll to a terminal state, finalize and notify. It never mutates the
// schedule's trigger fields and never propagates errors; every failure is
// folded into the returned outcome.
type Executor struct {
	client   out.JobClient
	creds    out.CredentialProvider
	history  out.HistoryStore
	notifier out.Notifier
	log      zerolog.Logger

	nowFn        func() time.Time
	pollInterval time.Duration
	pollAttempts int
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithPolling overrides the poll interval and attempt ceiling.
func WithPolling(interval time.Duration, attempts int) ExecutorOption {
	return func(e *Executor) {
		e.pollInterval = interval
		e.pollAttempts = attempts
	}
}

// WithNowFunc injects the clock.
func WithNowFunc(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.nowFn = now
	}
}

// NewExecutor creates a job executor.
func NewExecutor(
	client out.JobClient,
	creds out.CredentialProvider,
	history out.HistoryStore,
	notifier out.Notifier,
	log zerolog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		client:       client,
		creds:        creds,
		history:      history,
		notifier:     notifier,
		log:          log,
		nowFn:        func() time.Time { return time.Now().UTC() },
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one due schedule and reports the outcome.
func (e *Executor) Execute(ctx context.Context, sched domain.Schedule) domain.Outcome {
	log := e.log.With().Str("schedule_id", sched.ID).Str("schedule", sched.Name).Logger()

	sess, err := e.authenticate(ctx, sched)
	if err != nil {
		log.Error().Err(err).Msg("backup dispatch failed before submission")
		return domain.Outcome{Success: false, Message: err.Error()}
	}

	startedAt := e.nowFn()
	recID, err := e.history.Create(ctx, domain.HistoryRecord{
		ScheduleID: sched.ID,
		StartedAt:  startedAt,
		Status:     domain.HistoryRunning,
	})
	if err != nil {
		perr := &domain.PersistenceError{Op: "history.create", Err: err}
		log.Error().Err(perr).Msg("could not record backup dispatch")
		return domain.Outcome{Success: false, Message: perr.Error()}
	}

	taskID, runErr := e.submitAndWait(ctx, log, sess, sched)

	completedAt := e.nowFn()
	upd := domain.HistoryUpdate{
		CompletedAt:     completedAt,
		Status:          domain.HistoryCompleted,
		DurationSeconds: int64(completedAt.Sub(startedAt) / time.Second),
		TaskID:          taskID,
	}
	if runErr != nil {
		upd.Status = domain.HistoryFailed
		upd.ErrorMessage = runErr.Error()
	}
	if err := e.history.Finalize(ctx, recID, upd); err != nil {
		log.Error().Err(err).Str("history_id", recID).Msg("failed to finalize history record")
	}

	outcome := domain.Outcome{Success: runErr == nil, Message: "backup completed"}
	if runErr != nil {
		outcome.Message = runErr.Error()
	}

	e.notify(ctx, log, sched, outcome)
	return outcome
}

func (e *Executor) authenticate(ctx context.Context, sched domain.Schedule) (out.Session, error) {
	creds, err := e.creds.Resolve(ctx, sched.ClusterID)
	if err != nil {
		return out.Session{}, &domain.AuthenticationError{Cluster: sched.ClusterID, Err: err}
	}
	sess, err := e.client.Authenticate(ctx, creds)
	if err != nil {
		return out.Session{}, &domain.AuthenticationError{Cluster: sched.ClusterID, Err: err}
	}
	return sess, nil
}

// submitAndWait dispatches the job and drives the bounded poll loop. The
// returned task id is empty when submission itself failed.
func (e *Executor) submitAndWait(ctx context.Context, log zerolog.Logger, sess out.Session, sched domain.Schedule) (string, error) {
	opts := sched.Options
	if opts.Compression == "" {
		opts.Compression = defaultCompression
	}
	if opts.Mode == "" {
		opts.Mode = defaultMode
	}
	if opts.Storage == "" {
		opts.Storage = defaultStorage
	}

	taskID, err := e.client.SubmitBackup(ctx, sess, sched.Node, sched.VMID, opts)
	if err != nil {
		return "", &domain.DispatchError{Node: sched.Node, Err: err}
	}
	log.Info().Str("task_id", taskID).Int("vmid", sched.VMID).Msg("backup task submitted")

	return taskID, e.waitTerminal(ctx, log, sess, sched.Node, taskID)
}

// waitTerminal polls the task at a fixed interval until the cluster reports a
// terminal state or the attempt ceiling is reached.
func (e *Executor) waitTerminal(ctx context.Context, log zerolog.Logger, sess out.Session, node, taskID string) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= e.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("polling task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}

		status, err := e.client.PollStatus(ctx, sess, node, taskID)
		if err != nil {
			// Transient poll failures consume an attempt but do not fail
			// the run; the ceiling still bounds the wait.
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

	return &domain.PollingTimeoutError{TaskID: taskID, Attempts: e.pollAttempts}
}

// notify delivers the outcome best-effort based on the schedule's flags.
// Delivery failures are logged and swallowed.
func (e *Executor) notify(ctx context.Context, log zerolog.Logger, sched domain.Schedule, outcome domain.Outcome) {
	if sched.NotifyEmail == "" {
		return
	}
	if outcome.Success && !sched.NotifyOnSuccess {
		return
	}
	if !outcome.Success && !sched.NotifyOnFailure {
		return
	}

	subject := fmt.Sprintf("Backup completed: %s", sched.Name)
	body := fmt.Sprintf("<p>Backup of VM %d on node %s completed successfully.</p>", sched.VMID, sched.Node)
	if !outcome.Success {
		subject = fmt.Sprintf("Backup failed: %s", sched.Name)
		body = fmt.Sprintf("<p>Backup of VM %d on node %s failed:</p><pre>%s</pre>", sched.VMID, sched.Node, outcome.Message)
	}

	if err := e.notifier.Send(ctx, sched.NotifyEmail, subject, body); err != nil {
		log.Warn().Err(err).Str("recipient", sched.NotifyEmail).Msg("backup notification failed")
	}
}
