// Package in defines input ports (interfaces) implemented by use cases and
// consumed by driving adapters (HTTP API, CLI).
package in

import (
	"context"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// ScheduleService defines administrative schedule management use cases.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error)
	UpdateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	GetSchedule(ctx context.Context, id string) (domain.Schedule, error)
	ListSchedules(ctx context.Context, tenantID string) ([]domain.Schedule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	History(ctx context.Context, scheduleID string, limit int) ([]domain.HistoryRecord, error)

	CreateAction(ctx context.Context, a domain.ActionSchedule) (domain.ActionSchedule, error)
	DeleteAction(ctx context.Context, id string) error
	ListActions(ctx context.Context, tenantID string) ([]domain.ActionSchedule, error)
}

// EngineService defines the execution engine entry points.
type EngineService interface {
	// RunCycle processes every currently due schedule. It returns an error
	// only when the due-schedule query itself fails.
	RunCycle(ctx context.Context) error

	// RunSchedule executes one schedule immediately, outside its trigger.
	RunSchedule(ctx context.Context, id string) (domain.Outcome, error)
}
