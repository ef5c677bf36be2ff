package domain

import "time"

// HistoryStatus tracks the lifecycle of one execution attempt.
type HistoryStatus string

const (
	HistoryRunning   HistoryStatus = "running"
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
	HistoryExpired   HistoryStatus = "expired"
)

// HistoryRecord is one execution attempt of a schedule. It is created with
// status running at dispatch time and finalized exactly once.
type HistoryRecord struct {
	ID         string
	ScheduleID string

	TaskID string // opaque task handle returned by the cluster

	StartedAt       time.Time
	CompletedAt     *time.Time
	Status          HistoryStatus
	ErrorMessage    string
	DurationSeconds int64
}

// HistoryUpdate carries the terminal fields written when an execution finishes.
type HistoryUpdate struct {
	CompletedAt     time.Time
	Status          HistoryStatus
	ErrorMessage    string
	DurationSeconds int64
	TaskID          string
}
