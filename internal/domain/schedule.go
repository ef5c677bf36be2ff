package domain

import "time"

// RunStatus is the outcome recorded on a schedule after an execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RetentionKind selects which pruning algorithm applies to a schedule's history.
type RetentionKind string

const (
	RetentionNone  RetentionKind = "none"
	RetentionDays  RetentionKind = "days"
	RetentionCount RetentionKind = "count"
)

// RetentionPolicy is a tagged policy value. N is the number of days or the
// number of records to keep, depending on Kind.
type RetentionPolicy struct {
	Kind RetentionKind
	N    int
}

// RetentionFromColumns maps the legacy two-nullable-columns representation
// into a policy. Days takes precedence when both are set.
func RetentionFromColumns(days, count *int) RetentionPolicy {
	if days != nil && *days > 0 {
		return RetentionPolicy{Kind: RetentionDays, N: *days}
	}
	if count != nil && *count > 0 {
		return RetentionPolicy{Kind: RetentionCount, N: *count}
	}
	return RetentionPolicy{Kind: RetentionNone}
}

// BackupOptions are the vzdump parameters submitted with a backup job.
// Zero values mean "use the cluster default" and are filled in by the
// executor (zstd, snapshot mode, local storage).
type BackupOptions struct {
	Compression string
	Mode        string
	Storage     string
}

// Schedule is a recurring intent to back up one virtual machine.
type Schedule struct {
	ID       string
	TenantID string
	Name     string

	// Target locator, resolved by the admin layer at creation time.
	ClusterID string
	Node      string
	VMID      int

	Trigger   Trigger
	Retention RetentionPolicy
	Options   BackupOptions

	NotifyOnSuccess bool
	NotifyOnFailure bool
	NotifyEmail     string

	Enabled bool
	NextRun time.Time

	LastRun    time.Time
	LastStatus RunStatus
	LastError  string

	// ClaimedUntil is the execution lease. A schedule whose lease has not
	// expired is skipped by overlapping cycles.
	ClaimedUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome is the result of one execution attempt, as reported by the job
// executor to the orchestrator.
type Outcome struct {
	Success bool
	Message string
}

// TriggerUpdate carries the fields the orchestrator persists after a run.
type TriggerUpdate struct {
	LastRun    time.Time
	NextRun    time.Time
	LastStatus RunStatus
	LastError  string
}
