package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business-level errors that can occur in the system.
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrClusterNotFound  = errors.New("cluster not found")
	ErrHistoryNotFound  = errors.New("history record not found")
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
)

// AuthenticationError means no session could be obtained from the cluster.
type AuthenticationError struct {
	Cluster string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication against cluster %s failed: %v", e.Cluster, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// DispatchError means the cluster rejected the job submission.
type DispatchError struct {
	Node string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("job submission on node %s rejected: %v", e.Node, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// PollingTimeoutError means the poll ceiling was reached while the task was
// still running.
type PollingTimeoutError struct {
	TaskID   string
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("task %s still running after %d polls", e.TaskID, e.Attempts)
}

// RemoteTerminalFailure means the cluster reported a terminal state that is
// not success.
type RemoteTerminalFailure struct {
	TaskID     string
	ExitStatus string
}

func (e *RemoteTerminalFailure) Error() string {
	return fmt.Sprintf("task %s finished with status %q", e.TaskID, e.ExitStatus)
}

// PersistenceError wraps a failed repository operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence operation %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
