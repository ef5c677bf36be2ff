package out

import (
	"context"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// Session is an authenticated cluster session. The ticket and CSRF token are
// opaque to the engine.
type Session struct {
	Ticket    string
	CSRFToken string
	APIURL    string
}

// TaskStatus is the polled state of an asynchronous cluster task.
type TaskStatus struct {
	Terminal   bool
	Success    bool
	ExitStatus string
}

// JobClient talks to a virtualization cluster: it obtains sessions, submits
// asynchronous jobs and polls their status.
type JobClient interface {
	Authenticate(ctx context.Context, creds domain.ClusterCredentials) (Session, error)

	// SubmitBackup dispatches a vzdump-style backup for one VM and returns
	// the opaque task handle.
	SubmitBackup(ctx context.Context, sess Session, node string, vmid int, opts domain.BackupOptions) (string, error)

	// SubmitAction dispatches a VM lifecycle action and returns the task handle.
	SubmitAction(ctx context.Context, sess Session, node string, vmid int, action domain.ActionKind) (string, error)

	PollStatus(ctx context.Context, sess Session, node, taskID string) (TaskStatus, error)
}

// Notifier delivers a message best-effort. Failures are logged by callers and
// never affect execution outcomes.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// CredentialProvider resolves the opened credentials for a cluster.
type CredentialProvider interface {
	Resolve(ctx context.Context, clusterID string) (domain.ClusterCredentials, error)
}
