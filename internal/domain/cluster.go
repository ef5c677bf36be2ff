package domain

import "time"

// Cluster is a registered virtualization cluster. The API secret is sealed
// at rest and only opened by the credential provider.
type Cluster struct {
	ID           string
	Name         string
	APIURL       string
	Username     string
	SealedSecret []byte
	CreatedAt    time.Time
}

// ClusterCredentials is the opened credential set handed to the job client.
type ClusterCredentials struct {
	APIURL   string
	Username string
	Password string
}

// ActionKind is a recurring VM action executed by an action schedule.
type ActionKind string

const (
	ActionStart    ActionKind = "start"
	ActionStop     ActionKind = "stop"
	ActionSnapshot ActionKind = "snapshot"
)

// ActionSchedule is a recurring start/stop/snapshot intent for one VM. It
// shares trigger computation and claim semantics with backup schedules but
// records no per-run history.
type ActionSchedule struct {
	ID       string
	TenantID string
	Name     string

	ClusterID string
	Node      string
	VMID      int

	Action  ActionKind
	Trigger Trigger

	Enabled bool
	NextRun time.Time

	LastRun    time.Time
	LastStatus RunStatus
	LastError  string

	ClaimedUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
