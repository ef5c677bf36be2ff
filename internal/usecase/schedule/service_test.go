package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtwarden/virtwarden/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	schedules map[string]domain.Schedule
	actions   map[string]domain.ActionSchedule
	clusters  map[string]domain.Cluster
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[string]domain.Schedule{},
		actions:   map[string]domain.ActionSchedule{},
		clusters:  map[string]domain.Cluster{"c1": {ID: "c1", Name: "lab"}},
	}
}

func (m *memStore) Create(_ context.Context, s domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	return nil
}

func (m *memStore) Update(_ context.Context, s domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return s, nil
}

func (m *memStore) List(context.Context, string) ([]domain.Schedule, error) { return nil, nil }

func (m *memStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.Enabled = enabled
	m.schedules[id] = s
	return nil
}

func (m *memStore) ClaimDue(context.Context, time.Time, time.Time) ([]domain.Schedule, error) {
	return nil, nil
}

func (m *memStore) Claim(context.Context, string, time.Time, time.Time) (domain.Schedule, error) {
	return domain.Schedule{}, domain.ErrScheduleNotFound
}

func (m *memStore) UpdateTrigger(context.Context, string, domain.TriggerUpdate) error { return nil }

func (m *memStore) CreateAction(_ context.Context, a domain.ActionSchedule) error {
	m.actions[a.ID] = a
	return nil
}

func (m *memStore) GetCluster(_ context.Context, id string) (domain.Cluster, error) {
	c, ok := m.clusters[id]
	if !ok {
		return domain.Cluster{}, domain.ErrClusterNotFound
	}
	return c, nil
}

func (m *memStore) CreateCluster(_ context.Context, c domain.Cluster) error {
	m.clusters[c.ID] = c
	return nil
}

func (m *memStore) ListClusters(context.Context) ([]domain.Cluster, error) { return nil, nil }
func (m *memStore) DeleteCluster(context.Context, string) error            { return nil }

type memActionStore struct {
	actions map[string]domain.ActionSchedule
}

func (m *memActionStore) Create(_ context.Context, a domain.ActionSchedule) error {
	m.actions[a.ID] = a
	return nil
}

func (m *memActionStore) Delete(_ context.Context, id string) error {
	delete(m.actions, id)
	return nil
}

func (m *memActionStore) Get(_ context.Context, id string) (domain.ActionSchedule, error) {
	a, ok := m.actions[id]
	if !ok {
		return domain.ActionSchedule{}, domain.ErrScheduleNotFound
	}
	return a, nil
}

func (m *memActionStore) List(context.Context, string) ([]domain.ActionSchedule, error) {
	return nil, nil
}

func (m *memActionStore) ClaimDue(context.Context, time.Time, time.Time) ([]domain.ActionSchedule, error) {
	return nil, nil
}

func (m *memActionStore) UpdateTrigger(context.Context, string, domain.TriggerUpdate) error {
	return nil
}

type memHistoryStore struct{}

func (memHistoryStore) Create(context.Context, domain.HistoryRecord) (string, error) {
	return "", nil
}
func (memHistoryStore) Finalize(context.Context, string, domain.HistoryUpdate) error { return nil }
func (memHistoryStore) ListBySchedule(context.Context, string, int) ([]domain.HistoryRecord, error) {
	return nil, nil
}
func (memHistoryStore) DeleteOlderThan(context.Context, string, time.Time, []domain.HistoryStatus) (int, error) {
	return 0, nil
}
func (memHistoryStore) IDsBeyondCount(context.Context, string, int) ([]string, error) {
	return nil, nil
}
func (memHistoryStore) DeleteByIDs(context.Context, []string) (int, error) { return 0, nil }

func newTestService(store *memStore) *Service {
	svc := NewService(store, &memActionStore{actions: map[string]domain.ActionSchedule{}}, memHistoryStore{}, store, zerolog.Nop())
	svc.nowFn = func() time.Time { return time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC) }
	return svc
}

func validSchedule() domain.Schedule {
	return domain.Schedule{
		Name:      "nightly web-01",
		ClusterID: "c1",
		Node:      "pve1",
		VMID:      101,
		Trigger:   domain.Trigger{Kind: domain.TriggerDaily, Hour: 2},
		Retention: domain.RetentionPolicy{Kind: domain.RetentionDays, N: 7},
		Enabled:   true,
	}
}

func TestCreateScheduleAssignsIDAndNextRun(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	created, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, time.Date(2026, 2, 8, 2, 0, 0, 0, time.UTC), created.NextRun)

	stored, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.NextRun, stored.NextRun)
}

func TestCreateScheduleValidation(t *testing.T) {
	svc := newTestService(newMemStore())

	sched := validSchedule()
	sched.Name = ""
	_, err := svc.CreateSchedule(context.Background(), sched)
	assert.Error(t, err)

	sched = validSchedule()
	sched.ClusterID = "missing"
	_, err = svc.CreateSchedule(context.Background(), sched)
	assert.ErrorIs(t, err, domain.ErrClusterNotFound)

	sched = validSchedule()
	sched.Trigger = domain.Trigger{Kind: domain.TriggerCron, Expr: "not a cron"}
	_, err = svc.CreateSchedule(context.Background(), sched)
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)
}

func TestUpdateSchedulePreservesTriggerStateUnlessTriggerChanged(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	created, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	// Same trigger: nextRun untouched.
	updated, err := svc.UpdateSchedule(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, created.NextRun, updated.NextRun)

	// Changed trigger: nextRun recomputed.
	created.Trigger = domain.Trigger{Kind: domain.TriggerDaily, Hour: 4}
	updated, err = svc.UpdateSchedule(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 8, 4, 0, 0, 0, time.UTC), updated.NextRun)
}

func TestCreateActionValidation(t *testing.T) {
	svc := newTestService(newMemStore())

	act, err := svc.CreateAction(context.Background(), domain.ActionSchedule{
		Name: "nightly stop", ClusterID: "c1", Node: "pve1", VMID: 101,
		Action:  domain.ActionStop,
		Trigger: domain.Trigger{Kind: domain.TriggerDaily, Hour: 23},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, act.ID)
	assert.Equal(t, time.Date(2026, 2, 7, 23, 0, 0, 0, time.UTC), act.NextRun)

	_, err = svc.CreateAction(context.Background(), domain.ActionSchedule{
		Name: "bad", ClusterID: "c1", Node: "pve1", VMID: 101,
		Action: domain.ActionKind("reboot"),
	})
	assert.Error(t, err)
}
