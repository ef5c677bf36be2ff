package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

type fakeCredentialProvider struct {
	creds domain.ClusterCredentials
	err   error
}

func (f *fakeCredentialProvider) Resolve(context.Context, string) (domain.ClusterCredentials, error) {
	return f.creds, f.err
}

// fakeJobClient simulates the cluster API. terminalAfter is the poll attempt
// on which the task reports a terminal state; 0 means it never terminates.
type fakeJobClient struct {
	authErr   error
	submitErr error

	terminalAfter int
	exitStatus    string

	polls       int
	submissions []string
	actions     []domain.ActionKind
}

func (f *fakeJobClient) Authenticate(context.Context, domain.ClusterCredentials) (out.Session, error) {
	if f.authErr != nil {
		return out.Session{}, f.authErr
	}
	return out.Session{Ticket: "ticket", CSRFToken: "csrf"}, nil
}

func (f *fakeJobClient) SubmitBackup(_ context.Context, _ out.Session, node string, vmid int, _ domain.BackupOptions) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	task := fmt.Sprintf("UPID:%s:%d", node, vmid)
	f.submissions = append(f.submissions, task)
	return task, nil
}

func (f *fakeJobClient) SubmitAction(_ context.Context, _ out.Session, node string, vmid int, action domain.ActionKind) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.actions = append(f.actions, action)
	return fmt.Sprintf("UPID:%s:%d:%s", node, vmid, action), nil
}

func (f *fakeJobClient) PollStatus(context.Context, out.Session, string, string) (out.TaskStatus, error) {
	f.polls++
	if f.terminalAfter > 0 && f.polls >= f.terminalAfter {
		exit := f.exitStatus
		if exit == "" {
			exit = "OK"
		}
		return out.TaskStatus{Terminal: true, Success: exit == "OK", ExitStatus: exit}, nil
	}
	return out.TaskStatus{Terminal: false}, nil
}

type sentMail struct {
	recipient string
	subject   string
	body      string
}

type fakeNotifier struct {
	err  error
	sent []sentMail
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, body string) error {
	f.sent = append(f.sent, sentMail{recipient: recipient, subject: subject, body: body})
	return f.err
}

type fakeHistoryStore struct {
	mu      sync.Mutex
	nextID  int
	records map[string]*domain.HistoryRecord

	createErr error
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{records: map[string]*domain.HistoryRecord{}}
}

func (f *fakeHistoryStore) Create(_ context.Context, rec domain.HistoryRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	rec.ID = fmt.Sprintf("h%d", f.nextID)
	f.records[rec.ID] = &rec
	return rec.ID, nil
}

func (f *fakeHistoryStore) Finalize(_ context.Context, id string, upd domain.HistoryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.ErrHistoryNotFound
	}
	completed := upd.CompletedAt
	rec.CompletedAt = &completed
	rec.Status = upd.Status
	rec.ErrorMessage = upd.ErrorMessage
	rec.DurationSeconds = upd.DurationSeconds
	rec.TaskID = upd.TaskID
	return nil
}

func (f *fakeHistoryStore) ListBySchedule(_ context.Context, scheduleID string, limit int) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.sorted(scheduleID)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (f *fakeHistoryStore) DeleteOlderThan(_ context.Context, scheduleID string, cutoff time.Time, statuses []domain.HistoryStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := map[domain.HistoryStatus]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}
	n := 0
	for id, rec := range f.records {
		if rec.ScheduleID == scheduleID && rec.StartedAt.Before(cutoff) && allowed[rec.Status] {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeHistoryStore) IDsBeyondCount(_ context.Context, scheduleID string, keep int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.sorted(scheduleID)
	if len(recs) <= keep {
		return nil, nil
	}
	ids := make([]string, 0, len(recs)-keep)
	for _, rec := range recs[keep:] {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (f *fakeHistoryStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := f.records[id]; ok {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

// sorted returns records for a schedule ordered by startedAt descending.
func (f *fakeHistoryStore) sorted(scheduleID string) []domain.HistoryRecord {
	recs := make([]domain.HistoryRecord, 0, len(f.records))
	for _, rec := range f.records {
		if rec.ScheduleID == scheduleID {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
	return recs
}

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[string]*domain.Schedule
	updates   map[string]domain.TriggerUpdate

	claimDueErr error
}

func newFakeScheduleStore(scheds ...domain.Schedule) *fakeScheduleStore {
	f := &fakeScheduleStore{
		schedules: map[string]*domain.Schedule{},
		updates:   map[string]domain.TriggerUpdate{},
	}
	for i := range scheds {
		s := scheds[i]
		f.schedules[s.ID] = &s
	}
	return f
}

func (f *fakeScheduleStore) Create(_ context.Context, s domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[s.ID] = &s
	return nil
}

func (f *fakeScheduleStore) Update(_ context.Context, s domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[s.ID]; !ok {
		return domain.ErrScheduleNotFound
	}
	f.schedules[s.ID] = &s
	return nil
}

func (f *fakeScheduleStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleStore) Get(_ context.Context, id string) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return *s, nil
}

func (f *fakeScheduleStore) List(context.Context, string) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Schedule, 0, len(f.schedules))
	for _, s := range f.schedules {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeScheduleStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.Enabled = enabled
	return nil
}

func (f *fakeScheduleStore) ClaimDue(_ context.Context, now, until time.Time) ([]domain.Schedule, error) {
	if f.claimDueErr != nil {
		return nil, f.claimDueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.Schedule
	for _, s := range f.schedules {
		if s.Enabled && !s.NextRun.After(now) && !s.ClaimedUntil.After(now) {
			s.ClaimedUntil = until
			due = append(due, *s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeScheduleStore) Claim(_ context.Context, id string, now, until time.Time) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	if s.ClaimedUntil.After(now) {
		return domain.Schedule{}, errors.New("schedule already claimed")
	}
	s.ClaimedUntil = until
	return *s, nil
}

func (f *fakeScheduleStore) UpdateTrigger(_ context.Context, id string, upd domain.TriggerUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.LastRun = upd.LastRun
	s.NextRun = upd.NextRun
	s.LastStatus = upd.LastStatus
	s.LastError = upd.LastError
	s.ClaimedUntil = time.Time{}
	f.updates[id] = upd
	return nil
}

type fakeActionStore struct {
	mu      sync.Mutex
	actions map[string]*domain.ActionSchedule
	updates map[string]domain.TriggerUpdate

	claimDueErr error
}

func newFakeActionStore(acts ...domain.ActionSchedule) *fakeActionStore {
	f := &fakeActionStore{
		actions: map[string]*domain.ActionSchedule{},
		updates: map[string]domain.TriggerUpdate{},
	}
	for i := range acts {
		a := acts[i]
		f.actions[a.ID] = &a
	}
	return f
}

func (f *fakeActionStore) Create(_ context.Context, a domain.ActionSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[a.ID] = &a
	return nil
}

func (f *fakeActionStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.actions, id)
	return nil
}

func (f *fakeActionStore) Get(_ context.Context, id string) (domain.ActionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok {
		return domain.ActionSchedule{}, domain.ErrScheduleNotFound
	}
	return *a, nil
}

func (f *fakeActionStore) List(context.Context, string) ([]domain.ActionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ActionSchedule, 0, len(f.actions))
	for _, a := range f.actions {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeActionStore) ClaimDue(_ context.Context, now, until time.Time) ([]domain.ActionSchedule, error) {
	if f.claimDueErr != nil {
		return nil, f.claimDueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.ActionSchedule
	for _, a := range f.actions {
		if a.Enabled && !a.NextRun.After(now) && !a.ClaimedUntil.After(now) {
			a.ClaimedUntil = until
			due = append(due, *a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeActionStore) UpdateTrigger(_ context.Context, id string, upd domain.TriggerUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	a.LastRun = upd.LastRun
	a.NextRun = upd.NextRun
	a.LastStatus = upd.LastStatus
	a.LastError = upd.LastError
	a.ClaimedUntil = time.Time{}
	f.updates[id] = upd
	return nil
}
