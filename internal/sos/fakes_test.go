package sos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/touristguard/internal/events"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/notify"
	"github.com/hitoshi/touristguard/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

// fakeUsers はUserReaderのテスト用実装。
type fakeUsers struct {
	users map[string]*model.User
	err   error
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func (f *fakeUsers) CountUsers(context.Context) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	verified := 0
	for _, u := range f.users {
		if u.IsFullyVerified() {
			verified++
		}
	}
	return len(f.users), verified, nil
}

// fakeContacts はContactListerのテスト用実装。
type fakeContacts struct {
	byUser map[string][]*model.EmergencyContact
	err    error
}

func (f *fakeContacts) ListByUserID(_ context.Context, userID string) ([]*model.EmergencyContact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

// fakeAlerts はアラートストアのテスト用実装。
type fakeAlerts struct {
	mu        sync.Mutex
	alerts    map[string]*model.SOSAlert
	order     []string
	createErr error
	// closeLost が真の場合、CloseActiveは競合に負けたものとしてraceStatusに書き換える。
	closeLost  bool
	raceStatus model.AlertStatus
	ctxErrs    []error
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{alerts: make(map[string]*model.SOSAlert)}
}

func (f *fakeAlerts) Create(ctx context.Context, a *model.SOSAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.createErr != nil {
		return f.createErr
	}
	cp := *a
	cp.ContactsNotified = append([]model.ContactNotification(nil), a.ContactsNotified...)
	f.alerts[a.ID] = &cp
	f.order = append(f.order, a.ID)
	return nil
}

func (f *fakeAlerts) FindByID(_ context.Context, id string) (*model.SOSAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAlerts) CloseActive(_ context.Context, id string, status model.AlertStatus, resolvedAt time.Time, resolvedBy, notes string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return false, nil
	}
	if f.closeLost {
		a.Status = f.raceStatus
		return false, nil
	}
	if a.Status != model.AlertStatusActive {
		return false, nil
	}
	a.Status = status
	a.ResolvedAt = &resolvedAt
	a.ResolvedBy = resolvedBy
	if notes != "" {
		a.Notes = notes
	}
	a.UpdatedAt = resolvedAt
	return true, nil
}

func (f *fakeAlerts) ListByUserID(_ context.Context, userID string, limit int) ([]*model.SOSAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.SOSAlert
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		if a := f.alerts[f.order[i]]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) List(_ context.Context, filter model.AlertFilter) (*model.AlertPage, error) {
	return &model.AlertPage{Page: filter.Page, Limit: filter.Limit}, nil
}

func (f *fakeAlerts) CountActive(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.alerts {
		if a.Status == model.AlertStatusActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeAlerts) only() *model.SOSAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) != 1 {
		return nil
	}
	return f.alerts[f.order[0]]
}

// fakeChannel は宛先番号ごとに結果を決められるChannel。
type fakeChannel struct {
	mu     sync.Mutex
	fail   map[string]bool
	block  map[string]bool
	panics map[string]bool
	sent   []notify.Message
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Send(ctx context.Context, msg notify.Message) notify.Result {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	fail, block, panics := c.fail[msg.To], c.block[msg.To], c.panics[msg.To]
	c.mu.Unlock()

	if panics {
		panic("provider exploded")
	}
	if block {
		<-ctx.Done()
		return notify.Result{Status: model.NotificationFailed, Err: ctx.Err()}
	}
	if fail {
		return notify.Result{Status: model.NotificationFailed, StatusCode: 400, Err: errors.New("rejected")}
	}
	return notify.Result{Status: model.NotificationSent, StatusCode: 201, SentAt: time.Now()}
}

func (c *fakeChannel) messagesTo(phone string) []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Message
	for _, m := range c.sent {
		if m.To == phone {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeEnqueuer はEnqueuerのテスト用実装。
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, tasks ...queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, tasks...)
	return nil
}

// fakePublisher は発行されたイベントを記録する。
type fakePublisher struct {
	mu     sync.Mutex
	events []events.AlertEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev events.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() {}

// fakeMetrics は呼び出し回数を数える。
type fakeMetrics struct {
	mu                  sync.Mutex
	dispatched          []string
	notifications       map[string]int
	persistenceFailures int
	transitions         []string
	supplementary       []string
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{notifications: make(map[string]int)}
}

func (m *fakeMetrics) RecordAlertDispatched(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched = append(m.dispatched, t)
}

func (m *fakeMetrics) RecordNotification(recipient, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[recipient+"/"+status]++
}

func (m *fakeMetrics) RecordDispatchLatency(time.Duration) {}

func (m *fakeMetrics) RecordPersistenceFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistenceFailures++
}

func (m *fakeMetrics) RecordAlertTransition(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, s)
}

func (m *fakeMetrics) RecordSupplementarySend(o string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplementary = append(m.supplementary, o)
}

func (m *fakeMetrics) RecordProviderStatus(int) {}

// blockingPublisher はctxが終わるまで戻らないPublisher。
type blockingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *blockingPublisher) Publish(ctx context.Context, _ events.AlertEvent) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *blockingPublisher) Close() {}

func (p *blockingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
