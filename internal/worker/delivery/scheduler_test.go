package delivery

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/notify"
	"github.com/hitoshi/touristguard/internal/queue"
)

// --- モック定義 ---

// mockChannel はnotify.Channelのテスト用モック。
type mockChannel struct {
	sendFunc func(ctx context.Context, msg notify.Message) notify.Result
}

func (m *mockChannel) Name() string { return "mock" }

func (m *mockChannel) Send(ctx context.Context, msg notify.Message) notify.Result {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, msg)
	}
	return notify.Result{Status: model.NotificationSent, StatusCode: 201, SentAt: time.Now()}
}

// failingQueue はEnqueueだけが失敗するキュー。
type failingQueue struct {
	*queue.MemoryQueue
}

func (q failingQueue) Enqueue(context.Context, ...queue.Task) error {
	return errors.New("queue unavailable")
}

// recordingMetrics は補助送信の結果を記録する。
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordingMetrics) RecordAlertDispatched(string)        {}
func (m *recordingMetrics) RecordNotification(string, string)   {}
func (m *recordingMetrics) RecordDispatchLatency(time.Duration) {}
func (m *recordingMetrics) RecordPersistenceFailure()           {}
func (m *recordingMetrics) RecordAlertTransition(string)        {}
func (m *recordingMetrics) RecordProviderStatus(int)            {}
func (m *recordingMetrics) RecordSupplementarySend(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func dueTask(id string, attempt int) queue.Task {
	return queue.Task{
		ID:      id,
		AlertID: "alert-1",
		From:    "+15005550006",
		To:      "+919800000001",
		Body:    "SOS! I need help. (Alert 2/3)",
		Attempt: attempt,
		DueAt:   time.Now().Add(-time.Second),
	}
}

// --- テスト ---

func TestRunOnce_EmptyQueue(t *testing.T) {
	var buf bytes.Buffer
	var calls atomic.Int32
	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		calls.Add(1)
		return notify.Result{Status: model.NotificationSent}
	}}
	s := NewScheduler(queue.NewMemoryQueue(), ch, nil, newTestLogger(&buf), Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("送信回数 = %d, want 0", calls.Load())
	}
}

func TestRunOnce_SendsDueTasks(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, dueTask("t1", 0), dueTask("t2", 0))
	_ = q.Enqueue(ctx, queue.Task{ID: "future", To: "+919800000002", DueAt: time.Now().Add(time.Hour)})

	var mu sync.Mutex
	var bodies []string
	ch := &mockChannel{sendFunc: func(_ context.Context, msg notify.Message) notify.Result {
		mu.Lock()
		bodies = append(bodies, msg.Body)
		mu.Unlock()
		return notify.Result{Status: model.NotificationSent, StatusCode: 201}
	}}
	m := &recordingMetrics{}
	s := NewScheduler(q, ch, m, newTestLogger(&buf), Config{})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("送信回数 = %d, want 2", len(bodies))
	}
	if !strings.HasSuffix(bodies[0], "(Alert 2/3)") {
		t.Errorf("本文 = %q", bodies[0])
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Errorf("残りタスク数 = %d, want 1", n)
	}
	if len(m.outcomes) != 2 || m.outcomes[0] != "sent" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
}

func TestRunOnce_RetryableFailureIsRequeuedWithBackoff(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, dueTask("t1", 0))

	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		return notify.Result{Status: model.NotificationFailed, StatusCode: 503, Err: errors.New("unavailable")}
	}}
	m := &recordingMetrics{}
	s := NewScheduler(q, ch, m, newTestLogger(&buf), Config{MaxAttempts: 3})
	fixed := time.Now()
	s.now = func() time.Time { return fixed }

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	requeued, _ := q.ClaimDue(ctx, fixed.Add(time.Hour), 0)
	if len(requeued) != 1 {
		t.Fatalf("再投入タスク数 = %d, want 1", len(requeued))
	}
	if requeued[0].Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", requeued[0].Attempt)
	}
	if want := fixed.Add(2 * time.Second); !requeued[0].DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", requeued[0].DueAt, want)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "retry" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
}

func TestRunOnce_DropsAfterMaxAttempts(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, dueTask("t1", 2))

	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		return notify.Result{Status: model.NotificationFailed, Err: context.DeadlineExceeded}
	}}
	m := &recordingMetrics{}
	s := NewScheduler(q, ch, m, newTestLogger(&buf), Config{MaxAttempts: 3})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("残りタスク数 = %d, want 0", n)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "dropped" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
	if !strings.Contains(buf.String(), "試行上限") {
		t.Errorf("破棄のログが出力されていません: %s", buf.String())
	}
	if strings.Contains(buf.String(), "+919800000001") {
		t.Error("電話番号がマスクされずにログ出力されています")
	}
}

func TestRunOnce_PermanentFailureIsDropped(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	_ = q.Enqueue(ctx, dueTask("t1", 0))

	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		return notify.Result{Status: model.NotificationFailed, StatusCode: 400, Err: errors.New("invalid number")}
	}}
	m := &recordingMetrics{}
	s := NewScheduler(q, ch, m, newTestLogger(&buf), Config{})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("残りタスク数 = %d, want 0", n)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "dropped" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
}

func TestRunOnce_RequeueFailureIsDropped(t *testing.T) {
	var buf bytes.Buffer
	mem := queue.NewMemoryQueue()
	ctx := context.Background()
	_ = mem.Enqueue(ctx, dueTask("t1", 0))

	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		return notify.Result{Status: model.NotificationFailed, StatusCode: 429}
	}}
	m := &recordingMetrics{}
	s := NewScheduler(failingQueue{mem}, ch, m, newTestLogger(&buf), Config{})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(m.outcomes) != 1 || m.outcomes[0] != "dropped" {
		t.Errorf("outcomes = %v", m.outcomes)
	}
}

func TestRunOnce_ConcurrencyLimit(t *testing.T) {
	var buf bytes.Buffer
	q := queue.NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_ = q.Enqueue(ctx, dueTask(string(rune('a'+i)), 0))
	}

	var current, peak atomic.Int32
	ch := &mockChannel{sendFunc: func(context.Context, notify.Message) notify.Result {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return notify.Result{Status: model.NotificationSent}
	}}
	s := NewScheduler(q, ch, nil, newTestLogger(&buf), Config{MaxConcurrency: 3})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("最大並列数 = %d, want <= 3", peak.Load())
	}
}

func TestRunOnce_ClaimError(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(errQueue{}, &mockChannel{}, nil, newTestLogger(&buf), Config{})

	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("ClaimDueのエラーが返されるべき")
	}
}

type errQueue struct{}

func (errQueue) Enqueue(context.Context, ...queue.Task) error { return nil }
func (errQueue) ClaimDue(context.Context, time.Time, int) ([]queue.Task, error) {
	return nil, errors.New("redis: connection refused")
}
func (errQueue) Len(context.Context) (int, error) { return 0, nil }

func TestStart_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(queue.NewMemoryQueue(), &mockChannel{}, nil, newTestLogger(&buf), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start がキャンセル後に終了しません")
	}
}
