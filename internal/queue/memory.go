package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue はプロセス内で完結するQueueの実装。
// Redisが無い構成で使い、プロセス終了時に未配信のタスクは失われる。
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
}

// NewMemoryQueue はMemoryQueueの新しいインスタンスを生成する。
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue はタスクを追加する。
func (q *MemoryQueue) Enqueue(_ context.Context, tasks ...Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, tasks...)
	return nil
}

// ClaimDue は期限到来済みのタスクを期限の早い順に取り出す。
func (q *MemoryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].DueAt.Before(q.tasks[j].DueAt)
	})

	var claimed []Task
	remaining := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.DueAt.After(now) && (limit <= 0 || len(claimed) < limit) {
			claimed = append(claimed, t)
			continue
		}
		remaining = append(remaining, t)
	}
	q.tasks = remaining
	return claimed, nil
}

// Len はキューに残っているタスク数を返す。
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks), nil
}

var _ Queue = (*MemoryQueue)(nil)
