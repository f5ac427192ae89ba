// Package queue は補助SMS送信の遅延実行キューを提供する。
//
// SOS発信時の1通目の送信結果はアラート記録に残るが、その後の補助送信
// （Alert 2/3、3/3）は記録対象外のためキューに積んでワーカーが配信する。
// REDIS_URLが設定されていればRedisのソート済みセットを、
// 未設定ならプロセス内メモリを使う。
package queue

import (
	"context"
	"time"
)

// Task は1通の遅延SMS送信。
type Task struct {
	ID      string    `json:"id"`
	AlertID string    `json:"alert_id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Body    string    `json:"body"`
	Attempt int       `json:"attempt"`
	DueAt   time.Time `json:"due_at"`
}

// Queue は遅延送信タスクのキュー。
type Queue interface {
	// Enqueue はタスクを追加する。DueAtが過ぎるまでClaimDueで取り出されない。
	Enqueue(ctx context.Context, tasks ...Task) error

	// ClaimDue は期限到来済みのタスクを最大limit件取り出す。
	// 取り出したタスクはキューから削除され、複数ワーカー間で重複しない。
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)

	// Len はキューに残っているタスク数を返す。
	Len(ctx context.Context) (int, error)
}
