// Package delivery は補助SMS送信のバックグラウンド配信を提供する。
// キューから期限到来済みのタスクを取り出し、並列数を制限しながら送信する。
// 一時的な失敗は指数バックオフで再投入し、恒久的な失敗や試行上限に達した
// タスクは破棄する。配信結果はアラート記録には反映しない。
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/touristguard/internal/logger"
	"github.com/hitoshi/touristguard/internal/metrics"
	"github.com/hitoshi/touristguard/internal/notify"
	"github.com/hitoshi/touristguard/internal/queue"
)

// Config はSchedulerの設定。
type Config struct {
	// MaxConcurrency は同時に送信するタスク数の上限。0以下なら10。
	MaxConcurrency int
	// MaxAttempts は1タスクあたりの最大試行回数。0以下なら3。
	MaxAttempts int
	// SendTimeout は1回の送信に許す最大時間。0以下なら8秒。
	SendTimeout time.Duration
}

// Scheduler は補助送信タスクの配信を行う。
type Scheduler struct {
	queue          queue.Queue
	channel        notify.Channel
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	maxAttempts    int
	sendTimeout    time.Duration
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(q queue.Queue, channel notify.Channel, m metrics.MetricsCollector, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 8 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Scheduler{
		queue:          q,
		channel:        channel,
		metrics:        m,
		logger:         logger,
		maxConcurrency: cfg.MaxConcurrency,
		maxAttempts:    cfg.MaxAttempts,
		sendTimeout:    cfg.SendTimeout,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーで配信ループを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("補助送信ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
		slog.String("channel", s.channel.Name()),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("補助送信ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限到来済みのタスクを取り出し、並列で送信する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	tasks, err := s.queue.ClaimDue(ctx, s.now(), s.maxConcurrency*4)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}

		go func(t queue.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			s.deliver(ctx, t)
		}(task)
	}

	wg.Wait()

	s.logger.Info("配信サイクルが完了しました",
		slog.Int("task_count", len(tasks)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// deliver は1タスクを送信し、結果に応じて再投入または破棄する。
func (s *Scheduler) deliver(ctx context.Context, t queue.Task) {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	res := s.channel.Send(sendCtx, notify.Message{From: t.From, To: t.To, Body: t.Body})
	cancel()

	attempt := t.Attempt + 1
	outcome := ClassifyResult(res)

	switch outcome {
	case DeliveryResultSent:
		s.metrics.RecordSupplementarySend(outcome.String())
		return

	case DeliveryResultRetry:
		if attempt >= s.maxAttempts {
			s.logger.Warn("補助送信が試行上限に達したため破棄しました",
				slog.String("task_id", t.ID),
				slog.String("alert_id", t.AlertID),
				slog.String("to", logger.MaskPhone(t.To)),
				slog.Int("attempts", attempt),
				slog.Int("status_code", res.StatusCode),
			)
			s.metrics.RecordSupplementarySend(DeliveryResultDrop.String())
			return
		}

		t.Attempt = attempt
		t.DueAt = s.now().Add(CalculateBackoff(attempt - 1))
		// シャットダウン中でも再投入だけは完了させる
		if err := s.queue.Enqueue(context.WithoutCancel(ctx), t); err != nil {
			s.logger.Error("補助送信の再投入に失敗しました",
				slog.String("task_id", t.ID),
				slog.String("alert_id", t.AlertID),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordSupplementarySend(DeliveryResultDrop.String())
			return
		}
		s.metrics.RecordSupplementarySend(outcome.String())

	default:
		s.logger.Warn("補助送信が恒久的なエラーで失敗しました",
			slog.String("task_id", t.ID),
			slog.String("alert_id", t.AlertID),
			slog.String("to", logger.MaskPhone(t.To)),
			slog.Int("status_code", res.StatusCode),
		)
		s.metrics.RecordSupplementarySend(outcome.String())
	}
}
