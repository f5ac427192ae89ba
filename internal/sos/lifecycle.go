package sos

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/touristguard/internal/events"
	"github.com/hitoshi/touristguard/internal/metrics"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/security"
)

// maxNotesLength は管理者メモの最大文字数。
const maxNotesLength = 2000

// AlertTransitioner はアラートの状態遷移に使うインターフェース。
type AlertTransitioner interface {
	FindByID(ctx context.Context, id string) (*model.SOSAlert, error)
	CloseActive(ctx context.Context, id string, status model.AlertStatus, resolvedAt time.Time, resolvedBy, notes string) (bool, error)
}

// LifecycleManager はアラートのステータス遷移を扱う。
//
// activeから終端状態（resolved/false_alarm）への遷移だけを許す。
// 既に同じ終端状態にあるアラートへの遷移は何も変更せずに成功を返し、
// 別の終端状態への遷移はINVALID_TRANSITIONとして拒否する。
type LifecycleManager struct {
	alerts    AlertTransitioner
	publisher events.Publisher
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
	// publishTimeout はイベント発行を待つ最大時間。
	publishTimeout time.Duration
}

// NewLifecycleManager はLifecycleManagerの新しいインスタンスを生成する。
func NewLifecycleManager(alerts AlertTransitioner, publisher events.Publisher, sanitizer security.TextSanitizer, m metrics.MetricsCollector, logger *slog.Logger) *LifecycleManager {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &LifecycleManager{
		alerts:    alerts,
		publisher: publisher,
		sanitizer: sanitizer,
		metrics:   m,
		logger:    logger,
		now:       time.Now,

		publishTimeout: defaultPublishTimeout,
	}
}

// Transition はアラートを終端状態に遷移させ、更新後のアラートを返す。
func (m *LifecycleManager) Transition(ctx context.Context, alertID, target, notes, actor string) (*model.SOSAlert, error) {
	ctx, span := tracer.Start(ctx, "sos.Transition", trace.WithAttributes(
		attribute.String("alert.id", alertID),
		attribute.String("alert.target_status", target),
	))
	defer span.End()

	status := model.AlertStatus(target)
	if !status.IsTerminal() {
		span.SetStatus(codes.Error, "invalid status")
		return nil, model.NewInvalidStatusError(target)
	}

	if m.sanitizer != nil {
		notes = m.sanitizer.Sanitize(notes, maxNotesLength)
	}

	alert, err := m.alerts.FindByID(ctx, alertID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert == nil {
		return nil, model.NewAlertNotFoundError(alertID)
	}
	if alert.Status.IsTerminal() {
		return m.settled(alert, status)
	}

	now := m.now().UTC()
	updated, err := m.alerts.CloseActive(ctx, alertID, status, now, actor, notes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "close alert failed")
		return nil, fmt.Errorf("failed to update alert status: %w", err)
	}
	if !updated {
		// 別の管理者が先に遷移させた
		current, err := m.alerts.FindByID(ctx, alertID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload alert: %w", err)
		}
		if current == nil {
			return nil, model.NewAlertNotFoundError(alertID)
		}
		return m.settled(current, status)
	}

	alert.Status = status
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	if notes != "" {
		alert.Notes = notes
	}
	alert.UpdatedAt = now

	m.metrics.RecordAlertTransition(string(status))

	if err := publishEvent(context.WithoutCancel(ctx), m.publisher, m.publishTimeout, events.NewAlertEvent(events.TypeAlertTransitioned, alert, now)); err != nil {
		m.logger.WarnContext(ctx, "アラート遷移イベントの発行に失敗しました",
			slog.String("alert_id", alertID),
			slog.String("error", err.Error()),
		)
	}

	m.logger.InfoContext(ctx, "アラートのステータスを更新しました",
		slog.String("alert_id", alertID),
		slog.String("status", string(status)),
		slog.String("resolved_by", actor),
	)
	return alert, nil
}

// settled は終端状態のアラートに対する遷移要求を判定する。
func (m *LifecycleManager) settled(alert *model.SOSAlert, target model.AlertStatus) (*model.SOSAlert, error) {
	if alert.Status == target {
		return alert, nil
	}
	return nil, model.NewInvalidTransitionError(alert.Status, target)
}
