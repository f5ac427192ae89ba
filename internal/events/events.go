// Package events はアラートのライフサイクルイベントを外部へ通知する。
//
// イベントの発行はベストエフォートで、失敗してもSOS発信やステータス遷移の
// 結果には影響しない。KAFKA_BROKERSが未設定の場合はNopを使う。
package events

import (
	"context"
	"time"

	"github.com/hitoshi/touristguard/internal/model"
)

// イベント種別
const (
	TypeAlertCreated      = "alert.created"
	TypeAlertTransitioned = "alert.transitioned"
)

// AlertEvent はトピックに書き込むイベント本体。
type AlertEvent struct {
	Type             string    `json:"type"`
	AlertID          string    `json:"alert_id"`
	UserID           string    `json:"user_id"`
	AlertType        string    `json:"alert_type"`
	Status           string    `json:"status"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	ContactsNotified int       `json:"contacts_notified"`
	PoliceNotified   bool      `json:"police_notified"`
	ResolvedBy       string    `json:"resolved_by,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewAlertEvent はアラートからイベントを組み立てる。
func NewAlertEvent(eventType string, alert *model.SOSAlert, at time.Time) AlertEvent {
	return AlertEvent{
		Type:             eventType,
		AlertID:          alert.ID,
		UserID:           alert.UserID,
		AlertType:        string(alert.AlertType),
		Status:           string(alert.Status),
		Latitude:         alert.Location.Latitude,
		Longitude:        alert.Location.Longitude,
		ContactsNotified: len(alert.ContactsNotified),
		PoliceNotified:   alert.PoliceNotified,
		ResolvedBy:       alert.ResolvedBy,
		OccurredAt:       at.UTC(),
	}
}

// Publisher はアラートイベントの発行インターフェース。
type Publisher interface {
	Publish(ctx context.Context, event AlertEvent) error
	Close()
}

// Nop は何もしないPublisher。
type Nop struct{}

func (Nop) Publish(context.Context, AlertEvent) error { return nil }
func (Nop) Close()                                    {}

var _ Publisher = Nop{}
