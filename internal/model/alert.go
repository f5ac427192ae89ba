package model

import "time"

// AlertType はSOSアラートの種別を表す。
type AlertType string

const (
	AlertTypeEmergency AlertType = "emergency"
	AlertTypePanic     AlertType = "panic"
	AlertTypeMedical   AlertType = "medical"
	AlertTypeSecurity  AlertType = "security"
)

// ParseAlertType は文字列をAlertTypeに変換する。
// 空文字列はemergencyとして扱う。未知の値はfalseを返す。
func ParseAlertType(s string) (AlertType, bool) {
	switch AlertType(s) {
	case "":
		return AlertTypeEmergency, true
	case AlertTypeEmergency, AlertTypePanic, AlertTypeMedical, AlertTypeSecurity:
		return AlertType(s), true
	default:
		return "", false
	}
}

// AlertStatus はSOSアラートの状態を表す。
type AlertStatus string

const (
	// AlertStatusActive は対応中の初期状態。
	AlertStatusActive AlertStatus = "active"
	// AlertStatusResolved は対応完了の終端状態。
	AlertStatusResolved AlertStatus = "resolved"
	// AlertStatusFalseAlarm は誤報として閉じた終端状態。
	AlertStatusFalseAlarm AlertStatus = "false_alarm"
)

// IsTerminal は終端状態かどうかを返す。
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusFalseAlarm
}

// Valid は定義済みの状態かどうかを返す。
func (s AlertStatus) Valid() bool {
	return s == AlertStatusActive || s.IsTerminal()
}

// NotificationStatus は宛先ごとの通知結果を表す。
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationPending NotificationStatus = "pending"
)

// DefaultAddress は住所未指定時に保存する値。
const DefaultAddress = "Location not specified"

// Location はアラート発生地点。
type Location struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// ContactNotification は1件の緊急連絡先への通知試行の記録。
// アラート作成時に確定し、以後変更されない。
type ContactNotification struct {
	Name               string
	Phone              string
	NotificationStatus NotificationStatus
	SentAt             *time.Time
}

// SOSAlert は1回のSOS送信の監査記録。
// 作成後はステータスと解決情報のみが更新される。
type SOSAlert struct {
	ID                       string
	UserID                   string
	Location                 Location
	AlertType                AlertType
	Status                   AlertStatus
	ContactsNotified         []ContactNotification
	PoliceNotified           bool
	PoliceNotificationStatus NotificationStatus
	ResolvedAt               *time.Time
	ResolvedBy               string
	Notes                    string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// ContactsSentCount は送信成功した連絡先の数を返す。
func (a *SOSAlert) ContactsSentCount() int {
	n := 0
	for _, c := range a.ContactsNotified {
		if c.NotificationStatus == NotificationSent {
			n++
		}
	}
	return n
}

// AlertFilter は管理画面のアラート一覧の絞り込み条件。
type AlertFilter struct {
	Status AlertStatus
	// Date が非nilの場合、その日（UTC）に作成されたアラートのみを返す。
	Date  *time.Time
	Page  int
	Limit int
}

// AlertPage はページング済みのアラート一覧。
type AlertPage struct {
	Alerts []*SOSAlert
	Page   int
	Limit  int
	Total  int
}

// Pages は総ページ数を返す。
func (p *AlertPage) Pages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}
