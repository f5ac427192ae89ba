package handler

import (
	"time"

	"github.com/hitoshi/touristguard/internal/model"
)

// contactNotificationResponse は連絡先1件分の通知結果。
type contactNotificationResponse struct {
	Name               string     `json:"name"`
	Phone              string     `json:"phone"`
	NotificationStatus string     `json:"notificationStatus"`
	SentAt             *time.Time `json:"sentAt,omitempty"`
}

// alertResponse はアラート記録のAPIレスポンス。
type alertResponse struct {
	ID                       string                        `json:"id"`
	UserID                   string                        `json:"userId"`
	Location                 locationResponse              `json:"location"`
	AlertType                string                        `json:"alertType"`
	Status                   string                        `json:"status"`
	ContactsNotified         []contactNotificationResponse `json:"contactsNotified"`
	PoliceNotified           bool                          `json:"policeNotified"`
	PoliceNotificationStatus string                        `json:"policeNotificationStatus"`
	ResolvedAt               *time.Time                    `json:"resolvedAt,omitempty"`
	ResolvedBy               string                        `json:"resolvedBy,omitempty"`
	Notes                    string                        `json:"notes,omitempty"`
	CreatedAt                time.Time                     `json:"createdAt"`
	UpdatedAt                time.Time                     `json:"updatedAt"`
}

func toAlertResponse(a *model.SOSAlert) alertResponse {
	contacts := make([]contactNotificationResponse, len(a.ContactsNotified))
	for i, c := range a.ContactsNotified {
		contacts[i] = contactNotificationResponse{
			Name:               c.Name,
			Phone:              c.Phone,
			NotificationStatus: string(c.NotificationStatus),
			SentAt:             c.SentAt,
		}
	}
	return alertResponse{
		ID:     a.ID,
		UserID: a.UserID,
		Location: locationResponse{
			Latitude:  a.Location.Latitude,
			Longitude: a.Location.Longitude,
			Address:   a.Location.Address,
		},
		AlertType:                string(a.AlertType),
		Status:                   string(a.Status),
		ContactsNotified:         contacts,
		PoliceNotified:           a.PoliceNotified,
		PoliceNotificationStatus: string(a.PoliceNotificationStatus),
		ResolvedAt:               a.ResolvedAt,
		ResolvedBy:               a.ResolvedBy,
		Notes:                    a.Notes,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}
}

func toAlertResponses(alerts []*model.SOSAlert) []alertResponse {
	out := make([]alertResponse, len(alerts))
	for i, a := range alerts {
		out[i] = toAlertResponse(a)
	}
	return out
}
