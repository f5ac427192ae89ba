package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/sos"
)

// EmergencyServiceInterface は旅行者向け緊急ハンドラーが必要とするサービスインターフェース。
type EmergencyServiceInterface interface {
	// Trigger はSOSを発信し、記録したアラートの要約を返す。
	Trigger(ctx context.Context, req sos.TriggerRequest) (*sos.Summary, error)
	// History は利用者の直近のアラートを新しい順に返す。
	History(ctx context.Context, userID string) ([]*model.SOSAlert, error)
}

// EmergencyHandler はSOS発信と履歴のHTTPハンドラー。
type EmergencyHandler struct {
	service EmergencyServiceInterface
}

// NewEmergencyHandler はEmergencyHandlerを生成する。
func NewEmergencyHandler(service EmergencyServiceInterface) *EmergencyHandler {
	return &EmergencyHandler{service: service}
}

// triggerRequest はSOS発信リクエストのボディ。
// 座標の欠落はサービス層でMISSING_LOCATIONとして扱うため、ここでは範囲のみ検証する。
type triggerRequest struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Address   string   `json:"address"`
	AlertType string   `json:"alertType"`
}

type locationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// triggerResponse はSOS発信のレスポンス。
// 個々の送信失敗はここには現れず、記録されたアラートでのみ確認できる。
type triggerResponse struct {
	AlertID               string           `json:"alertId"`
	AlertType             string           `json:"alertType"`
	Location              locationResponse `json:"location"`
	ContactsNotifiedCount int              `json:"contactsNotifiedCount"`
	PoliceNotified        bool             `json:"policeNotified"`
	CreatedAt             time.Time        `json:"createdAt"`
}

type historyResponse struct {
	Alerts []alertResponse `json:"alerts"`
}

// Trigger はSOSを発信する。
// POST /api/emergency/trigger
func (h *EmergencyHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req triggerRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	summary, err := h.service.Trigger(r.Context(), sos.TriggerRequest{
		UserID:    userID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
		AlertType: req.AlertType,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		AlertID:   summary.AlertID,
		AlertType: string(summary.AlertType),
		Location: locationResponse{
			Latitude:  summary.Location.Latitude,
			Longitude: summary.Location.Longitude,
			Address:   summary.Location.Address,
		},
		ContactsNotifiedCount: summary.ContactsNotified,
		PoliceNotified:        summary.PoliceNotified,
		CreatedAt:             summary.CreatedAt,
	})
}

// History は利用者のSOS履歴を返す。
// GET /api/emergency/history
func (h *EmergencyHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	alerts, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Alerts: toAlertResponses(alerts)})
}
