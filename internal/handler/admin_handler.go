package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
)

// AdminServiceInterface は管理コンソールのハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListAlerts(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error)
	GetAlert(ctx context.Context, alertID string) (*model.SOSAlert, error)
	// Transition はactiveのアラートを終端状態に遷移させる。actorは記録に残す管理者名。
	Transition(ctx context.Context, alertID, target, notes, actor string) (*model.SOSAlert, error)
	Stats(ctx context.Context) (*model.UserStats, error)
	SetVerification(ctx context.Context, userID string, phoneVerified, documentVerified *bool) (*model.User, error)
}

// AdminHandler は管理コンソールのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// updateStatusRequest の status は空でもサービス層でINVALID_STATUSとして扱う。
type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type verificationRequest struct {
	PhoneVerified    *bool `json:"phoneVerified"`
	DocumentVerified *bool `json:"documentVerified"`
}

type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type alertListResponse struct {
	Alerts     []alertResponse    `json:"alerts"`
	Pagination paginationResponse `json:"pagination"`
}

type statsResponse struct {
	ActiveAlerts  int `json:"activeAlerts"`
	TotalUsers    int `json:"totalUsers"`
	VerifiedUsers int `json:"verifiedUsers"`
}

// ListAlerts は絞り込み・ページングしたアラート一覧を返す。
// GET /api/admin/alerts?status=&date=YYYY-MM-DD&page=&limit=
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := parseAlertFilter(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.service.ListAlerts(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, alertListResponse{
		Alerts: toAlertResponses(page.Alerts),
		Pagination: paginationResponse{
			Page:  page.Page,
			Limit: page.Limit,
			Total: page.Total,
			Pages: page.Pages(),
		},
	})
}

// parseAlertFilter はクエリパラメータから一覧の絞り込み条件を組み立てる。
// statusの妥当性はサービス層で検証する。
func parseAlertFilter(r *http.Request) (model.AlertFilter, *model.APIError) {
	q := r.URL.Query()
	filter := model.AlertFilter{Status: model.AlertStatus(q.Get("status"))}

	if v := q.Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filter, model.NewInvalidRequestError("date は YYYY-MM-DD 形式で指定してください")
		}
		filter.Date = &d
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, model.NewInvalidRequestError("page は整数で指定してください")
		}
		filter.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, model.NewInvalidRequestError("limit は整数で指定してください")
		}
		filter.Limit = n
	}
	return filter, nil
}

// GetAlert はアラートの詳細を返す。
// GET /api/admin/alerts/{id}
func (h *AdminHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(alert))
}

// Resolve はアラートを対応完了にする。
// PUT /api/admin/alerts/{id}/resolve
func (h *AdminHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
	}
	h.transition(w, r, string(model.AlertStatusResolved), req.Notes)
}

// UpdateStatus はアラートを指定の終端状態にする。
// PUT /api/admin/alerts/{id}/update
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	h.transition(w, r, req.Status, req.Notes)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, target, notes string) {
	admin, err := middleware.AdminFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	alert, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), target, notes, admin.Username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(alert))
}

// Stats はダッシュボード用の集計値を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ActiveAlerts:  stats.ActiveAlerts,
		TotalUsers:    stats.TotalUsers,
		VerifiedUsers: stats.VerifiedUsers,
	})
}

// SetVerification は旅行者の電話番号・本人書類の検証状態を更新する。
// PUT /api/admin/users/{id}/verification
func (h *AdminHandler) SetVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.SetVerification(r.Context(), chi.URLParam(r, "id"), req.PhoneVerified, req.DocumentVerified)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
