package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/touristguard/internal/contact"
	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
)

// ContactServiceInterface は緊急連絡先ハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.EmergencyContact, error)
	Add(ctx context.Context, userID string, in contact.CreateInput) (*model.EmergencyContact, error)
	Update(ctx context.Context, userID, contactID string, in contact.UpdateInput) (*model.EmergencyContact, error)
	Delete(ctx context.Context, userID, contactID string) error
}

// ContactHandler は緊急連絡先のHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
}

// NewContactHandler はContactHandlerを生成する。
func NewContactHandler(service ContactServiceInterface) *ContactHandler {
	return &ContactHandler{service: service}
}

type createContactRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"required,max=20"`
	Relationship string `json:"relationship" validate:"required,max=100"`
	Priority     *int   `json:"priority"`
}

type updateContactRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=100"`
	Phone        *string `json:"phone" validate:"omitempty,max=20"`
	Relationship *string `json:"relationship" validate:"omitempty,max=100"`
	Priority     *int    `json:"priority"`
}

type contactResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Relationship string    `json:"relationship"`
	Priority     int       `json:"priority"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type contactListResponse struct {
	Contacts []contactResponse `json:"contacts"`
}

func toContactResponse(c *model.EmergencyContact) contactResponse {
	return contactResponse{
		ID:           c.ID,
		Name:         c.Name,
		Phone:        c.Phone,
		Relationship: c.Relationship,
		Priority:     c.Priority,
		Position:     c.Position,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// List は緊急連絡先を登録順で返す。
// GET /api/emergency/contacts
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	contacts, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := contactListResponse{Contacts: make([]contactResponse, len(contacts))}
	for i, c := range contacts {
		resp.Contacts[i] = toContactResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Add は緊急連絡先を追加する。
// POST /api/emergency/contacts
func (h *ContactHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createContactRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	c, err := h.service.Add(r.Context(), userID, contact.CreateInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
		Priority:     req.Priority,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toContactResponse(c))
}

// Update は緊急連絡先を部分更新する。
// PUT /api/emergency/contacts/{id}
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateContactRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	c, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), contact.UpdateInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Relationship: req.Relationship,
		Priority:     req.Priority,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toContactResponse(c))
}

// Delete は緊急連絡先を削除する。
// DELETE /api/emergency/contacts/{id}
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
