// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/touristguard/internal/auth"
	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, *auth.Token, error)
	Login(ctx context.Context, email, password string) (*model.User, *auth.Token, error)
	AdminLogin(ctx context.Context, username, password string) (*model.Admin, *auth.Token, error)
}

// ProfileServiceInterface はログイン中ユーザーのプロフィール取得インターフェース。
type ProfileServiceInterface interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	profiles ProfileServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileServiceInterface) *AuthHandler {
	return &AuthHandler{
		service:  service,
		profiles: profiles,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"required,max=20"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// userResponse は旅行者プロフィールのAPIレスポンス。
type userResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	PhoneVerified    bool      `json:"phoneVerified"`
	DocumentVerified bool      `json:"documentVerified"`
	FullyVerified    bool      `json:"fullyVerified"`
	CreatedAt        time.Time `json:"createdAt"`
}

type adminResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      *userResponse  `json:"user,omitempty"`
	Admin     *adminResponse `json:"admin,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Phone:            u.Phone,
		PhoneVerified:    u.PhoneVerified,
		DocumentVerified: u.DocumentVerified,
		FullyVerified:    u.IsFullyVerified(),
		CreatedAt:        u.CreatedAt,
	}
}

// Register は旅行者を登録し、アクセストークンを返す。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, token, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	u := toUserResponse(user)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt, User: &u})
}

// Login は旅行者のログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	u := toUserResponse(user)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt, User: &u})
}

// AdminLogin は管理者のログインを処理する。
// POST /api/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if apiErr := decodeAndValidate(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	admin, token, err := h.service.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		Admin:     &adminResponse{ID: admin.ID, Username: admin.Username, Role: admin.Role},
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
