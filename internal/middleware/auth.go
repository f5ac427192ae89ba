// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/touristguard/internal/auth"
	"github.com/hitoshi/touristguard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストに旅行者IDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// adminContextKey はリクエストコンテキストに管理者の識別情報を格納するためのキー。
	adminContextKey = contextKey("admin")
)

// AdminIdentity は認証済み管理者の識別情報。
type AdminIdentity struct {
	ID       string
	Username string
}

// TokenValidator はBearerトークンの検証に必要なインターフェース。
// auth.TokenServiceが実装する。
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// NewUserAuthMiddleware は旅行者トークンを検証し、ユーザーIDをコンテキストに注入するミドルウェアを返す。
// トークンがない、不正、または管理者トークンの場合は401を返す。
func NewUserAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, validator)
			if !ok {
				return
			}
			if claims.Type != auth.TokenTypeUser {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			noteIdentity(r.Context(), claims.Subject, "")
			ctx := ContextWithUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminAuthMiddleware は管理者トークンを検証するミドルウェアを返す。
// 旅行者トークンでのアクセスには403を返す。
func NewAdminAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, validator)
			if !ok {
				return
			}
			if claims.Type != auth.TokenTypeAdmin {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			noteIdentity(r.Context(), "", claims.Username)
			ctx := ContextWithAdmin(r.Context(), AdminIdentity{ID: claims.Subject, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate はAuthorizationヘッダーのBearerトークンを検証する。
// 失敗時は401レスポンスを書き込み、falseを返す。
func authenticate(w http.ResponseWriter, r *http.Request, validator TokenValidator) (*auth.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}

	claims, err := validator.Validate(token)
	if err != nil {
		slog.Debug("token validation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 旅行者認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// AdminFromContext はリクエストコンテキストから管理者の識別情報を取得する。
func AdminFromContext(ctx context.Context) (AdminIdentity, error) {
	admin, ok := ctx.Value(adminContextKey).(AdminIdentity)
	if !ok || admin.ID == "" {
		return AdminIdentity{}, fmt.Errorf("admin not found in context")
	}
	return admin, nil
}

// ContextWithAdmin はコンテキストに管理者の識別情報を注入する。
func ContextWithAdmin(ctx context.Context, admin AdminIdentity) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

// subjectFromContext はレート制限とログに使う呼び出し元の識別子を返す。
// 管理者は "admin:" 接頭辞を付けて旅行者と区別する。
func subjectFromContext(ctx context.Context) (string, bool) {
	if userID, err := UserIDFromContext(ctx); err == nil {
		return userID, true
	}
	if admin, err := AdminFromContext(ctx); err == nil {
		return "admin:" + admin.ID, true
	}
	return "", false
}
