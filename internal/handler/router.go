package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/touristguard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService    AuthServiceInterface
	ProfileService ProfileServiceInterface

	// 旅行者
	EmergencyService EmergencyServiceInterface
	ContactService   ContactServiceInterface

	// 管理者
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → Logging → SecurityHeaders → CORS → (UserAuth | AdminAuth) → RateLimit(General)
//
// SOS発信はレート制限の外に置き、連続した発信も拒否しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	// CORS ミドルウェア（未定義ルートへのプリフライトにも効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService)
	emergencyHandler := NewEmergencyHandler(deps.EmergencyService)
	contactHandler := NewContactHandler(deps.ContactService)
	adminHandler := NewAdminHandler(deps.AdminService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthAttemptMiddleware())
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/admin/login", authHandler.AdminLogin)
	})

	// --- 旅行者ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewUserAuthMiddleware(deps.TokenValidator))

		// SOS発信（レート制限なし）
		r.Post("/api/emergency/trigger", emergencyHandler.Trigger)
		r.Post("/api/emergency/sos", emergencyHandler.Trigger)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/auth/me", authHandler.Me)
			r.Get("/api/emergency/history", emergencyHandler.History)

			r.Route("/api/emergency/contacts", func(r chi.Router) {
				r.Get("/", contactHandler.List)
				r.Post("/", contactHandler.Add)
				r.Put("/{id}", contactHandler.Update)
				r.Delete("/{id}", contactHandler.Delete)
			})
		})
	})

	// --- 管理者ルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminAuthMiddleware(deps.TokenValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/admin/stats", adminHandler.Stats)

		r.Route("/api/admin/alerts", func(r chi.Router) {
			r.Get("/", adminHandler.ListAlerts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetAlert)
				r.Put("/resolve", adminHandler.Resolve)
				r.Put("/update", adminHandler.UpdateStatus)
			})
		})

		r.Put("/api/admin/users/{id}/verification", adminHandler.SetVerification)
	})

	return r
}
