package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/touristguard/internal/auth"
	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/sos"
)

const testJWTSecret = "router-test-secret-0123456789abcdef"

type routerFixture struct {
	handler     http.Handler
	tokens      *auth.TokenService
	rateLimiter *middleware.RateLimiter
	emergency   *mockEmergencyService
}

func newRouterFixture(t *testing.T, cfg middleware.RateLimiterConfig) *routerFixture {
	t.Helper()

	tokens := auth.NewTokenService(testJWTSecret, time.Hour, time.Hour)
	rl := middleware.NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)

	emergency := &mockEmergencyService{}
	h := NewRouter(&RouterDeps{
		TokenValidator:    tokens,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
		AuthService:      &mockAuthService{},
		ProfileService:   &mockProfileService{},
		EmergencyService: emergency,
		ContactService:   &mockContactService{},
		AdminService:     &mockAdminService{},
	})

	return &routerFixture{handler: h, tokens: tokens, rateLimiter: rl, emergency: emergency}
}

func (f *routerFixture) userToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.tokens.IssueUserToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("IssueUserToken: %v", err)
	}
	return tok.Value
}

func (f *routerFixture) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := f.tokens.IssueAdminToken("admin-1", "ops")
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}
	return tok.Value
}

func (f *routerFixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_RouteAccess(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	user := f.userToken(t, "user-1")
	admin := f.adminToken(t)

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		body       string
		wantStatus int
	}{
		{name: "health is public", method: http.MethodGet, target: "/health", wantStatus: http.StatusOK},
		{name: "metrics is public", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},

		{name: "trigger without token", method: http.MethodPost, target: "/api/emergency/trigger", body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "trigger with user token", method: http.MethodPost, target: "/api/emergency/trigger", token: user, body: `{"latitude":1,"longitude":2}`, wantStatus: http.StatusOK},
		{name: "sos alias", method: http.MethodPost, target: "/api/emergency/sos", token: user, body: `{"latitude":1,"longitude":2}`, wantStatus: http.StatusOK},
		{name: "trigger with admin token", method: http.MethodPost, target: "/api/emergency/trigger", token: admin, body: `{}`, wantStatus: http.StatusUnauthorized},
		{name: "history", method: http.MethodGet, target: "/api/emergency/history", token: user, wantStatus: http.StatusOK},
		{name: "contacts list", method: http.MethodGet, target: "/api/emergency/contacts", token: user, wantStatus: http.StatusOK},
		{name: "contacts delete", method: http.MethodDelete, target: "/api/emergency/contacts/c1", token: user, wantStatus: http.StatusNoContent},
		{name: "me", method: http.MethodGet, target: "/api/auth/me", token: user, wantStatus: http.StatusOK},

		{name: "admin stats with user token", method: http.MethodGet, target: "/api/admin/stats", token: user, wantStatus: http.StatusForbidden},
		{name: "admin stats without token", method: http.MethodGet, target: "/api/admin/stats", wantStatus: http.StatusUnauthorized},
		{name: "admin stats", method: http.MethodGet, target: "/api/admin/stats", token: admin, wantStatus: http.StatusOK},
		{name: "admin alerts", method: http.MethodGet, target: "/api/admin/alerts", token: admin, wantStatus: http.StatusOK},
		{name: "admin alert detail", method: http.MethodGet, target: "/api/admin/alerts/missing", token: admin, wantStatus: http.StatusNotFound},
		{name: "admin resolve", method: http.MethodPut, target: "/api/admin/alerts/a1/resolve", token: admin, wantStatus: http.StatusOK},
		{name: "admin update", method: http.MethodPut, target: "/api/admin/alerts/a1/update", token: admin, body: `{"status":"false_alarm"}`, wantStatus: http.StatusOK},
		{name: "admin verification", method: http.MethodPut, target: "/api/admin/users/user-1/verification", token: admin, body: `{"phoneVerified":true}`, wantStatus: http.StatusOK},

		{name: "login is public", method: http.MethodPost, target: "/api/auth/login", body: `{"email":"a@example.com","password":"x"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, target: "/api/unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.target, tt.token, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d; body=%s", tt.method, tt.target, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_TriggerIsNotRateLimited(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.GeneralRate = rate.Limit(0.001)
	cfg.GeneralBurst = 1
	f := newRouterFixture(t, cfg)
	user := f.userToken(t, "user-1")

	calls := 0
	f.emergency.triggerFn = func(context.Context, sos.TriggerRequest) (*sos.Summary, error) {
		calls++
		return &sos.Summary{AlertID: "a", AlertType: model.AlertTypeEmergency}, nil
	}

	for i := 0; i < 5; i++ {
		w := f.do(http.MethodPost, "/api/emergency/trigger", user, `{"latitude":1,"longitude":2}`)
		if w.Code != http.StatusOK {
			t.Fatalf("trigger #%d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
	if calls != 5 {
		t.Errorf("trigger calls = %d, want 5", calls)
	}

	if w := f.do(http.MethodGet, "/api/emergency/history", user, ""); w.Code != http.StatusOK {
		t.Fatalf("first history status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := f.do(http.MethodGet, "/api/emergency/history", user, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second history status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestRouter_AuthAttemptsLimitedPerIP(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.AuthRate = rate.Limit(0.001)
	cfg.AuthBurst = 2
	f := newRouterFixture(t, cfg)

	for i := 0; i < 2; i++ {
		w := f.do(http.MethodPost, "/api/auth/login", "", `{"email":"a@example.com","password":"x"}`)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt #%d status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}
	w := f.do(http.MethodPost, "/api/admin/login", "", `{"username":"ops","password":"x"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if f.rateLimiter.AuthLimiterCount() != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", f.rateLimiter.AuthLimiterCount())
	}
}

func TestRouter_SecurityHeadersAndCORS(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/emergency/trigger", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}
