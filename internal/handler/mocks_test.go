package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/touristguard/internal/auth"
	"github.com/hitoshi/touristguard/internal/contact"
	"github.com/hitoshi/touristguard/internal/middleware"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/sos"
)

// --- モック定義 ---

type mockEmergencyService struct {
	triggerFn func(ctx context.Context, req sos.TriggerRequest) (*sos.Summary, error)
	historyFn func(ctx context.Context, userID string) ([]*model.SOSAlert, error)
}

func (m *mockEmergencyService) Trigger(ctx context.Context, req sos.TriggerRequest) (*sos.Summary, error) {
	if m.triggerFn != nil {
		return m.triggerFn(ctx, req)
	}
	return &sos.Summary{AlertID: "alert-1", AlertType: model.AlertTypeEmergency}, nil
}

func (m *mockEmergencyService) History(ctx context.Context, userID string) ([]*model.SOSAlert, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

type mockContactService struct {
	listFn   func(ctx context.Context, userID string) ([]*model.EmergencyContact, error)
	addFn    func(ctx context.Context, userID string, in contact.CreateInput) (*model.EmergencyContact, error)
	updateFn func(ctx context.Context, userID, contactID string, in contact.UpdateInput) (*model.EmergencyContact, error)
	deleteFn func(ctx context.Context, userID, contactID string) error
}

func (m *mockContactService) List(ctx context.Context, userID string) ([]*model.EmergencyContact, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockContactService) Add(ctx context.Context, userID string, in contact.CreateInput) (*model.EmergencyContact, error) {
	if m.addFn != nil {
		return m.addFn(ctx, userID, in)
	}
	return &model.EmergencyContact{ID: "contact-1", UserID: userID, Name: in.Name, Phone: in.Phone}, nil
}

func (m *mockContactService) Update(ctx context.Context, userID, contactID string, in contact.UpdateInput) (*model.EmergencyContact, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, contactID, in)
	}
	return &model.EmergencyContact{ID: contactID, UserID: userID}, nil
}

func (m *mockContactService) Delete(ctx context.Context, userID, contactID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, contactID)
	}
	return nil
}

type mockAuthService struct {
	registerFn   func(ctx context.Context, in auth.RegisterInput) (*model.User, *auth.Token, error)
	loginFn      func(ctx context.Context, email, password string) (*model.User, *auth.Token, error)
	adminLoginFn func(ctx context.Context, username, password string) (*model.Admin, *auth.Token, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, *auth.Token, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "user-1", Email: in.Email}, &auth.Token{Value: "tok"}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *auth.Token, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) AdminLogin(ctx context.Context, username, password string) (*model.Admin, *auth.Token, error) {
	if m.adminLoginFn != nil {
		return m.adminLoginFn(ctx, username, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

type mockProfileService struct {
	profileFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockProfileService) Profile(ctx context.Context, userID string) (*model.User, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

type mockAdminService struct {
	listAlertsFn      func(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error)
	getAlertFn        func(ctx context.Context, alertID string) (*model.SOSAlert, error)
	transitionFn      func(ctx context.Context, alertID, target, notes, actor string) (*model.SOSAlert, error)
	statsFn           func(ctx context.Context) (*model.UserStats, error)
	setVerificationFn func(ctx context.Context, userID string, phone, doc *bool) (*model.User, error)
}

func (m *mockAdminService) ListAlerts(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error) {
	if m.listAlertsFn != nil {
		return m.listAlertsFn(ctx, filter)
	}
	return &model.AlertPage{Page: 1, Limit: 50}, nil
}

func (m *mockAdminService) GetAlert(ctx context.Context, alertID string) (*model.SOSAlert, error) {
	if m.getAlertFn != nil {
		return m.getAlertFn(ctx, alertID)
	}
	return nil, model.NewAlertNotFoundError(alertID)
}

func (m *mockAdminService) Transition(ctx context.Context, alertID, target, notes, actor string) (*model.SOSAlert, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, alertID, target, notes, actor)
	}
	return &model.SOSAlert{ID: alertID, Status: model.AlertStatus(target), ResolvedBy: actor}, nil
}

func (m *mockAdminService) Stats(ctx context.Context) (*model.UserStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.UserStats{}, nil
}

func (m *mockAdminService) SetVerification(ctx context.Context, userID string, phone, doc *bool) (*model.User, error) {
	if m.setVerificationFn != nil {
		return m.setVerificationFn(ctx, userID, phone, doc)
	}
	return &model.User{ID: userID}, nil
}

// --- ヘルパー ---

// withUserID はリクエストコンテキストにユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withAdmin はリクエストコンテキストに管理者を注入する。
func withAdmin(r *http.Request, username string) *http.Request {
	return r.WithContext(middleware.ContextWithAdmin(r.Context(), middleware.AdminIdentity{ID: "admin-1", Username: username}))
}

// decodeAPIError はレスポンスボディを統一エラーフォーマットとして読み込む。
func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}
