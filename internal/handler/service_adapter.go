package handler

import (
	"context"

	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/sos"
	"github.com/hitoshi/touristguard/internal/user"
)

// EmergencyServiceAdapter は sos.Dispatcher と sos.AlertQueries を EmergencyServiceInterface に適合させるアダプタ。
type EmergencyServiceAdapter struct {
	dispatcher *sos.Dispatcher
	queries    *sos.AlertQueries
}

// NewEmergencyServiceAdapter はEmergencyServiceAdapterを生成する。
func NewEmergencyServiceAdapter(dispatcher *sos.Dispatcher, queries *sos.AlertQueries) *EmergencyServiceAdapter {
	return &EmergencyServiceAdapter{dispatcher: dispatcher, queries: queries}
}

// Trigger はSOSを発信する。
func (a *EmergencyServiceAdapter) Trigger(ctx context.Context, req sos.TriggerRequest) (*sos.Summary, error) {
	return a.dispatcher.Trigger(ctx, req)
}

// History は利用者の直近のアラートを返す。
func (a *EmergencyServiceAdapter) History(ctx context.Context, userID string) ([]*model.SOSAlert, error) {
	return a.queries.History(ctx, userID)
}

// AdminServiceAdapter は管理コンソールが使う複数のドメインサービスを AdminServiceInterface にまとめるアダプタ。
type AdminServiceAdapter struct {
	queries   *sos.AlertQueries
	lifecycle *sos.LifecycleManager
	users     *user.Service
}

// NewAdminServiceAdapter はAdminServiceAdapterを生成する。
func NewAdminServiceAdapter(queries *sos.AlertQueries, lifecycle *sos.LifecycleManager, users *user.Service) *AdminServiceAdapter {
	return &AdminServiceAdapter{queries: queries, lifecycle: lifecycle, users: users}
}

// ListAlerts はアラート一覧を返す。
func (a *AdminServiceAdapter) ListAlerts(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error) {
	return a.queries.List(ctx, filter)
}

// GetAlert はアラートの詳細を返す。
func (a *AdminServiceAdapter) GetAlert(ctx context.Context, alertID string) (*model.SOSAlert, error) {
	return a.queries.Get(ctx, alertID)
}

// Transition はアラートを終端状態に遷移させる。
func (a *AdminServiceAdapter) Transition(ctx context.Context, alertID, target, notes, actor string) (*model.SOSAlert, error) {
	return a.lifecycle.Transition(ctx, alertID, target, notes, actor)
}

// Stats はダッシュボード用の集計値を返す。
func (a *AdminServiceAdapter) Stats(ctx context.Context) (*model.UserStats, error) {
	return a.queries.Stats(ctx)
}

// SetVerification は旅行者の検証状態を更新する。
func (a *AdminServiceAdapter) SetVerification(ctx context.Context, userID string, phoneVerified, documentVerified *bool) (*model.User, error) {
	return a.users.SetVerification(ctx, userID, phoneVerified, documentVerified)
}

// --- compile-time interface checks ---

var _ EmergencyServiceInterface = (*EmergencyServiceAdapter)(nil)
var _ AdminServiceInterface = (*AdminServiceAdapter)(nil)
var _ ProfileServiceInterface = (*user.Service)(nil)
