package sos

import (
	"context"
	"fmt"

	"github.com/hitoshi/touristguard/internal/model"
)

const (
	// HistoryLimit はユーザーの発信履歴として返す最大件数。
	HistoryLimit = 20
	// DefaultPageSize は管理画面の一覧の既定件数。
	DefaultPageSize = 50
	// MaxPageSize は管理画面の一覧の最大件数。
	MaxPageSize = 100
)

// AlertReader はアラートの参照に使うインターフェース。
type AlertReader interface {
	FindByID(ctx context.Context, id string) (*model.SOSAlert, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.SOSAlert, error)
	List(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error)
	CountActive(ctx context.Context) (int, error)
}

// UserCounter はユーザー数の集計に使うインターフェース。
type UserCounter interface {
	CountUsers(ctx context.Context) (total int, verified int, err error)
}

// AlertQueries はアラート記録の参照系操作を提供する。
type AlertQueries struct {
	alerts AlertReader
	users  UserCounter
}

// NewAlertQueries はAlertQueriesの新しいインスタンスを生成する。
func NewAlertQueries(alerts AlertReader, users UserCounter) *AlertQueries {
	return &AlertQueries{alerts: alerts, users: users}
}

// History はユーザー自身の直近のアラートを新しい順に返す。
func (q *AlertQueries) History(ctx context.Context, userID string) ([]*model.SOSAlert, error) {
	alerts, err := q.alerts.ListByUserID(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	return alerts, nil
}

// Get はアラートを1件返す。存在しない場合はALERT_NOT_FOUNDを返す。
func (q *AlertQueries) Get(ctx context.Context, id string) (*model.SOSAlert, error) {
	alert, err := q.alerts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert == nil {
		return nil, model.NewAlertNotFoundError(id)
	}
	return alert, nil
}

// List は絞り込み・ページングしたアラート一覧を返す。
func (q *AlertQueries) List(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.NewInvalidStatusError(string(filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}

	page, err := q.alerts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return page, nil
}

// Stats は管理画面のダッシュボード用の集計を返す。
func (q *AlertQueries) Stats(ctx context.Context) (*model.UserStats, error) {
	active, err := q.alerts.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts: %w", err)
	}
	total, verified, err := q.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	return &model.UserStats{ActiveAlerts: active, TotalUsers: total, VerifiedUsers: verified}, nil
}
