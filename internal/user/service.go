// Package user はユーザープロフィールと検証状態のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/touristguard/internal/model"
)

// UserStore はプロフィール参照と検証フラグ更新に必要な永続化操作。
// repository.UserRepositoryの部分集合として定義する。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateVerification(ctx context.Context, id string, phoneVerified, documentVerified *bool) (*model.User, error)
}

// Service はユーザー管理のサービス層。
type Service struct {
	users  UserStore
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users UserStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, logger: logger}
}

// Profile はログイン中ユーザーのプロフィールを返す。
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// SetVerification は管理者による電話番号・本人書類の検証結果を反映する。
// nilのフラグは変更しない。両方nilの場合は現在の状態をそのまま返す。
func (s *Service) SetVerification(ctx context.Context, userID string, phoneVerified, documentVerified *bool) (*model.User, error) {
	if phoneVerified == nil && documentVerified == nil {
		return s.Profile(ctx, userID)
	}

	u, err := s.users.UpdateVerification(ctx, userID, phoneVerified, documentVerified)
	if err != nil {
		return nil, fmt.Errorf("検証状態の更新に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.logger.InfoContext(ctx, "ユーザーの検証状態を更新しました",
		slog.String("user_id", userID),
		slog.Bool("phone_verified", u.PhoneVerified),
		slog.Bool("document_verified", u.DocumentVerified),
	)
	return u, nil
}
