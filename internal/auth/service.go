// Package auth は旅行者と管理者の認証、アクセストークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/repository"
	"github.com/hitoshi/touristguard/internal/security"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	adminRepo repository.AdminRepository
	tokens    *TokenService
	sanitizer security.TextSanitizer
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	adminRepo repository.AdminRepository,
	tokens *TokenService,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:  userRepo,
		adminRepo: adminRepo,
		tokens:    tokens,
		sanitizer: sanitizer,
	}
}

// Register はユーザーを作成し、トークンを発行する。
// 作成直後のユーザーは未検証のため、検証が完了するまでSOSは送信できない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *Token, error) {
	name := s.sanitizer.Sanitize(in.Name, 100)
	if name == "" {
		return nil, nil, model.NewInvalidRequestError("名前は必須です")
	}
	phone, ok := model.NormalizePhone(in.Phone)
	if !ok {
		return nil, nil, model.NewInvalidRequestError("電話番号の形式が正しくありません")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, nil, model.NewInvalidRequestError("パスワードを設定できません")
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewDuplicateUserError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.IssueUserToken(user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return user, token, nil
}

// Login はメールアドレスとパスワードでユーザーを認証する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *Token, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.IssueUserToken(user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

// AdminLogin はユーザー名とパスワードで管理者を認証する。
func (s *Service) AdminLogin(ctx context.Context, username, password string) (*model.Admin, *Token, error) {
	admin, err := s.adminRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil || !CheckPassword(admin.PasswordHash, password) {
		slog.Warn("admin login failed", slog.String("username", username))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.IssueAdminToken(admin.ID, admin.Username)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("admin logged in", slog.String("admin_id", admin.ID))
	return admin, token, nil
}

// CreateAdmin は管理者を作成、または既存の管理者のパスワードを更新する。
func (s *Service) CreateAdmin(ctx context.Context, username, password string) (*model.Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, model.NewInvalidRequestError("ユーザー名とパスワードは必須です")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &model.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.adminRepo.Upsert(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to save admin: %w", err)
	}
	return admin, nil
}
