// Package contact は緊急連絡先の管理ロジックを提供する。
//
// 連絡先の並び順は登録順で固定され、SOS発信時の通知順序になる。
// 既存のアラート記録は発信時点の連絡先のスナップショットを持つため、
// ここでの追加・変更・削除が過去のアラートに影響することはない。
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/repository"
	"github.com/hitoshi/touristguard/internal/security"
)

const (
	// maxNameLength は名前と続柄の最大文字数。
	maxNameLength = 100
	// minPriority、maxPriority は優先度の範囲。
	minPriority = 1
	maxPriority = 3
)

// CreateInput は連絡先追加の入力。
type CreateInput struct {
	Name         string
	Phone        string
	Relationship string
	// Priority が nil の場合は1になる。
	Priority *int
}

// UpdateInput は連絡先更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name         *string
	Phone        *string
	Relationship *string
	Priority     *int
}

// Service は緊急連絡先のサービス層。
type Service struct {
	repo      repository.ContactRepository
	sanitizer security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ContactRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer}
}

// List はユーザーの連絡先を登録順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.EmergencyContact, error) {
	contacts, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("緊急連絡先一覧の取得に失敗しました: %w", err)
	}
	return contacts, nil
}

// Add は連絡先を末尾に追加する。上限に達している場合はCONTACT_LIMITを返す。
func (s *Service) Add(ctx context.Context, userID string, in CreateInput) (*model.EmergencyContact, error) {
	name := s.sanitizer.Sanitize(in.Name, maxNameLength)
	relationship := s.sanitizer.Sanitize(in.Relationship, maxNameLength)
	if name == "" || relationship == "" {
		return nil, model.NewInvalidRequestError("名前・電話番号・続柄は必須です")
	}
	phone, ok := model.NormalizePhone(in.Phone)
	if !ok {
		return nil, model.NewInvalidRequestError("電話番号の形式が正しくありません")
	}

	priority := minPriority
	if in.Priority != nil {
		priority = clampPriority(*in.Priority)
	}

	now := time.Now().UTC()
	c := &model.EmergencyContact{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Phone:        phone,
		Relationship: relationship,
		Priority:     priority,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, c, model.MaxEmergencyContacts)
	if err != nil {
		return nil, fmt.Errorf("緊急連絡先の追加に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewContactLimitError()
	}

	slog.Info("緊急連絡先を追加しました",
		slog.String("user_id", userID),
		slog.String("contact_id", c.ID),
		slog.Int("position", c.Position),
	)
	return c, nil
}

// Update は連絡先を部分更新する。並び順は変わらない。
func (s *Service) Update(ctx context.Context, userID, contactID string, in UpdateInput) (*model.EmergencyContact, error) {
	c, err := s.repo.FindByID(ctx, userID, contactID)
	if err != nil {
		return nil, fmt.Errorf("緊急連絡先の取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewContactNotFoundError(contactID)
	}

	if in.Name != nil {
		name := s.sanitizer.Sanitize(*in.Name, maxNameLength)
		if name == "" {
			return nil, model.NewInvalidRequestError("名前は空にできません")
		}
		c.Name = name
	}
	if in.Relationship != nil {
		relationship := s.sanitizer.Sanitize(*in.Relationship, maxNameLength)
		if relationship == "" {
			return nil, model.NewInvalidRequestError("続柄は空にできません")
		}
		c.Relationship = relationship
	}
	if in.Phone != nil {
		phone, ok := model.NormalizePhone(*in.Phone)
		if !ok {
			return nil, model.NewInvalidRequestError("電話番号の形式が正しくありません")
		}
		c.Phone = phone
	}
	if in.Priority != nil {
		c.Priority = clampPriority(*in.Priority)
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("緊急連絡先の更新に失敗しました: %w", err)
	}
	return c, nil
}

// Delete は連絡先を削除する。
func (s *Service) Delete(ctx context.Context, userID, contactID string) error {
	deleted, err := s.repo.Delete(ctx, userID, contactID)
	if err != nil {
		return fmt.Errorf("緊急連絡先の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewContactNotFoundError(contactID)
	}
	return nil
}

func clampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}
