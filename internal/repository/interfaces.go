// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/touristguard/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate record")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスか電話番号が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateVerification は検証フラグを更新する。nilのフラグは変更しない。
	// 対象が存在しない場合はnilを返す。
	UpdateVerification(ctx context.Context, id string, phoneVerified, documentVerified *bool) (*model.User, error)

	// CountUsers は全ユーザー数と完全検証済みユーザー数を返す。
	CountUsers(ctx context.Context) (total int, verified int, err error)
}

// ContactRepository は緊急連絡先の永続化インターフェース。
type ContactRepository interface {
	// ListByUserID はユーザーの連絡先を登録順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.EmergencyContact, error)

	// FindByID はユーザーの連絡先を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.EmergencyContact, error)

	// Create は連絡先を末尾に追加する。上限を超える場合はfalseを返し、何も書き込まない。
	Create(ctx context.Context, contact *model.EmergencyContact, limit int) (bool, error)

	// Update は連絡先の名前・電話番号・続柄・優先度を更新する。
	Update(ctx context.Context, contact *model.EmergencyContact) error

	// Delete は連絡先を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// AlertRepository はSOSアラート記録の永続化インターフェース。
type AlertRepository interface {
	// Create はアラートと宛先ごとの通知結果を同一トランザクションで保存する。
	Create(ctx context.Context, alert *model.SOSAlert) error

	// FindByID は指定IDのアラートを通知結果付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SOSAlert, error)

	// ListByUserID はユーザーのアラートを新しい順に最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.SOSAlert, error)

	// List は管理画面向けに絞り込み・ページングしたアラート一覧を返す。
	List(ctx context.Context, filter model.AlertFilter) (*model.AlertPage, error)

	// CloseActive はactiveのアラートを終端状態に遷移させる。
	// notesが空文字列の場合は既存のメモを保持する。
	// activeでない、または存在しない場合はfalseを返す。
	CloseActive(ctx context.Context, id string, status model.AlertStatus, resolvedAt time.Time, resolvedBy, notes string) (bool, error)

	// CountActive はactiveのアラート数を返す。
	CountActive(ctx context.Context) (int, error)
}

// AdminRepository は管理者アカウントの永続化インターフェース。
type AdminRepository interface {
	// FindByUsername はユーザー名で管理者を取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Admin, error)

	// Upsert は管理者を作成、または同名の管理者のパスワードとロールを更新する。
	Upsert(ctx context.Context, admin *model.Admin) error
}
