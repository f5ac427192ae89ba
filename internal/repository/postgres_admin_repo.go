package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/touristguard/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// FindByUsername はユーザー名で管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByUsername(ctx context.Context, username string) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM admins WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	return a, nil
}

// Upsert は管理者を作成、または既存管理者のパスワードとロールを更新する。
func (r *PostgresAdminRepo) Upsert(ctx context.Context, a *model.Admin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (id, username, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO UPDATE
		 SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role`,
		a.ID, a.Username, a.PasswordHash, a.Role, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert admin: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
