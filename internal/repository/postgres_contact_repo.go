package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/touristguard/internal/model"
)

// PostgresContactRepo はPostgreSQLを使用した緊急連絡先リポジトリ。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

const contactColumns = `id, user_id, name, phone, relationship, priority, position, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*model.EmergencyContact, error) {
	c := &model.EmergencyContact{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Relationship,
		&c.Priority, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByUserID はユーザーの連絡先を登録順で返す。
func (r *PostgresContactRepo) ListByUserID(ctx context.Context, userID string) ([]*model.EmergencyContact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM emergency_contacts
		 WHERE user_id = $1 ORDER BY position ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("緊急連絡先一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contacts []*model.EmergencyContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("緊急連絡先のスキャンに失敗しました: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("緊急連絡先の走査に失敗しました: %w", err)
	}
	return contacts, nil
}

// FindByID はユーザーの連絡先を取得する。見つからない場合はnilを返す。
func (r *PostgresContactRepo) FindByID(ctx context.Context, userID, id string) (*model.EmergencyContact, error) {
	if !isUUID(id) {
		return nil, nil
	}
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM emergency_contacts WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("緊急連絡先の取得に失敗しました: %w", err)
	}
	return c, nil
}

// Create は連絡先を末尾に追加する。
// ユーザー行をFOR UPDATEでロックし、件数確認と位置の採番を直列化する。
func (r *PostgresContactRepo) Create(ctx context.Context, c *model.EmergencyContact, limit int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, c.UserID); err != nil {
		return false, fmt.Errorf("ユーザー行のロックに失敗しました: %w", err)
	}

	var count, nextPosition int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(max(position) + 1, 0) FROM emergency_contacts WHERE user_id = $1`,
		c.UserID,
	).Scan(&count, &nextPosition)
	if err != nil {
		return false, fmt.Errorf("緊急連絡先数の取得に失敗しました: %w", err)
	}
	if count >= limit {
		return false, nil
	}

	c.Position = nextPosition
	_, err = tx.ExecContext(ctx,
		`INSERT INTO emergency_contacts (`+contactColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, c.Name, c.Phone, c.Relationship, c.Priority, c.Position, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("緊急連絡先の作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Update は連絡先を更新する。登録順（position）は変更しない。
func (r *PostgresContactRepo) Update(ctx context.Context, c *model.EmergencyContact) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE emergency_contacts
		 SET name = $3, phone = $4, relationship = $5, priority = $6, updated_at = $7
		 WHERE id = $1 AND user_id = $2`,
		c.ID, c.UserID, c.Name, c.Phone, c.Relationship, c.Priority, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("緊急連絡先の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は連絡先を削除する。
func (r *PostgresContactRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM emergency_contacts WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("緊急連絡先の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ ContactRepository = (*PostgresContactRepo)(nil)
