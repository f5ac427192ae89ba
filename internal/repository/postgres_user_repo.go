package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/touristguard/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUUID はidがUUID列と比較できる形式かを返す。
// 形式外のIDはクエリを発行せず「見つからない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, email, phone, password_hash, phone_verified, document_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.PhoneVerified, &u.DocumentVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return u, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash,
		u.PhoneVerified, u.DocumentVerified, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateVerification は検証フラグを更新し、更新後のユーザーを返す。
func (r *PostgresUserRepo) UpdateVerification(ctx context.Context, id string, phoneVerified, documentVerified *bool) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET phone_verified = COALESCE($2, phone_verified),
		     document_verified = COALESCE($3, document_verified),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, nullBool(phoneVerified), nullBool(documentVerified)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user verification: %w", err)
	}
	return u, nil
}

// CountUsers は全ユーザー数と完全検証済みユーザー数を返す。
func (r *PostgresUserRepo) CountUsers(ctx context.Context) (int, int, error) {
	var total, verified int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE phone_verified AND document_verified) FROM users`,
	).Scan(&total, &verified)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, verified, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
