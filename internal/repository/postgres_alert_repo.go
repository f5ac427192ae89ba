package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/touristguard/internal/model"
)

// PostgresAlertRepo はPostgreSQLを使用したSOSアラートリポジトリ。
// 宛先ごとの通知結果はsos_alert_contactsにposition順で保存する。
type PostgresAlertRepo struct {
	db *sql.DB
}

// NewPostgresAlertRepo はPostgresAlertRepoを生成する。
func NewPostgresAlertRepo(db *sql.DB) *PostgresAlertRepo {
	return &PostgresAlertRepo{db: db}
}

const alertColumns = `id, user_id, latitude, longitude, address, alert_type, status,
	police_notified, police_notification_status, resolved_at, resolved_by, notes, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (*model.SOSAlert, error) {
	a := &model.SOSAlert{}
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &a.Location.Latitude, &a.Location.Longitude, &a.Location.Address,
		&a.AlertType, &a.Status, &a.PoliceNotified, &a.PoliceNotificationStatus,
		&resolvedAt, &a.ResolvedBy, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

// Create はアラートと通知結果を同一トランザクションで保存する。
func (r *PostgresAlertRepo) Create(ctx context.Context, a *model.SOSAlert) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sos_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.UserID, a.Location.Latitude, a.Location.Longitude, a.Location.Address,
		string(a.AlertType), string(a.Status), a.PoliceNotified, string(a.PoliceNotificationStatus),
		a.ResolvedAt, a.ResolvedBy, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sos alert: %w", err)
	}

	if len(a.ContactsNotified) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sos_alert_contacts (alert_id, position, name, phone, notification_status, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`)
		if err != nil {
			return fmt.Errorf("failed to prepare contact outcome insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range a.ContactsNotified {
			if _, err := stmt.ExecContext(ctx, a.ID, i, c.Name, c.Phone, string(c.NotificationStatus), c.SentAt); err != nil {
				return fmt.Errorf("failed to insert contact outcome %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのアラートを通知結果付きで取得する。見つからない場合はnilを返す。
func (r *PostgresAlertRepo) FindByID(ctx context.Context, id string) (*model.SOSAlert, error) {
	if !isUUID(id) {
		return nil, nil
	}
	a, err := scanAlert(r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM sos_alerts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sos alert: %w", err)
	}

	if err := r.attachContacts(ctx, []*model.SOSAlert{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByUserID はユーザーのアラートを新しい順に返す。
func (r *PostgresAlertRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.SOSAlert, error) {
	alerts, err := r.queryAlerts(ctx,
		`SELECT `+alertColumns+` FROM sos_alerts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	if err := r.attachContacts(ctx, alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// List は絞り込み・ページングしたアラート一覧を返す。
func (r *PostgresAlertRepo) List(ctx context.Context, f model.AlertFilter) (*model.AlertPage, error) {
	var conds []string
	var args []any

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Date != nil {
		start := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, start, start.Add(24*time.Hour))
		conds = append(conds, fmt.Sprintf("created_at >= $%d AND created_at < $%d", len(args)-1, len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM sos_alerts`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sos alerts: %w", err)
	}

	offset := (f.Page - 1) * f.Limit
	pageArgs := append(args, f.Limit, offset)
	alerts, err := r.queryAlerts(ctx,
		fmt.Sprintf(`SELECT `+alertColumns+` FROM sos_alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			where, len(pageArgs)-1, len(pageArgs)),
		pageArgs...)
	if err != nil {
		return nil, err
	}
	if err := r.attachContacts(ctx, alerts); err != nil {
		return nil, err
	}

	return &model.AlertPage{Alerts: alerts, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

// CloseActive はactiveのアラートのみを終端状態に更新する。
// WHERE status = 'active' により、同時に操作した管理者のうち1人だけが成功する。
func (r *PostgresAlertRepo) CloseActive(ctx context.Context, id string, status model.AlertStatus, resolvedAt time.Time, resolvedBy, notes string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE sos_alerts
		 SET status = $2, resolved_at = $3, resolved_by = $4,
		     notes = CASE WHEN $5::text = '' THEN notes ELSE $5::text END,
		     updated_at = $3
		 WHERE id = $1 AND status = 'active'`,
		id, string(status), resolvedAt, resolvedBy, notes,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close sos alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CountActive はactiveのアラート数を返す。
func (r *PostgresAlertRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM sos_alerts WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active sos alerts: %w", err)
	}
	return n, nil
}

func (r *PostgresAlertRepo) queryAlerts(ctx context.Context, query string, args ...any) ([]*model.SOSAlert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sos alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.SOSAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sos alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sos alerts: %w", err)
	}
	return alerts, nil
}

// attachContacts は複数アラートの通知結果を1クエリで読み込み、position順に詰める。
func (r *PostgresAlertRepo) attachContacts(ctx context.Context, alerts []*model.SOSAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	ids := make([]string, len(alerts))
	byID := make(map[string]*model.SOSAlert, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ID
		byID[a.ID] = a
		a.ContactsNotified = []model.ContactNotification{}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT alert_id, name, phone, notification_status, sent_at
		 FROM sos_alert_contacts WHERE alert_id = ANY($1::uuid[])
		 ORDER BY alert_id, position ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to load contact outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var alertID string
		var c model.ContactNotification
		var sentAt sql.NullTime
		if err := rows.Scan(&alertID, &c.Name, &c.Phone, &c.NotificationStatus, &sentAt); err != nil {
			return fmt.Errorf("failed to scan contact outcome: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time
			c.SentAt = &t
		}
		if a, ok := byID[alertID]; ok {
			a.ContactsNotified = append(a.ContactsNotified, c)
		}
	}
	return rows.Err()
}

// compile-time interface check
var _ AlertRepository = (*PostgresAlertRepo)(nil)
