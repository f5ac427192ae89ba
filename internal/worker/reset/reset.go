// Package reset はSOSアラート記録の一括削除ジョブを提供する。
// 運用者がCLIから明示的に実行する場合にだけ使い、通常の処理から
// アラート記録が削除されることはない。宛先ごとの通知結果
// （sos_alert_contacts）はCASCADE削除で自動的に処理される。
package reset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ResetJob はアラート記録の一括削除ジョブ。
type ResetJob struct {
	db     Executor
	logger *slog.Logger
}

// NewResetJob は新しいResetJobを生成する。
func NewResetJob(db Executor, logger *slog.Logger) *ResetJob {
	return &ResetJob{db: db, logger: logger}
}

// Run は全てのアラート記録を削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *ResetJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sos_alerts`)
	if err != nil {
		j.logger.Error("アラート記録の一括削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("アラート記録の削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Warn("アラート記録を一括削除しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}
