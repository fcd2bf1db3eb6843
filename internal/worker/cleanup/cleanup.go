// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// セッションの有効性は読み取り時にも判定されるため、このジョブは
// テーブルの肥大化を防ぐためだけに動く。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/debatehub/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurgeJob は有効期限を過ぎたセッションを削除するジョブ。
// 何度実行しても結果は変わらない。
type SessionPurgeJob struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。
func NewSessionPurgeJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *SessionPurgeJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &SessionPurgeJob{
		db:      db,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// Run はexpires_atが現在時刻より前のセッションを削除し、削除件数を返す。
func (j *SessionPurgeJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, j.now())
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get purged session count: %w", err)
	}

	j.metrics.RecordSessionsPurged(deleted)
	j.logger.Info("期限切れセッションの削除が完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに残して継続する。
func (j *SessionPurgeJob) Start(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("session purge failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("session purge failed", slog.String("error", err.Error()))
			}
		}
	}
}
