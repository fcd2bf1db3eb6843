package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/debatehub/internal/model"
)

const sessionColumns = `id, user_id, remember, expires_at, created_at`

// PostgresSessionRepo はsessionsテーブルを使うセッションリポジトリ。
// 期限切れの行はFindByIDでは見えず、cleanupワーカーが物理削除する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はログイン時に発行したセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Remember, s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションを返す。存在しないか期限切れならnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&s.ID, &s.UserID, &s.Remember, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &s, nil
}

// DeleteByID はログアウト時にセッションを削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.exec(ctx, "failed to delete session", `DELETE FROM sessions WHERE id = $1`, id)
}

// DeleteByUserID は停止したユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.exec(ctx, "failed to delete user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (r *PostgresSessionRepo) exec(ctx context.Context, errMsg, query string, arg string) error {
	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("%s: %w", errMsg, err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
