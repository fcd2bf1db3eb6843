package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/debatehub/internal/model"
)

const (
	// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
	pqUniqueViolation = "23505"
	// pqInvalidTextRepresentation はUUID列に不正な形式の値を渡したときのSQLSTATE。
	pqInvalidTextRepresentation = "22P02"

	usersEmailConstraint    = "users_email_key"
	usersUsernameConstraint = "users_username_key"
)

const userColumns = `id, email, username, password_hash, confirmed, is_admin, is_blocked, created_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail は小文字化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.Confirmed, &user.IsAdmin, &user.IsBlocked, &user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// 同時登録の競合はusersテーブルの一意制約で解決し、違反時はセンチネルエラーを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, confirmed, is_admin, is_blocked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.Confirmed, user.IsAdmin, user.IsBlocked, user.CreatedAt,
	)
	if err != nil {
		if dupErr := mapUniqueViolation(err); dupErr != nil {
			return dupErr
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// MarkConfirmed は未確認ユーザーを確認済みにする。
// confirmedは一度だけ真に変わるため、条件付きUPDATEで処理する。
func (r *PostgresUserRepo) MarkConfirmed(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET confirmed = TRUE WHERE id = $1 AND confirmed = FALSE`,
		id,
	)
	if isInvalidID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to confirm user: %w", err)
	}
	return rowsChanged(result)
}

// SetAdmin は管理者フラグを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresUserRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_admin = $2 WHERE id = $1`,
		id, isAdmin,
	)
	if isInvalidID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update admin flag: %w", err)
	}
	return rowsChanged(result)
}

// SetBlocked は停止フラグを更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresUserRepo) SetBlocked(ctx context.Context, id string, isBlocked bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_blocked = $2 WHERE id = $1`,
		id, isBlocked,
	)
	if isInvalidID(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update blocked flag: %w", err)
	}
	return rowsChanged(result)
}

// List は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.PasswordHash,
			&u.Confirmed, &u.IsAdmin, &u.IsBlocked, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// mapUniqueViolation はpq.Errorの一意制約違反をセンチネルエラーに変換する。
// 一意制約違反でない場合はnilを返す。
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case usersEmailConstraint:
		return ErrDuplicateEmail
	case usersUsernameConstraint:
		return ErrDuplicateUsername
	default:
		return fmt.Errorf("unique constraint %q violated: %w", pqErr.Constraint, err)
	}
}

// isInvalidID はIDがUUIDとして解釈できずに失敗したかどうかを返す。
// そのようなIDを持つ行は存在しないため、呼び出し側は未検出として扱う。
func isInvalidID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqInvalidTextRepresentation
}

// rowsChanged は更新件数が1件以上かどうかを返す。
func rowsChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
