// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/debatehub/internal/model"
)

// 一意制約違反を表すセンチネルエラー。
// ストレージ層の一意制約が唯一の正とし、アプリケーション側の事前チェックはUX目的に留める。
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は小文字化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反の場合はErrDuplicateEmailまたはErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// MarkConfirmed は未確認ユーザーを確認済みにする。
	// 既に確認済みだった場合はfalseを返す。
	MarkConfirmed(ctx context.Context, id string) (bool, error)

	// SetAdmin は管理者フラグを更新する。対象が存在しない場合はfalseを返す。
	SetAdmin(ctx context.Context, id string, isAdmin bool) (bool, error)

	// SetBlocked は停止フラグを更新する。対象が存在しない場合はfalseを返す。
	SetBlocked(ctx context.Context, id string, isBlocked bool) (bool, error)

	// List は全ユーザーを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// DebateRepository は意見・主張・理由の永続化インターフェース。
// Opinion → Argument → Reasoning の所有ツリーを扱う。
type DebateRepository interface {
	// CreateOpinionWithSeed は意見と最初の主張・理由を同一トランザクションで作成する。
	CreateOpinionWithSeed(ctx context.Context, opinion *model.Opinion, argument *model.Argument, reasoning *model.Reasoning) error

	// CreateArgument は主張を作成する。
	CreateArgument(ctx context.Context, argument *model.Argument) error

	// CreateReasoning は理由を作成する。
	CreateReasoning(ctx context.Context, reasoning *model.Reasoning) error

	// FindOpinionByID は意見を投稿者名付きで取得する。見つからない場合はnilを返す。
	FindOpinionByID(ctx context.Context, id string) (*model.OpinionWithAuthor, error)

	// FindArgumentByID は主張を投稿者名付きで取得する。見つからない場合はnilを返す。
	FindArgumentByID(ctx context.Context, id string) (*model.ArgumentWithAuthor, error)

	// ListLatestOpinions は意見を作成日時の降順で最大limit件返す。
	ListLatestOpinions(ctx context.Context, limit int) ([]model.OpinionWithAuthor, error)

	// ListArgumentsByOpinion は意見に属する指定立場の主張を作成日時の昇順で返す。
	ListArgumentsByOpinion(ctx context.Context, opinionID string, stance model.Stance) ([]model.ArgumentWithAuthor, error)

	// ListReasoningByArgument は主張に属する理由を作成日時の降順で返す。
	ListReasoningByArgument(ctx context.Context, argumentID string) ([]model.ReasoningWithAuthor, error)

	// DeleteOpinion は意見とその配下の主張・理由を同一トランザクションで削除する。
	// 対象が存在しない場合はfalseを返す。
	DeleteOpinion(ctx context.Context, id string) (bool, error)

	// DeleteArgument は主張とその配下の理由を同一トランザクションで削除する。
	// 対象が存在しない場合はfalseを返す。
	DeleteArgument(ctx context.Context, id string) (bool, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
