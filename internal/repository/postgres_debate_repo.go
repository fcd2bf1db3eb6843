package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/debatehub/internal/model"
)

// PostgresDebateRepo はPostgreSQLを使用した意見・主張・理由のリポジトリ。
// 子テーブルの外部キーはCASCADEを持たないため、サブツリー削除は本リポジトリが明示的に行う。
type PostgresDebateRepo struct {
	db *sql.DB
}

// NewPostgresDebateRepo はPostgresDebateRepoを生成する。
func NewPostgresDebateRepo(db *sql.DB) *PostgresDebateRepo {
	return &PostgresDebateRepo{db: db}
}

const (
	insertOpinionSQL = `INSERT INTO opinions (id, title, content, created_at, user_id)
		 VALUES ($1, $2, $3, $4, $5)`
	insertArgumentSQL = `INSERT INTO arguments (id, content, stance, created_at, user_id, opinion_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`
	insertReasoningSQL = `INSERT INTO reasoning (id, content, created_at, user_id, argument_id)
		 VALUES ($1, $2, $3, $4, $5)`
)

// CreateOpinionWithSeed は意見と最初の主張・理由を同一トランザクションで作成する。
// いずれかの挿入に失敗した場合は何も永続化されない。
func (r *PostgresDebateRepo) CreateOpinionWithSeed(ctx context.Context, opinion *model.Opinion, argument *model.Argument, reasoning *model.Reasoning) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertOpinionSQL,
		opinion.ID, opinion.Title, opinion.Content, opinion.CreatedAt, opinion.UserID,
	); err != nil {
		return fmt.Errorf("failed to insert opinion: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertArgumentSQL,
		argument.ID, argument.Content, argument.Stance, argument.CreatedAt, argument.UserID, argument.OpinionID,
	); err != nil {
		return fmt.Errorf("failed to insert argument: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertReasoningSQL,
		reasoning.ID, reasoning.Content, reasoning.CreatedAt, reasoning.UserID, reasoning.ArgumentID,
	); err != nil {
		return fmt.Errorf("failed to insert reasoning: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateArgument は主張を作成する。
func (r *PostgresDebateRepo) CreateArgument(ctx context.Context, argument *model.Argument) error {
	if _, err := r.db.ExecContext(ctx, insertArgumentSQL,
		argument.ID, argument.Content, argument.Stance, argument.CreatedAt, argument.UserID, argument.OpinionID,
	); err != nil {
		return fmt.Errorf("failed to insert argument: %w", err)
	}
	return nil
}

// CreateReasoning は理由を作成する。
func (r *PostgresDebateRepo) CreateReasoning(ctx context.Context, reasoning *model.Reasoning) error {
	if _, err := r.db.ExecContext(ctx, insertReasoningSQL,
		reasoning.ID, reasoning.Content, reasoning.CreatedAt, reasoning.UserID, reasoning.ArgumentID,
	); err != nil {
		return fmt.Errorf("failed to insert reasoning: %w", err)
	}
	return nil
}

// FindOpinionByID は意見を投稿者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresDebateRepo) FindOpinionByID(ctx context.Context, id string) (*model.OpinionWithAuthor, error) {
	o := &model.OpinionWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT o.id, o.title, o.content, o.created_at, o.user_id, u.username
		 FROM opinions o
		 JOIN users u ON u.id = o.user_id
		 WHERE o.id = $1`,
		id,
	).Scan(&o.ID, &o.Title, &o.Content, &o.CreatedAt, &o.UserID, &o.AuthorName)
	if err == sql.ErrNoRows || isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find opinion: %w", err)
	}
	return o, nil
}

// FindArgumentByID は主張を投稿者名付きで取得する。見つからない場合はnilを返す。
func (r *PostgresDebateRepo) FindArgumentByID(ctx context.Context, id string) (*model.ArgumentWithAuthor, error) {
	a := &model.ArgumentWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT a.id, a.content, a.stance, a.created_at, a.user_id, a.opinion_id, u.username
		 FROM arguments a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.id = $1`,
		id,
	).Scan(&a.ID, &a.Content, &a.Stance, &a.CreatedAt, &a.UserID, &a.OpinionID, &a.AuthorName)
	if err == sql.ErrNoRows || isInvalidID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find argument: %w", err)
	}
	return a, nil
}

// ListLatestOpinions は意見を作成日時の降順で最大limit件返す。
func (r *PostgresDebateRepo) ListLatestOpinions(ctx context.Context, limit int) ([]model.OpinionWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.title, o.content, o.created_at, o.user_id, u.username
		 FROM opinions o
		 JOIN users u ON u.id = o.user_id
		 ORDER BY o.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list opinions: %w", err)
	}
	defer rows.Close()

	var opinions []model.OpinionWithAuthor
	for rows.Next() {
		var o model.OpinionWithAuthor
		if err := rows.Scan(&o.ID, &o.Title, &o.Content, &o.CreatedAt, &o.UserID, &o.AuthorName); err != nil {
			return nil, fmt.Errorf("failed to scan opinion: %w", err)
		}
		opinions = append(opinions, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opinions: %w", err)
	}
	return opinions, nil
}

// ListArgumentsByOpinion は意見に属する指定立場の主張を作成日時の昇順で返す。
func (r *PostgresDebateRepo) ListArgumentsByOpinion(ctx context.Context, opinionID string, stance model.Stance) ([]model.ArgumentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.content, a.stance, a.created_at, a.user_id, a.opinion_id, u.username
		 FROM arguments a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.opinion_id = $1 AND a.stance = $2
		 ORDER BY a.created_at ASC`,
		opinionID, stance,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list arguments: %w", err)
	}
	defer rows.Close()

	var arguments []model.ArgumentWithAuthor
	for rows.Next() {
		var a model.ArgumentWithAuthor
		if err := rows.Scan(&a.ID, &a.Content, &a.Stance, &a.CreatedAt, &a.UserID, &a.OpinionID, &a.AuthorName); err != nil {
			return nil, fmt.Errorf("failed to scan argument: %w", err)
		}
		arguments = append(arguments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate arguments: %w", err)
	}
	return arguments, nil
}

// ListReasoningByArgument は主張に属する理由を作成日時の降順で返す。
func (r *PostgresDebateRepo) ListReasoningByArgument(ctx context.Context, argumentID string) ([]model.ReasoningWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT re.id, re.content, re.created_at, re.user_id, re.argument_id, u.username
		 FROM reasoning re
		 JOIN users u ON u.id = re.user_id
		 WHERE re.argument_id = $1
		 ORDER BY re.created_at DESC`,
		argumentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reasoning: %w", err)
	}
	defer rows.Close()

	var entries []model.ReasoningWithAuthor
	for rows.Next() {
		var re model.ReasoningWithAuthor
		if err := rows.Scan(&re.ID, &re.Content, &re.CreatedAt, &re.UserID, &re.ArgumentID, &re.AuthorName); err != nil {
			return nil, fmt.Errorf("failed to scan reasoning: %w", err)
		}
		entries = append(entries, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reasoning: %w", err)
	}
	return entries, nil
}

// DeleteOpinion は意見とその配下の主張・理由を同一トランザクションで削除する。
// 削除順序: reasoning → arguments → opinion
func (r *PostgresDebateRepo) DeleteOpinion(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reasoning
		 WHERE argument_id IN (SELECT id FROM arguments WHERE opinion_id = $1)`,
		id,
	); err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete reasoning: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM arguments WHERE opinion_id = $1`,
		id,
	); err != nil {
		return false, fmt.Errorf("failed to delete arguments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM opinions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete opinion: %w", err)
	}
	deleted, err := rowsChanged(result)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// DeleteArgument は主張とその配下の理由を同一トランザクションで削除する。
func (r *PostgresDebateRepo) DeleteArgument(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reasoning WHERE argument_id = $1`, id); err != nil {
		if isInvalidID(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete reasoning: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM arguments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete argument: %w", err)
	}
	deleted, err := rowsChanged(result)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ DebateRepository = (*PostgresDebateRepo)(nil)
