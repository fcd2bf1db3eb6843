// Package debate は意見・主張・理由の階層を扱うドメインロジックを提供する。
package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/debatehub/internal/model"
	"github.com/hitoshi/debatehub/internal/repository"
	"github.com/hitoshi/debatehub/internal/security"
	"github.com/hitoshi/debatehub/internal/validation"
)

// LatestOpinionsLimit はトップページに表示する意見の最大件数。
const LatestOpinionsLimit = 50

// CreateOpinionInput は意見作成の入力。
// 意見と同時に最初の主張・理由を作成する。
type CreateOpinionInput struct {
	Title     string `json:"title" validate:"required,notblank,max=160"`
	Content   string `json:"content" validate:"required,notblank,max=5000"`
	Stance    string `json:"stance" validate:"required,stance"`
	Argument  string `json:"argument" validate:"required,notblank,max=4000"`
	Reasoning string `json:"reasoning" validate:"required,notblank,max=4000"`
}

// CreateArgumentInput は主張作成の入力。
type CreateArgumentInput struct {
	Content string `json:"content" validate:"required,notblank,max=4000"`
	Stance  string `json:"stance" validate:"required,stance"`
}

// CreateReasoningInput は理由作成の入力。
type CreateReasoningInput struct {
	Content string `json:"content" validate:"required,notblank,max=4000"`
}

// OpinionView は意見のレスポンス表現。Markdownは原文とHTMLの両方を持つ。
type OpinionView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
	AuthorName  string    `json:"author_name"`
}

// ArgumentView は主張のレスポンス表現。
type ArgumentView struct {
	ID          string       `json:"id"`
	Content     string       `json:"content"`
	ContentHTML string       `json:"content_html"`
	Stance      model.Stance `json:"stance"`
	CreatedAt   time.Time    `json:"created_at"`
	UserID      string       `json:"user_id"`
	OpinionID   string       `json:"opinion_id"`
	AuthorName  string       `json:"author_name"`
}

// ReasoningView は理由のレスポンス表現。
type ReasoningView struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
	ArgumentID  string    `json:"argument_id"`
	AuthorName  string    `json:"author_name"`
}

// OpinionDetail は意見ページの内容。主張は立場ごとに作成日時の昇順で並ぶ。
type OpinionDetail struct {
	Opinion          OpinionView    `json:"opinion"`
	ForArguments     []ArgumentView `json:"for_arguments"`
	AgainstArguments []ArgumentView `json:"against_arguments"`
}

// ArgumentDetail は主張ページの内容。理由は新しい順に並ぶ。
type ArgumentDetail struct {
	Argument  ArgumentView    `json:"argument"`
	Reasoning []ReasoningView `json:"reasoning"`
}

// Service は議論階層のサービス層。
// 投稿者が有効なユーザーであることはミドルウェアで保証されている前提とする。
type Service struct {
	repo     repository.DebateRepository
	renderer security.ContentRenderer
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.DebateRepository, renderer security.ContentRenderer) *Service {
	return &Service{
		repo:     repo,
		renderer: renderer,
		now:      time.Now,
	}
}

// CreateOpinion は意見と最初の主張・理由を作成する。
// 3つすべての入力を検証してから1トランザクションで保存する。
func (s *Service) CreateOpinion(ctx context.Context, author *model.User, in CreateOpinionInput) (*OpinionView, error) {
	if author == nil {
		return nil, model.NewUnauthorizedError()
	}
	if verr := validation.Struct(&in); verr != nil {
		return nil, verr
	}
	stance, _ := model.ParseStance(in.Stance)

	now := s.now()
	opinion := &model.Opinion{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		CreatedAt: now,
		UserID:    author.ID,
	}
	argument := &model.Argument{
		ID:        uuid.New().String(),
		Content:   in.Argument,
		Stance:    stance,
		CreatedAt: now,
		UserID:    author.ID,
		OpinionID: opinion.ID,
	}
	reasoning := &model.Reasoning{
		ID:         uuid.New().String(),
		Content:    in.Reasoning,
		CreatedAt:  now,
		UserID:     author.ID,
		ArgumentID: argument.ID,
	}

	if err := s.repo.CreateOpinionWithSeed(ctx, opinion, argument, reasoning); err != nil {
		return nil, fmt.Errorf("意見の作成に失敗しました: %w", err)
	}

	slog.Info("意見を作成しました",
		slog.String("opinion_id", opinion.ID),
		slog.String("user_id", author.ID),
	)

	view := s.opinionView(model.OpinionWithAuthor{Opinion: *opinion, AuthorName: author.Username})
	return &view, nil
}

// CreateArgument は既存の意見に主張を追加する。
func (s *Service) CreateArgument(ctx context.Context, author *model.User, opinionID string, in CreateArgumentInput) (*ArgumentView, error) {
	if author == nil {
		return nil, model.NewUnauthorizedError()
	}
	if verr := validation.Struct(&in); verr != nil {
		return nil, verr
	}

	opinion, err := s.repo.FindOpinionByID(ctx, opinionID)
	if err != nil {
		return nil, fmt.Errorf("意見の取得に失敗しました: %w", err)
	}
	if opinion == nil {
		return nil, model.NewOpinionNotFoundError(opinionID)
	}

	stance, _ := model.ParseStance(in.Stance)
	argument := &model.Argument{
		ID:        uuid.New().String(),
		Content:   in.Content,
		Stance:    stance,
		CreatedAt: s.now(),
		UserID:    author.ID,
		OpinionID: opinion.ID,
	}
	if err := s.repo.CreateArgument(ctx, argument); err != nil {
		return nil, fmt.Errorf("主張の作成に失敗しました: %w", err)
	}

	view := s.argumentView(model.ArgumentWithAuthor{Argument: *argument, AuthorName: author.Username})
	return &view, nil
}

// CreateReasoning は既存の主張に理由を追加する。
func (s *Service) CreateReasoning(ctx context.Context, author *model.User, argumentID string, in CreateReasoningInput) (*ReasoningView, error) {
	if author == nil {
		return nil, model.NewUnauthorizedError()
	}
	if verr := validation.Struct(&in); verr != nil {
		return nil, verr
	}

	argument, err := s.repo.FindArgumentByID(ctx, argumentID)
	if err != nil {
		return nil, fmt.Errorf("主張の取得に失敗しました: %w", err)
	}
	if argument == nil {
		return nil, model.NewArgumentNotFoundError(argumentID)
	}

	reasoning := &model.Reasoning{
		ID:         uuid.New().String(),
		Content:    in.Content,
		CreatedAt:  s.now(),
		UserID:     author.ID,
		ArgumentID: argument.ID,
	}
	if err := s.repo.CreateReasoning(ctx, reasoning); err != nil {
		return nil, fmt.Errorf("理由の作成に失敗しました: %w", err)
	}

	view := s.reasoningView(model.ReasoningWithAuthor{Reasoning: *reasoning, AuthorName: author.Username})
	return &view, nil
}

// ListOpinions は最新の意見を新しい順に返す。
func (s *Service) ListOpinions(ctx context.Context) ([]OpinionView, error) {
	opinions, err := s.repo.ListLatestOpinions(ctx, LatestOpinionsLimit)
	if err != nil {
		return nil, fmt.Errorf("意見一覧の取得に失敗しました: %w", err)
	}

	views := make([]OpinionView, 0, len(opinions))
	for _, o := range opinions {
		views = append(views, s.opinionView(o))
	}
	return views, nil
}

// GetOpinion は意見と立場別の主張を返す。
func (s *Service) GetOpinion(ctx context.Context, opinionID string) (*OpinionDetail, error) {
	opinion, err := s.repo.FindOpinionByID(ctx, opinionID)
	if err != nil {
		return nil, fmt.Errorf("意見の取得に失敗しました: %w", err)
	}
	if opinion == nil {
		return nil, model.NewOpinionNotFoundError(opinionID)
	}

	forArgs, err := s.repo.ListArgumentsByOpinion(ctx, opinionID, model.StanceFor)
	if err != nil {
		return nil, fmt.Errorf("賛成の主張の取得に失敗しました: %w", err)
	}
	againstArgs, err := s.repo.ListArgumentsByOpinion(ctx, opinionID, model.StanceAgainst)
	if err != nil {
		return nil, fmt.Errorf("反対の主張の取得に失敗しました: %w", err)
	}

	return &OpinionDetail{
		Opinion:          s.opinionView(*opinion),
		ForArguments:     s.argumentViews(forArgs),
		AgainstArguments: s.argumentViews(againstArgs),
	}, nil
}

// GetArgument は主張と理由を返す。
func (s *Service) GetArgument(ctx context.Context, argumentID string) (*ArgumentDetail, error) {
	argument, err := s.repo.FindArgumentByID(ctx, argumentID)
	if err != nil {
		return nil, fmt.Errorf("主張の取得に失敗しました: %w", err)
	}
	if argument == nil {
		return nil, model.NewArgumentNotFoundError(argumentID)
	}

	reasoning, err := s.repo.ListReasoningByArgument(ctx, argumentID)
	if err != nil {
		return nil, fmt.Errorf("理由の取得に失敗しました: %w", err)
	}

	views := make([]ReasoningView, 0, len(reasoning))
	for _, r := range reasoning {
		views = append(views, s.reasoningView(r))
	}
	return &ArgumentDetail{
		Argument:  s.argumentView(*argument),
		Reasoning: views,
	}, nil
}

// DeleteOpinion は意見を配下の主張・理由ごと削除する。
func (s *Service) DeleteOpinion(ctx context.Context, opinionID string) error {
	found, err := s.repo.DeleteOpinion(ctx, opinionID)
	if err != nil {
		return fmt.Errorf("意見の削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewOpinionNotFoundError(opinionID)
	}
	slog.Info("意見を削除しました", slog.String("opinion_id", opinionID))
	return nil
}

// DeleteArgument は主張を配下の理由ごと削除する。
func (s *Service) DeleteArgument(ctx context.Context, argumentID string) error {
	found, err := s.repo.DeleteArgument(ctx, argumentID)
	if err != nil {
		return fmt.Errorf("主張の削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewArgumentNotFoundError(argumentID)
	}
	slog.Info("主張を削除しました", slog.String("argument_id", argumentID))
	return nil
}

func (s *Service) opinionView(o model.OpinionWithAuthor) OpinionView {
	return OpinionView{
		ID:          o.ID,
		Title:       o.Title,
		Content:     o.Content,
		ContentHTML: s.renderer.Render(o.Content),
		CreatedAt:   o.CreatedAt,
		UserID:      o.UserID,
		AuthorName:  o.AuthorName,
	}
}

func (s *Service) argumentView(a model.ArgumentWithAuthor) ArgumentView {
	return ArgumentView{
		ID:          a.ID,
		Content:     a.Content,
		ContentHTML: s.renderer.Render(a.Content),
		Stance:      a.Stance,
		CreatedAt:   a.CreatedAt,
		UserID:      a.UserID,
		OpinionID:   a.OpinionID,
		AuthorName:  a.AuthorName,
	}
}

func (s *Service) argumentViews(args []model.ArgumentWithAuthor) []ArgumentView {
	views := make([]ArgumentView, 0, len(args))
	for _, a := range args {
		views = append(views, s.argumentView(a))
	}
	return views
}

func (s *Service) reasoningView(r model.ReasoningWithAuthor) ReasoningView {
	return ReasoningView{
		ID:          r.ID,
		Content:     r.Content,
		ContentHTML: s.renderer.Render(r.Content),
		CreatedAt:   r.CreatedAt,
		UserID:      r.UserID,
		ArgumentID:  r.ArgumentID,
		AuthorName:  r.AuthorName,
	}
}
