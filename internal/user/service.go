// Package user は管理者によるユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/debatehub/internal/metrics"
	"github.com/hitoshi/debatehub/internal/model"
	"github.com/hitoshi/debatehub/internal/repository"
)

// Service はユーザー管理のサービス層。
// 管理者権限の付与・剥奪とアカウントの停止・解除を提供する。
// 呼び出し元が管理者であることはミドルウェアで保証されている前提とする。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     collector,
	}
}

// ListUsers は全ユーザーを登録日時の新しい順で返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// ApplyUserAction は管理者actorが対象ユーザーに操作を適用し、更新後のユーザーを返す。
// 判定順序: 対象の存在 → 自分自身の停止・降格 → 操作の種類。
// 同じ操作の繰り返しは冪等に成功する。
func (s *Service) ApplyUserAction(ctx context.Context, actor *model.User, targetID string, action string) (*model.User, error) {
	act := model.UserAction(action)
	// メトリクスのラベルには既知の操作名のみを使う
	label := string(act)
	if !act.Valid() {
		label = "unknown"
	}

	target, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		s.metrics.RecordAdminAction(label, metrics.OutcomeNotFound)
		return nil, model.NewUserNotFoundError()
	}

	if target.ID == actor.ID && (act == model.UserActionBlock || act == model.UserActionDemote) {
		s.metrics.RecordAdminAction(label, metrics.OutcomeDenied)
		return nil, model.NewSelfActionDeniedError()
	}
	if !act.Valid() {
		s.metrics.RecordAdminAction(label, metrics.OutcomeDenied)
		return nil, model.NewUnknownActionError(action)
	}

	var found bool
	switch act {
	case model.UserActionPromote:
		found, err = s.userRepo.SetAdmin(ctx, target.ID, true)
		target.IsAdmin = true
	case model.UserActionDemote:
		found, err = s.userRepo.SetAdmin(ctx, target.ID, false)
		target.IsAdmin = false
	case model.UserActionBlock:
		found, err = s.userRepo.SetBlocked(ctx, target.ID, true)
		target.IsBlocked = true
	case model.UserActionUnblock:
		found, err = s.userRepo.SetBlocked(ctx, target.ID, false)
		target.IsBlocked = false
	}
	if err != nil {
		s.metrics.RecordAdminAction(label, metrics.OutcomeError)
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if !found {
		// 取得後に対象が消えた場合
		s.metrics.RecordAdminAction(label, metrics.OutcomeNotFound)
		return nil, model.NewUserNotFoundError()
	}

	// 停止したユーザーの既存セッションを破棄する。
	// 失敗しても次回リクエスト時の停止判定でセッションは破棄される。
	if act == model.UserActionBlock {
		if err := s.sessionRepo.DeleteByUserID(ctx, target.ID); err != nil {
			slog.Warn("停止ユーザーのセッション削除に失敗しました",
				slog.String("target_id", target.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.metrics.RecordAdminAction(label, metrics.OutcomeSuccess)
	slog.Info("管理操作を適用しました",
		slog.String("actor_id", actor.ID),
		slog.String("target_id", target.ID),
		slog.String("action", action),
	)

	return target, nil
}
