package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/model"
)

// UserServiceInterface は管理者用ユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	ApplyUserAction(ctx context.Context, actor *model.User, targetID string, action string) (*model.User, error)
}

// UserHandler は管理者によるユーザー管理のHTTPハンドラー。
// RequireAdminの内側に配置する。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type userActionRequest struct {
	UserID string `json:"user_id"`
	Action string `json:"action"`
}

type listUsersResponse struct {
	Users []userResponse `json:"users"`
}

// ListUsers は全ユーザーを登録日時の新しい順で返す。
// GET /api/admin/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listUsersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApplyAction はユーザーに管理操作を適用する。
// POST /api/admin/users/actions
func (h *UserHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var req userActionRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"user_id": "必須項目です。",
		}))
		return
	}

	updated, err := h.service.ApplyUserAction(r.Context(), actor, req.UserID, req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}
