package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/debatehub/internal/debate"
	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/model"
)

// DebateServiceInterface は議論ハンドラーが必要とするサービスインターフェース。
type DebateServiceInterface interface {
	ListOpinions(ctx context.Context) ([]debate.OpinionView, error)
	GetOpinion(ctx context.Context, opinionID string) (*debate.OpinionDetail, error)
	GetArgument(ctx context.Context, argumentID string) (*debate.ArgumentDetail, error)
	CreateOpinion(ctx context.Context, author *model.User, in debate.CreateOpinionInput) (*debate.OpinionView, error)
	CreateArgument(ctx context.Context, author *model.User, opinionID string, in debate.CreateArgumentInput) (*debate.ArgumentView, error)
	CreateReasoning(ctx context.Context, author *model.User, argumentID string, in debate.CreateReasoningInput) (*debate.ReasoningView, error)
}

// DebateHandler は意見・主張・理由のHTTPハンドラー。
type DebateHandler struct {
	service DebateServiceInterface
}

// NewDebateHandler はDebateHandlerを生成する。
func NewDebateHandler(service DebateServiceInterface) *DebateHandler {
	return &DebateHandler{service: service}
}

type listOpinionsResponse struct {
	Opinions []debate.OpinionView `json:"opinions"`
}

// ListOpinions は最新の意見一覧を返す。
// GET /api/opinions
func (h *DebateHandler) ListOpinions(w http.ResponseWriter, r *http.Request) {
	opinions, err := h.service.ListOpinions(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listOpinionsResponse{Opinions: opinions})
}

// GetOpinion は意見と立場別の主張を返す。
// GET /api/opinions/{id}
func (h *DebateHandler) GetOpinion(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetOpinion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetArgument は主張と理由を返す。
// GET /api/arguments/{id}
func (h *DebateHandler) GetArgument(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetArgument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateOpinion は意見を作成する。
// POST /api/opinions
func (h *DebateHandler) CreateOpinion(w http.ResponseWriter, r *http.Request) {
	author, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var in debate.CreateOpinionInput
	if apiErr := decodeJSONBody(r, &in); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	view, err := h.service.CreateOpinion(r.Context(), author, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// CreateArgument は意見に主張を追加する。
// POST /api/opinions/{id}/arguments
func (h *DebateHandler) CreateArgument(w http.ResponseWriter, r *http.Request) {
	author, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var in debate.CreateArgumentInput
	if apiErr := decodeJSONBody(r, &in); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	view, err := h.service.CreateArgument(r.Context(), author, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// CreateReasoning は主張に理由を追加する。
// POST /api/arguments/{id}/reasoning
func (h *DebateHandler) CreateReasoning(w http.ResponseWriter, r *http.Request) {
	author, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var in debate.CreateReasoningInput
	if apiErr := decodeJSONBody(r, &in); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	view, err := h.service.CreateReasoning(r.Context(), author, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}
