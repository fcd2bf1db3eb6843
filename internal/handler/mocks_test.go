package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/debate"
	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	confirmFn  func(ctx context.Context, token string) (auth.ConfirmOutcome, error)
	loginFn    func(ctx context.Context, email, password string, remember bool) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Confirm(ctx context.Context, token string) (auth.ConfirmOutcome, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, token)
	}
	return auth.ConfirmInvalidOrExpired, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string, remember bool) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password, remember)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockDebateService struct {
	listOpinionsFn    func(ctx context.Context) ([]debate.OpinionView, error)
	getOpinionFn      func(ctx context.Context, id string) (*debate.OpinionDetail, error)
	getArgumentFn     func(ctx context.Context, id string) (*debate.ArgumentDetail, error)
	createOpinionFn   func(ctx context.Context, author *model.User, in debate.CreateOpinionInput) (*debate.OpinionView, error)
	createArgumentFn  func(ctx context.Context, author *model.User, opinionID string, in debate.CreateArgumentInput) (*debate.ArgumentView, error)
	createReasoningFn func(ctx context.Context, author *model.User, argumentID string, in debate.CreateReasoningInput) (*debate.ReasoningView, error)
}

func (m *mockDebateService) ListOpinions(ctx context.Context) ([]debate.OpinionView, error) {
	if m.listOpinionsFn != nil {
		return m.listOpinionsFn(ctx)
	}
	return []debate.OpinionView{}, nil
}

func (m *mockDebateService) GetOpinion(ctx context.Context, id string) (*debate.OpinionDetail, error) {
	if m.getOpinionFn != nil {
		return m.getOpinionFn(ctx, id)
	}
	return nil, model.NewOpinionNotFoundError(id)
}

func (m *mockDebateService) GetArgument(ctx context.Context, id string) (*debate.ArgumentDetail, error) {
	if m.getArgumentFn != nil {
		return m.getArgumentFn(ctx, id)
	}
	return nil, model.NewArgumentNotFoundError(id)
}

func (m *mockDebateService) CreateOpinion(ctx context.Context, author *model.User, in debate.CreateOpinionInput) (*debate.OpinionView, error) {
	if m.createOpinionFn != nil {
		return m.createOpinionFn(ctx, author, in)
	}
	return &debate.OpinionView{ID: "op-new", Title: in.Title, UserID: author.ID}, nil
}

func (m *mockDebateService) CreateArgument(ctx context.Context, author *model.User, opinionID string, in debate.CreateArgumentInput) (*debate.ArgumentView, error) {
	if m.createArgumentFn != nil {
		return m.createArgumentFn(ctx, author, opinionID, in)
	}
	return &debate.ArgumentView{ID: "arg-new", OpinionID: opinionID, Stance: model.StanceFor}, nil
}

func (m *mockDebateService) CreateReasoning(ctx context.Context, author *model.User, argumentID string, in debate.CreateReasoningInput) (*debate.ReasoningView, error) {
	if m.createReasoningFn != nil {
		return m.createReasoningFn(ctx, author, argumentID, in)
	}
	return &debate.ReasoningView{ID: "r-new", ArgumentID: argumentID}, nil
}

type mockUserService struct {
	listUsersFn       func(ctx context.Context) ([]*model.User, error)
	applyUserActionFn func(ctx context.Context, actor *model.User, targetID, action string) (*model.User, error)
}

func (m *mockUserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return nil, nil
}

func (m *mockUserService) ApplyUserAction(ctx context.Context, actor *model.User, targetID, action string) (*model.User, error) {
	if m.applyUserActionFn != nil {
		return m.applyUserActionFn(ctx, actor, targetID, action)
	}
	return &model.User{ID: targetID}, nil
}

type mockIdentityResolver struct {
	identities map[string]auth.Identity
}

func (m *mockIdentityResolver) ResolveIdentity(_ context.Context, sessionID string) (auth.Identity, error) {
	if id, ok := m.identities[sessionID]; ok {
		return id, nil
	}
	return auth.Identity{State: auth.IdentityAnonymous}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error { return m.err }

var (
	_ AuthServiceInterface        = (*mockAuthService)(nil)
	_ DebateServiceInterface      = (*mockDebateService)(nil)
	_ UserServiceInterface        = (*mockUserService)(nil)
	_ middleware.IdentityResolver = (*mockIdentityResolver)(nil)
	_ HealthChecker               = (*mockHealthChecker)(nil)
)

// --- ヘルパー ---

var (
	activeUser = &model.User{ID: "user-1", Email: "alice@example.com", Username: "alice", Confirmed: true}
	adminUser  = &model.User{ID: "admin-1", Email: "root@example.com", Username: "root", Confirmed: true, IsAdmin: true}
)

// withIdentity は指定した利用者をコンテキストに注入したリクエストを返す。
func withIdentity(req *http.Request, user *model.User) *http.Request {
	state := auth.IdentityActive
	if !user.Confirmed {
		state = auth.IdentityUnconfirmed
	}
	ctx := middleware.ContextWithIdentity(req.Context(), auth.Identity{State: state, User: user})
	return req.WithContext(ctx)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
