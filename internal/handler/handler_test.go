package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/handler"
	"github.com/sakif/csstoy/internal/repository/sqlite"
	"github.com/sakif/csstoy/internal/service"
)

// Handlers are exercised directly with httptest, without the router.
// Path parameters go in through a chi route context and the caller's
// identity through auth.WithIdentity, exactly what the middleware chain
// would have put there.

type testEnv struct {
	db       *sqlite.DB
	tokens   *auth.TokenService
	authSvc  *service.AuthService
	snippets *handler.SnippetHandler
	comments *handler.CommentHandler
	tags     *handler.TagHandler
	users    *handler.UserHandler
	auth     *handler.AuthHandler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret")
	require.NoError(t, err)
	passwords := auth.NewPasswordService(bcrypt.MinCost)
	pub := &events.Recorder{}
	logger := quietLogger()

	snippetSvc := service.NewSnippetService(db.Snippets(), db.Ledger(), pub, 7*24*time.Hour, logger)
	interactions := service.NewInteractionService(db.Ledger(), pub, logger)
	commentSvc := service.NewCommentService(db.Comments(), db.Snippets(), pub, logger)
	tagSvc := service.NewTagService(db.Tags(), logger)
	userSvc := service.NewUserService(db.Users(), passwords, logger)
	authSvc := service.NewAuthService(db.Users(), tokens, passwords, service.TokenTTL{}, logger)

	return &testEnv{
		db:       db,
		tokens:   tokens,
		authSvc:  authSvc,
		snippets: handler.NewSnippetHandler(snippetSvc, interactions, logger),
		comments: handler.NewCommentHandler(commentSvc, logger),
		tags:     handler.NewTagHandler(tagSvc, snippetSvc, logger),
		users:    handler.NewUserHandler(userSvc, snippetSvc, logger),
		auth:     handler.NewAuthHandler(authSvc, userSvc, nil, 24*time.Hour, logger),
	}
}

// register creates an account through the auth service and returns the
// identity a valid token for it would carry.
func (e *testEnv) register(t *testing.T, username string) auth.Identity {
	t.Helper()
	res, err := e.authSvc.Register(context.Background(), service.RegisterInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        "hunter22secret",
		ConfirmPassword: "hunter22secret",
		ResetQuestion:   "first pet?",
		ResetAnswer:     "rex",
	})
	require.NoError(t, err)
	return auth.Identity{UserID: res.User.ID, Role: res.User.Role}
}

// call is one request against one handler.
type call struct {
	method string
	target string
	body   string
	as     *auth.Identity
	params map[string]string
}

func serve(t *testing.T, h http.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = bytes.NewBufferString(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if len(c.params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range c.params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	if c.as != nil {
		ctx = auth.WithIdentity(ctx, *c.as)
	}

	rr := httptest.NewRecorder()
	h(rr, req.WithContext(ctx))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func byID(key string) map[string]string {
	return map[string]string{"id": key}
}
