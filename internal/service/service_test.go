package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository/sqlite"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================
//
// Most service tests run against a real, migrated :memory: database. The
// rules worth testing here (ownership, visibility, counter parity) live in
// the interplay between service and store, and SQLite in memory is fast
// enough that faking it buys nothing. Failure paths that a real database
// cannot be coaxed into use the small fakes in fakes_test.go.

type testEnv struct {
	db        *sqlite.DB
	events    *events.Recorder
	snippets  *SnippetService
	likes     *InteractionService
	comments  *CommentService
	tags      *TagService
	users     *UserService
	auth      *AuthService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16")
	require.NoError(t, err)
	passwords := auth.NewPasswordService(bcrypt.MinCost)
	rec := &events.Recorder{}
	logger := quietLogger()

	return &testEnv{
		db:        db,
		events:    rec,
		snippets:  NewSnippetService(db.Snippets(), db.Ledger(), rec, 7*24*time.Hour, logger),
		likes:     NewInteractionService(db.Ledger(), rec, logger),
		comments:  NewCommentService(db.Comments(), db.Snippets(), rec, logger),
		tags:      NewTagService(db.Tags(), logger),
		users:     NewUserService(db.Users(), passwords, logger),
		auth:      NewAuthService(db.Users(), tokens, passwords, TokenTTL{}, logger),
		tokens:    tokens,
		passwords: passwords,
	}
}

// newUser stores a user directly and returns its identity.
func (e *testEnv) newUser(t *testing.T, username string) auth.Identity {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-real-hash",
	}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return auth.Identity{UserID: u.ID, Role: u.Role}
}

func (e *testEnv) newAdmin(t *testing.T, username string) auth.Identity {
	t.Helper()
	id := e.newUser(t, username)
	require.NoError(t, e.db.Users().SetRole(context.Background(), username, model.RoleAdmin))
	id.Role = model.RoleAdmin
	return id
}

func (e *testEnv) newSnippet(t *testing.T, owner auth.Identity, title string, tags ...string) *model.Snippet {
	t.Helper()
	s, err := e.snippets.Create(context.Background(), owner, SnippetInput{
		Title:      title,
		CSSContent: ".card { padding: 1rem; }",
		Tags:       tags,
	})
	require.NoError(t, err)
	return s
}

var anonymous = auth.Identity{}
