package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/model"
)

// =========================================================================
// CREATE
// =========================================================================

func TestSnippetCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")

	s, err := env.snippets.Create(ctx, owner, SnippetInput{
		Title:       "  Glow button  ",
		Description: "soft glow",
		CSSContent:  "@import url(x.css); .btn { box-shadow: 0 0 4px; }",
		HTMLContent: "<button class=\"btn\">Hi</button>",
		Tags:        []string{"button", " ", "glow", "button"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Glow button", s.Title)
	assert.Equal(t, ".btn { box-shadow: 0 0 4px; }", s.CSSContent, "CSS must be filtered before storing")
	assert.Equal(t, "owner", s.Username)
	assert.Equal(t, model.StatusActive, s.Status)
	assert.ElementsMatch(t, []string{"button", "glow"}, s.Tags)
	assert.Equal(t, []string{events.SubjectSnippetCreated}, env.events.Types())
}

func TestSnippetCreate_Private(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")
	private := false

	s, err := env.snippets.Create(context.Background(), owner, SnippetInput{
		Title:      "secret",
		CSSContent: ".x{}",
		IsPublic:   &private,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPrivate, s.Status)
}

func TestSnippetCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")

	tooManyTags := make([]string, MaxTags+1)
	for i := range tooManyTags {
		tooManyTags[i] = fmt.Sprintf("t%d", i)
	}

	tests := []struct {
		name  string
		input SnippetInput
	}{
		{"empty title", SnippetInput{Title: "  ", CSSContent: ".a{}"}},
		{"long title", SnippetInput{Title: strings.Repeat("t", MaxTitleLength+1), CSSContent: ".a{}"}},
		{"empty css", SnippetInput{Title: "t", CSSContent: "  "}},
		{"css too long", SnippetInput{Title: "t", CSSContent: strings.Repeat("a", model.MaxCSSLength+1)}},
		{"html too long", SnippetInput{Title: "t", CSSContent: ".a{}", HTMLContent: strings.Repeat("h", model.MaxHTMLLength+1)}},
		{"css only unsafe", SnippetInput{Title: "t", CSSContent: "@import url(x);"}},
		{"too many tags", SnippetInput{Title: "t", CSSContent: ".a{}", Tags: tooManyTags}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.snippets.Create(context.Background(), owner, tt.input)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}

	// Nothing was written by any rejected request.
	page, err := env.snippets.Mine(context.Background(), owner, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Pagination.Total)
}

func TestSnippetCreate_AtCeilingsIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")

	_, err := env.snippets.Create(context.Background(), owner, SnippetInput{
		Title:       "max",
		CSSContent:  strings.Repeat("a", model.MaxCSSLength),
		HTMLContent: strings.Repeat("h", model.MaxHTMLLength),
	})
	assert.NoError(t, err)
}

func TestSnippetCreate_Anonymous(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.snippets.Create(context.Background(), anonymous, SnippetInput{Title: "t", CSSContent: ".a{}"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

// =========================================================================
// UPDATE AND VERSIONS
// =========================================================================

func TestSnippet_CreateUpdateVersionsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")

	s, err := env.snippets.Create(ctx, owner, SnippetInput{
		Title:      "v1",
		CSSContent: ".a { color: red; }",
		Tags:       []string{"one"},
	})
	require.NoError(t, err)

	// Keep created_at of the two versions apart.
	time.Sleep(5 * time.Millisecond)

	updated, err := env.snippets.Update(ctx, owner, s.ID, SnippetInput{
		Title:       "v2",
		CSSContent:  ".a { color: blue; background: url(data:x); }",
		HTMLContent: "<div class=\"a\"></div>",
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Title)
	assert.Equal(t, []string{"one"}, updated.Tags, "nil tags keep existing links")

	versions, err := env.snippets.Versions(ctx, owner, s.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	assert.Equal(t, ".a { color: blue; background: ; }", versions[0].CSSContent)
	assert.Equal(t, "<div class=\"a\"></div>", versions[0].HTMLContent)
	assert.Equal(t, ".a { color: red; }", versions[1].CSSContent)
	assert.False(t, versions[0].CreatedAt.Before(versions[1].CreatedAt), "versions must be newest first")
}

func TestSnippetUpdate_ReplacesTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	s := env.newSnippet(t, owner, "tagged", "a", "b")

	updated, err := env.snippets.Update(ctx, owner, s.ID, SnippetInput{
		Title:      "tagged",
		CSSContent: ".a{}",
		Tags:       []string{"c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, updated.Tags)

	cleared, err := env.snippets.Update(ctx, owner, s.ID, SnippetInput{
		Title:      "tagged",
		CSSContent: ".a{}",
		Tags:       []string{},
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.Tags)
}

func TestSnippetUpdate_Permissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	other := env.newUser(t, "other")
	admin := env.newAdmin(t, "admin")
	s := env.newSnippet(t, owner, "mine")

	in := SnippetInput{Title: "hijacked", CSSContent: ".a{}"}

	_, err := env.snippets.Update(ctx, other, s.ID, in)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "other user: %v", err)

	_, err = env.snippets.Update(ctx, admin, s.ID, in)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "admin: %v", err)

	_, err = env.snippets.Update(ctx, owner, "missing", in)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	// A forbidden request must not append a version.
	versions, err := env.snippets.Versions(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

// =========================================================================
// DELETE AND VISIBILITY
// =========================================================================

func TestSnippetDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	other := env.newUser(t, "other")
	admin := env.newAdmin(t, "admin")

	a := env.newSnippet(t, owner, "a")
	b := env.newSnippet(t, owner, "b")

	err := env.snippets.Delete(ctx, other, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	require.NoError(t, env.snippets.Delete(ctx, owner, a.ID))
	require.NoError(t, env.snippets.Delete(ctx, admin, b.ID))

	_, err = env.snippets.Get(ctx, owner, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Contains(t, env.events.Types(), events.SubjectSnippetDeleted)
}

func TestSnippetToggleVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	other := env.newUser(t, "other")
	admin := env.newAdmin(t, "admin")
	s := env.newSnippet(t, owner, "flip")

	public, err := env.snippets.ToggleVisibility(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.False(t, public)

	// Private: hidden from others and from feeds, visible to owner and admin.
	_, err = env.snippets.Get(ctx, other, s.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = env.snippets.Get(ctx, anonymous, s.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = env.snippets.Versions(ctx, other, s.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = env.snippets.Get(ctx, owner, s.ID)
	assert.NoError(t, err)
	_, err = env.snippets.Get(ctx, admin, s.ID)
	assert.NoError(t, err)

	latest, err := env.snippets.Latest(ctx, anonymous, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, latest.Pagination.Total)

	mine, err := env.snippets.Mine(ctx, owner, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Pagination.Total)

	_, err = env.snippets.ToggleVisibility(ctx, other, s.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	public, err = env.snippets.ToggleVisibility(ctx, owner, s.ID)
	require.NoError(t, err)
	assert.True(t, public)
}

// =========================================================================
// FEEDS
// =========================================================================

func TestSnippetPopular_OrdersByScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")

	// Created in reverse so latest-first order would be the opposite.
	commented := env.newSnippet(t, owner, "commented")
	collected := env.newSnippet(t, owner, "collected")
	liked := env.newSnippet(t, owner, "liked")

	for i := 0; i < 10; i++ {
		fan := env.newUser(t, fmt.Sprintf("fan%02d", i))
		_, err := env.likes.Like(ctx, fan, liked.ID)
		require.NoError(t, err)
		_, err = env.likes.Collect(ctx, fan, collected.ID)
		require.NoError(t, err)
		_, err = env.comments.Create(ctx, fan, CommentInput{SnippetID: commented.ID, Content: "nice"})
		require.NoError(t, err)
	}

	page, err := env.snippets.Popular(ctx, anonymous, PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Snippets, 3)

	assert.Equal(t, []string{liked.ID, collected.ID, commented.ID},
		[]string{page.Snippets[0].ID, page.Snippets[1].ID, page.Snippets[2].ID})
	assert.InDelta(t, 5.0, page.Snippets[0].Score(), 1e-9)
	assert.InDelta(t, 3.0, page.Snippets[1].Score(), 1e-9)
	assert.InDelta(t, 2.0, page.Snippets[2].Score(), 1e-9)
}

func TestSnippetPopular_Window(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")
	env.newSnippet(t, owner, "old news")

	// Eight days from now the snippet falls out of the 7-day window.
	env.snippets.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	page, err := env.snippets.Popular(context.Background(), anonymous, PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Snippets)

	latest, err := env.snippets.Latest(context.Background(), anonymous, PageRequest{})
	require.NoError(t, err)
	assert.Len(t, latest.Snippets, 1, "latest is not windowed")
}

func TestSnippetFeed_Pagination(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")
	for i := 0; i < 5; i++ {
		env.newSnippet(t, owner, fmt.Sprintf("s%d", i))
	}

	page, err := env.snippets.Latest(context.Background(), anonymous, PageRequest{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Snippets, 1)
	assert.Equal(t, model.Pagination{Total: 5, Page: 3, Limit: 2, Pages: 3}, page.Pagination)

	defaults, err := env.snippets.Latest(context.Background(), anonymous, PageRequest{Page: -1, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Pagination.Page)
	assert.Equal(t, DefaultPageLimit, defaults.Pagination.Limit)
}

func TestSnippetFeed_ByTagAndInteractionLists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	fan := env.newUser(t, "fan")

	grid := env.newSnippet(t, owner, "grid", "layout")
	flex := env.newSnippet(t, owner, "flex", "layout")
	env.newSnippet(t, owner, "button", "ui")

	byTag, err := env.snippets.ByTag(ctx, anonymous, "layout", PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, byTag.Pagination.Total)

	_, err = env.likes.Like(ctx, fan, grid.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = env.likes.Like(ctx, fan, flex.ID)
	require.NoError(t, err)
	_, err = env.likes.Collect(ctx, fan, grid.ID)
	require.NoError(t, err)

	liked, err := env.snippets.Liked(ctx, fan, PageRequest{})
	require.NoError(t, err)
	require.Len(t, liked.Snippets, 2)
	assert.Equal(t, flex.ID, liked.Snippets[0].ID, "most recent like first")
	assert.True(t, liked.Snippets[0].IsLiked)

	collected, err := env.snippets.Collected(ctx, fan, PageRequest{})
	require.NoError(t, err)
	require.Len(t, collected.Snippets, 1)
	assert.True(t, collected.Snippets[0].IsCollected)
	assert.True(t, collected.Snippets[0].IsLiked)

	_, err = env.snippets.Liked(ctx, anonymous, PageRequest{})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

// =========================================================================
// SEARCH AND VIEWER STATE
// =========================================================================

func TestSnippetSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	fan := env.newUser(t, "fan")

	gradient := env.newSnippet(t, owner, "Sunset Gradient")
	tagged := env.newSnippet(t, owner, "plain", "GRADIENTS")
	env.newSnippet(t, owner, "unrelated")

	_, err := env.likes.Like(ctx, fan, tagged.ID)
	require.NoError(t, err)

	results, err := env.snippets.Search(ctx, fan, "gradient", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, tagged.ID, results[0].ID, "higher score ranks first")
	assert.True(t, results[0].IsLiked)
	assert.Equal(t, gradient.ID, results[1].ID)
	assert.False(t, results[1].IsLiked)

	empty, err := env.snippets.Search(ctx, fan, "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestSnippetGet_ViewerStateMatchesListState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")
	fan := env.newUser(t, "fan")
	s := env.newSnippet(t, owner, "shared")

	_, err := env.likes.Like(ctx, fan, s.ID)
	require.NoError(t, err)

	one, err := env.snippets.Get(ctx, fan, s.ID)
	require.NoError(t, err)
	list, err := env.snippets.Latest(ctx, fan, PageRequest{})
	require.NoError(t, err)
	require.Len(t, list.Snippets, 1)

	assert.True(t, one.IsLiked)
	assert.Equal(t, one.IsLiked, list.Snippets[0].IsLiked)
	assert.Equal(t, one.IsCollected, list.Snippets[0].IsCollected)

	anon, err := env.snippets.Get(ctx, anonymous, s.ID)
	require.NoError(t, err)
	assert.False(t, anon.IsLiked)
}

func TestSnippetGet_LedgerFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, "owner")
	s := env.newSnippet(t, owner, "s")

	svc := NewSnippetService(env.db.Snippets(), &failingLedger{err: errDiskFull}, nil, 0, quietLogger())
	got, err := svc.Get(context.Background(), owner, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLiked)
	assert.False(t, got.IsCollected)
}

// =========================================================================
// STORAGE FAILURES
// =========================================================================

func TestSnippetWrites_StorageFailureIsInternal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newUser(t, "owner")

	existing, err := env.snippets.Create(ctx, owner, SnippetInput{Title: "kept", CSSContent: ".a{}"})
	require.NoError(t, err)

	broken := NewSnippetService(
		&failingSnippetWrites{SnippetRepository: env.db.Snippets(), err: errDiskFull},
		env.db.Ledger(), env.events, 7*24*time.Hour, quietLogger(),
	)
	input := SnippetInput{Title: "new", CSSContent: ".b{}"}

	tests := []struct {
		name string
		call func() error
	}{
		{"create", func() error { _, err := broken.Create(ctx, owner, input); return err }},
		{"update", func() error { _, err := broken.Update(ctx, owner, existing.ID, input); return err }},
		{"delete", func() error { return broken.Delete(ctx, owner, existing.ID) }},
		{"toggle visibility", func() error { _, err := broken.ToggleVisibility(ctx, owner, existing.ID); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrInternal)
			assert.ErrorIs(t, err, errDiskFull, "cause must stay in the chain for logs")
			assert.Equal(t, "internal_error", apperror.Kind(err))

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.NotContains(t, appErr.Message, "disk", "clients see a generic message")
		})
	}
}
