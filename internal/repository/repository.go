// Package repository declares the storage boundary.
//
// Services depend on these interfaces, never on a concrete database. The
// SQLite implementation lives in repository/sqlite; service tests use small
// in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/csstoy/internal/model"
)

// FeedOrder selects how a snippet feed is sorted.
type FeedOrder int

const (
	// OrderLatest sorts by created_at, newest first.
	OrderLatest FeedOrder = iota
	// OrderScore sorts by the popularity score, then newest first.
	OrderScore
	// OrderInteraction sorts by when the LikedBy/CollectedBy user acted.
	OrderInteraction
)

// FeedQuery describes one page of any snippet listing. Zero values mean
// "no filter".
type FeedQuery struct {
	Order FeedOrder

	Since       time.Time // created_at >= Since
	Tag         string    // exact tag name
	OwnerID     string
	LikedBy     string
	CollectedBy string

	// IncludePrivate lists private snippets too. Only set for the owner's
	// own listing.
	IncludePrivate bool

	Limit  int
	Offset int
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UpsertGitHub(ctx context.Context, githubID int64, login, email, avatar string) (*model.User, error)
	UpdateProfile(ctx context.Context, id, username, avatar string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetRole(ctx context.Context, username, role string) error
}

type SnippetRepository interface {
	// Create writes the snippet row, its first version and its tag links
	// in one transaction.
	Create(ctx context.Context, snippet *model.Snippet, tags []string) error
	// Update rewrites the editable fields and appends a version. When
	// replaceTags is true the tag links are dropped and recreated from tags.
	Update(ctx context.Context, snippet *model.Snippet, tags []string, replaceTags bool) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id, status string) error

	Feed(ctx context.Context, q FeedQuery) ([]model.Snippet, int, error)
	Search(ctx context.Context, query string, limit int) ([]model.Snippet, error)
	TagsFor(ctx context.Context, snippetIDs []string) (map[string][]string, error)
	Versions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error)
}

type TagRepository interface {
	Popular(ctx context.Context, limit int) ([]model.Tag, error)
	SearchPrefix(ctx context.Context, prefix string, limit int) ([]model.Tag, error)
}

// LedgerRepository owns the likes and collections tables together with the
// snippet counters they feed. Every mutation changes the ledger row and the
// counter in one transaction.
type LedgerRepository interface {
	// Add inserts the (user, snippet) row and bumps the counter. An existing
	// row yields apperror.ErrConflict; a missing snippet ErrNotFound.
	Add(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (int, error)
	// Remove deletes the row and decrements the counter, floored at zero.
	// A missing row yields apperror.ErrConflict.
	Remove(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (int, error)
	Exists(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (bool, error)
	States(ctx context.Context, userID string, snippetIDs []string) (map[string]model.ViewerState, error)
	// Recount recomputes every snippet's counters from ledger rows and
	// returns how many snippets had drifted.
	Recount(ctx context.Context) (int, error)
}

type CommentRepository interface {
	// Create inserts the comment and bumps comments_count in one
	// transaction. The parent, if any, must belong to the same snippet.
	Create(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	// ListBySnippet returns a flat list ordered by created_at ascending.
	ListBySnippet(ctx context.Context, snippetID string) ([]model.Comment, error)
	// Delete removes the comment and its replies, decrements the counter by
	// the number of rows removed and returns that number.
	Delete(ctx context.Context, id string) (int, error)
}
