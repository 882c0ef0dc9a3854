package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/csstoy/internal/model"
)

// API is what Store needs from the server. *Client implements it; tests
// substitute a fake.
type API interface {
	Popular(ctx context.Context, page, limit int) (*model.SnippetPage, error)
	Latest(ctx context.Context, page, limit int) (*model.SnippetPage, error)
	GetSnippet(ctx context.Context, id string) (*model.Snippet, error)
	DeleteSnippet(ctx context.Context, id string) error
	ToggleVisibility(ctx context.Context, id string) (bool, error)

	Like(ctx context.Context, id string) (model.InteractionState, error)
	Unlike(ctx context.Context, id string) (model.InteractionState, error)
	Collect(ctx context.Context, id string) (model.InteractionState, error)
	Uncollect(ctx context.Context, id string) (model.InteractionState, error)
}

// List names the feeds a Store caches.
type List string

const (
	ListPopular List = "popular"
	ListLatest  List = "latest"
)

// Store caches the snippet views a front end shows at once: the popular
// and latest feeds plus the one open in a detail view. The same snippet
// may appear in several of them; every change is written to all copies so
// the views never disagree.
//
// OPTIMISTIC TOGGLES:
// ToggleLike reads the current {liked, count} from the first copy it finds,
// sends Like or Unlike accordingly, and on success writes {!liked, count±1}
// back to every copy without refetching.
//
// RECONCILIATION:
// If the server answers Conflict, the local copy was stale: the server
// already holds the state we were about to request. That is not a failure.
// The store adopts the state the server implied and reports success. Any
// other error leaves every copy untouched and is returned.
//
// LOCKING:
// mu guards the cached views only and is never held across a network call.
type Store struct {
	api    API
	logger *slog.Logger

	mu      sync.Mutex
	lists   map[List][]model.Snippet
	current *model.Snippet
}

func NewStore(api API, logger *slog.Logger) *Store {
	return &Store{
		api:    api,
		logger: logger,
		lists:  make(map[List][]model.Snippet),
	}
}

// =========================================================================
// LOADING AND READING VIEWS
// =========================================================================

// Load fetches a feed page and replaces the cached list.
func (s *Store) Load(ctx context.Context, list List, page, limit int) ([]model.Snippet, error) {
	var (
		res *model.SnippetPage
		err error
	)
	switch list {
	case ListPopular:
		res, err = s.api.Popular(ctx, page, limit)
	case ListLatest:
		res, err = s.api.Latest(ctx, page, limit)
	default:
		return nil, fmt.Errorf("client: unknown list %q", list)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lists[list] = res.Snippets
	s.mu.Unlock()
	return s.List(list), nil
}

// Open fetches one snippet into the detail view.
func (s *Store) Open(ctx context.Context, id string) (*model.Snippet, error) {
	snippet, err := s.api.GetSnippet(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.current = snippet
	s.mu.Unlock()
	return s.Current(), nil
}

// SetList and SetCurrent seed the cache with data fetched elsewhere.
func (s *Store) SetList(list List, snippets []model.Snippet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[list] = append([]model.Snippet(nil), snippets...)
}

func (s *Store) SetCurrent(snippet *model.Snippet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snippet == nil {
		s.current = nil
		return
	}
	cp := *snippet
	s.current = &cp
}

// List returns a copy of a cached feed.
func (s *Store) List(list List) []model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Snippet(nil), s.lists[list]...)
}

// Current returns a copy of the detail view, or nil.
func (s *Store) Current() *model.Snippet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// =========================================================================
// TOGGLES
// =========================================================================

// field reads and writes one toggle's flag and counter on a snippet.
type field struct {
	kind   model.InteractionKind
	get    func(*model.Snippet) (bool, int)
	set    func(*model.Snippet, bool, int)
	add    func(API, context.Context, string) (model.InteractionState, error)
	remove func(API, context.Context, string) (model.InteractionState, error)
}

var likeField = field{
	kind: model.Like,
	get:  func(s *model.Snippet) (bool, int) { return s.IsLiked, s.LikesCount },
	set:  func(s *model.Snippet, on bool, n int) { s.IsLiked, s.LikesCount = on, n },

	add:    API.Like,
	remove: API.Unlike,
}

var collectField = field{
	kind: model.Collect,
	get:  func(s *model.Snippet) (bool, int) { return s.IsCollected, s.CollectionsCount },
	set:  func(s *model.Snippet, on bool, n int) { s.IsCollected, s.CollectionsCount = on, n },

	add:    API.Collect,
	remove: API.Uncollect,
}

// ToggleLike likes or unlikes id depending on the cached state and returns
// whether the snippet is now liked.
func (s *Store) ToggleLike(ctx context.Context, id string) (bool, error) {
	return s.toggle(ctx, likeField, id)
}

// ToggleCollect is ToggleLike for collections.
func (s *Store) ToggleCollect(ctx context.Context, id string) (bool, error) {
	return s.toggle(ctx, collectField, id)
}

func (s *Store) toggle(ctx context.Context, f field, id string) (bool, error) {
	active, count := s.snapshot(f, id)

	var err error
	if active {
		_, err = f.remove(s.api, ctx, id)
	} else {
		_, err = f.add(s.api, ctx, id)
	}

	switch {
	case err == nil:
	case IsConflict(err):
		// The server already holds the state we asked for, so the local
		// copy was behind. Adopt the server's side.
		s.logger.Info("reconciled stale toggle state",
			slog.String("kind", f.kind.String()),
			slog.String("snippetID", id),
			slog.Bool("assumedActive", active),
		)
	default:
		return active, err
	}

	next, nextCount := !active, count+1
	if active {
		nextCount = max(0, count-1)
	}
	s.apply(id, func(sn *model.Snippet) { f.set(sn, next, nextCount) })
	return next, nil
}

// snapshot reads the state from the first cached copy of id: the popular
// list, then the latest list, then the detail view. An uncached snippet
// reads as inactive with a zero count.
func (s *Store) snapshot(f field, id string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range []List{ListPopular, ListLatest} {
		for i := range s.lists[list] {
			if s.lists[list][i].ID == id {
				return f.get(&s.lists[list][i])
			}
		}
	}
	if s.current != nil && s.current.ID == id {
		return f.get(s.current)
	}
	return false, 0
}

// apply runs fn on every cached copy of id.
func (s *Store) apply(id string, fn func(*model.Snippet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, items := range s.lists {
		for i := range items {
			if items[i].ID == id {
				fn(&items[i])
			}
		}
	}
	if s.current != nil && s.current.ID == id {
		fn(s.current)
	}
}

// =========================================================================
// DELETE AND VISIBILITY
// =========================================================================

// Delete removes the snippet on the server and then from every view.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteSnippet(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for list, items := range s.lists {
		kept := items[:0]
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		s.lists[list] = kept
	}
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	return nil
}

// ToggleVisibility flips the snippet and writes the server's answer to
// every cached copy.
func (s *Store) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	public, err := s.api.ToggleVisibility(ctx, id)
	if err != nil {
		return false, err
	}
	status := model.StatusActive
	if !public {
		status = model.StatusPrivate
	}
	s.apply(id, func(sn *model.Snippet) { sn.Status = status })
	return public, nil
}
