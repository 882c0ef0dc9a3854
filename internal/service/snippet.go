package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

const (
	MaxTitleLength = 100
	MaxTags        = 10
	MaxSearchLimit = 50
)

// SnippetInput carries the editable fields of a snippet.
//
// Tags == nil means "not supplied": Update leaves the existing links alone.
// An empty non-nil slice clears them. IsPublic is only read by Create;
// visibility changes afterwards go through ToggleVisibility.
type SnippetInput struct {
	Title       string
	Description string
	CSSContent  string
	HTMLContent string
	Tags        []string
	IsPublic    *bool
}

// SnippetService owns the snippet aggregate: the row, its version history,
// its tag links and its visibility. It also assembles every feed.
type SnippetService struct {
	snippets      repository.SnippetRepository
	ledger        repository.LedgerRepository
	publisher     events.Publisher
	popularWindow time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewSnippetService(
	snippets repository.SnippetRepository,
	ledger repository.LedgerRepository,
	publisher events.Publisher,
	popularWindow time.Duration,
	logger *slog.Logger,
) *SnippetService {
	if popularWindow <= 0 {
		popularWindow = 7 * 24 * time.Hour
	}
	return &SnippetService{
		snippets:      snippets,
		ledger:        ledger,
		publisher:     publisher,
		popularWindow: popularWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// validate trims the input, enforces the length ceilings and filters the
// CSS. It runs before any write so a rejected request never touches the
// database.
func (s *SnippetService) validate(in SnippetInput) (SnippetInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if strings.TrimSpace(in.CSSContent) == "" {
		return in, apperror.ValidationFailed("css_content", "CSS content is required")
	}
	if utf8.RuneCountInString(in.CSSContent) > model.MaxCSSLength {
		return in, apperror.ValidationFailed("css_content",
			fmt.Sprintf("CSS content must be %d characters or less", model.MaxCSSLength))
	}
	if utf8.RuneCountInString(in.HTMLContent) > model.MaxHTMLLength {
		return in, apperror.ValidationFailed("html_content",
			fmt.Sprintf("HTML content must be %d characters or less", model.MaxHTMLLength))
	}

	in.CSSContent = FilterCSS(in.CSSContent)
	if in.CSSContent == "" {
		return in, apperror.ValidationFailed("css_content", "CSS content is empty after filtering")
	}

	if in.Tags != nil {
		tags := make([]string, 0, len(in.Tags))
		for _, t := range in.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		if len(tags) > MaxTags {
			return in, apperror.ValidationFailed("tags",
				fmt.Sprintf("a snippet can have at most %d tags", MaxTags))
		}
		in.Tags = tags
	}
	return in, nil
}

// Create validates, filters and stores a new snippet owned by viewer.
func (s *SnippetService) Create(ctx context.Context, viewer auth.Identity, in SnippetInput) (*model.Snippet, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	status := model.StatusActive
	if in.IsPublic != nil && !*in.IsPublic {
		status = model.StatusPrivate
	}

	snippet := &model.Snippet{
		Title:       in.Title,
		Description: in.Description,
		CSSContent:  in.CSSContent,
		HTMLContent: in.HTMLContent,
		UserID:      viewer.UserID,
		Status:      status,
	}
	if err := s.snippets.Create(ctx, snippet, in.Tags); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("userID", viewer.UserID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal(fmt.Errorf("creating snippet: %w", err))
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("userID", viewer.UserID),
		slog.Int("tags", len(snippet.Tags)),
	)
	announce(ctx, s.publisher, s.logger, events.Event{
		Type:      events.SubjectSnippetCreated,
		SnippetID: snippet.ID,
		UserID:    viewer.UserID,
	})

	// Re-read so the response carries the joined username/avatar.
	return s.Get(ctx, viewer, snippet.ID)
}

// Update replaces the editable fields of a snippet the viewer owns and
// appends a version. Admins cannot edit other people's snippets.
func (s *SnippetService) Update(ctx context.Context, viewer auth.Identity, id string, in SnippetInput) (*model.Snippet, error) {
	current, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewer.UserID == "" || current.UserID != viewer.UserID {
		return nil, apperror.Forbidden("you can only edit your own snippets")
	}

	in, err = s.validate(in)
	if err != nil {
		return nil, err
	}

	current.Title = in.Title
	current.Description = in.Description
	current.CSSContent = in.CSSContent
	current.HTMLContent = in.HTMLContent

	if err := s.snippets.Update(ctx, current, in.Tags, in.Tags != nil); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal(fmt.Errorf("updating snippet: %w", err))
	}

	s.logger.Info("snippet updated", slog.String("id", id))
	return s.Get(ctx, viewer, id)
}

// Delete removes a snippet and, by cascade, its tags links, ledger rows,
// comments and versions. Owners and admins may delete.
func (s *SnippetService) Delete(ctx context.Context, viewer auth.Identity, id string) error {
	current, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(viewer, current.UserID) {
		return apperror.Forbidden("you can only delete your own snippets")
	}

	if err := s.snippets.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(fmt.Errorf("deleting snippet: %w", err))
	}

	s.logger.Info("snippet deleted",
		slog.String("id", id),
		slog.String("by", viewer.UserID),
	)
	announce(ctx, s.publisher, s.logger, events.Event{
		Type:      events.SubjectSnippetDeleted,
		SnippetID: id,
		UserID:    viewer.UserID,
	})
	return nil
}

// ToggleVisibility flips active↔private and returns whether the snippet is
// public afterwards. Only the owner may do this.
func (s *SnippetService) ToggleVisibility(ctx context.Context, viewer auth.Identity, id string) (bool, error) {
	current, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if viewer.UserID == "" || current.UserID != viewer.UserID {
		return false, apperror.Forbidden("you can only change the visibility of your own snippets")
	}

	next := model.StatusPrivate
	if !current.IsPublic() {
		next = model.StatusActive
	}
	if err := s.snippets.SetStatus(ctx, id, next); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, err
		}
		s.logger.Error("failed to change snippet visibility",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return false, apperror.Internal(fmt.Errorf("changing visibility: %w", err))
	}

	s.logger.Info("snippet visibility changed",
		slog.String("id", id),
		slog.String("status", next),
	)
	return next == model.StatusActive, nil
}

// Get returns one snippet with its tags and the viewer's flags. A private
// snippet looks missing to everyone but its owner and admins.
func (s *SnippetService) Get(ctx context.Context, viewer auth.Identity, id string) (*model.Snippet, error) {
	snippet, err := s.visible(ctx, viewer, id)
	if err != nil {
		return nil, err
	}

	list := []model.Snippet{*snippet}
	s.enrich(ctx, viewer, list)
	return &list[0], nil
}

// Versions lists the snapshots of a snippet, newest first.
func (s *SnippetService) Versions(ctx context.Context, viewer auth.Identity, id string) ([]model.SnippetVersion, error) {
	if _, err := s.visible(ctx, viewer, id); err != nil {
		return nil, err
	}
	versions, err := s.snippets.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

func (s *SnippetService) visible(ctx context.Context, viewer auth.Identity, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	snippet, err := s.snippets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !snippet.IsPublic() && !canModify(viewer, snippet.UserID) {
		return nil, apperror.NotFound("snippet", id)
	}
	return snippet, nil
}

// =========================================================================
// FEEDS
// =========================================================================

// Popular ranks snippets created within the popularity window by
// likes*0.5 + collections*0.3 + comments*0.2.
func (s *SnippetService) Popular(ctx context.Context, viewer auth.Identity, page PageRequest) (*model.SnippetPage, error) {
	return s.feed(ctx, viewer, page, repository.FeedQuery{
		Order: repository.OrderScore,
		Since: s.now().UTC().Add(-s.popularWindow),
	})
}

// Latest lists public snippets newest first.
func (s *SnippetService) Latest(ctx context.Context, viewer auth.Identity, page PageRequest) (*model.SnippetPage, error) {
	return s.feed(ctx, viewer, page, repository.FeedQuery{Order: repository.OrderLatest})
}

// ByTag lists public snippets carrying the tag, newest first.
func (s *SnippetService) ByTag(ctx context.Context, viewer auth.Identity, tag string, page PageRequest) (*model.SnippetPage, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, apperror.ValidationFailed("name", "tag name is required")
	}
	return s.feed(ctx, viewer, page, repository.FeedQuery{Order: repository.OrderLatest, Tag: tag})
}

// Mine lists the viewer's own snippets, private ones included.
func (s *SnippetService) Mine(ctx context.Context, viewer auth.Identity, page PageRequest) (*model.SnippetPage, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.feed(ctx, viewer, page, repository.FeedQuery{
		Order:          repository.OrderLatest,
		OwnerID:        viewer.UserID,
		IncludePrivate: true,
	})
}

// Liked lists what the viewer liked, most recent like first.
func (s *SnippetService) Liked(ctx context.Context, viewer auth.Identity, page PageRequest) (*model.SnippetPage, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.feed(ctx, viewer, page, repository.FeedQuery{
		Order:   repository.OrderInteraction,
		LikedBy: viewer.UserID,
	})
}

// Collected lists what the viewer collected, most recent first.
func (s *SnippetService) Collected(ctx context.Context, viewer auth.Identity, page PageRequest) (*model.SnippetPage, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return s.feed(ctx, viewer, page, repository.FeedQuery{
		Order:       repository.OrderInteraction,
		CollectedBy: viewer.UserID,
	})
}

func (s *SnippetService) feed(ctx context.Context, viewer auth.Identity, page PageRequest, q repository.FeedQuery) (*model.SnippetPage, error) {
	page = page.normalize()
	q.Limit = page.Limit
	q.Offset = page.offset()

	snippets, total, err := s.snippets.Feed(ctx, q)
	if err != nil {
		s.logger.Error("failed to load feed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading feed: %w", err)
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	s.enrich(ctx, viewer, snippets)

	return &model.SnippetPage{
		Snippets:   snippets,
		Pagination: model.NewPagination(total, page.Page, page.Limit),
	}, nil
}

// Search matches title, description and tag names case-insensitively and
// ranks by popularity. An empty query returns an empty list.
func (s *SnippetService) Search(ctx context.Context, viewer auth.Identity, query string, limit int) ([]model.Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Snippet{}, nil
	}
	limit = clampLimit(limit, DefaultTagLimit)
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	snippets, err := s.snippets.Search(ctx, query, limit)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching snippets: %w", err)
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	s.enrich(ctx, viewer, snippets)
	return snippets, nil
}

// enrich fills IsLiked/IsCollected for an authenticated viewer. The same
// path serves single items and lists so both always agree. A failed
// lookup leaves the flags false rather than failing a read.
func (s *SnippetService) enrich(ctx context.Context, viewer auth.Identity, snippets []model.Snippet) {
	for i := range snippets {
		if snippets[i].Tags == nil {
			snippets[i].Tags = []string{}
		}
	}
	if viewer.UserID == "" || len(snippets) == 0 {
		return
	}

	ids := make([]string, len(snippets))
	for i := range snippets {
		ids[i] = snippets[i].ID
	}
	states, err := s.ledger.States(ctx, viewer.UserID, ids)
	if err != nil {
		s.logger.Warn("viewer state lookup failed",
			slog.String("userID", viewer.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	for i := range snippets {
		st := states[snippets[i].ID]
		snippets[i].IsLiked = st.Liked
		snippets[i].IsCollected = st.Collected
	}
}
