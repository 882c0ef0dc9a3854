package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *SnippetDB stops satisfying repository.SnippetRepository the build
// breaks here instead of at the (much later) call site in main.go.
var _ repository.SnippetRepository = (*SnippetDB)(nil)

// SnippetDB is the snippets table together with its versions and tag links.
type SnippetDB struct {
	db *DB
}

// snippetSelect joins the owner's username and avatar onto every row.
// Every snippet query starts from here so model.Snippet scanning stays
// identical everywhere.
const snippetSelect = `
	SELECT s.id, s.title, s.description, s.css_content, s.html_content, s.user_id,
	       u.username, u.avatar,
	       s.created_at, s.updated_at,
	       s.likes_count, s.collections_count, s.comments_count, s.status
	FROM snippets s
	JOIN users u ON u.id = s.user_id`

// scoreExpr mirrors model.Snippet.Score. It is only ever used for ordering.
var scoreExpr = fmt.Sprintf(
	"(s.likes_count * %v + s.collections_count * %v + s.comments_count * %v)",
	model.LikeWeight, model.CollectionWeight, model.CommentWeight,
)

// Create inserts a new snippet, its first version and its tag links.
//
// All three writes share one transaction: a snippet never exists without
// its first version, and a half-linked tag set is never visible.
//
// ID GENERATION WITH xid:
// xids are 20 URL-safe chars and sort by creation time, which gives the
// feeds a stable tie-breaker (created_at DESC, id DESC).
func (s *SnippetDB) Create(ctx context.Context, snippet *model.Snippet, tags []string) error {
	now := time.Now().UTC()
	snippet.ID = xid.New().String()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	if snippet.Status == "" {
		snippet.Status = model.StatusActive
	}

	err := s.db.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, title, description, css_content, html_content,
			                       user_id, created_at, updated_at, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snippet.ID, snippet.Title, snippet.Description, snippet.CSSContent,
			snippet.HTMLContent, snippet.UserID, snippet.CreatedAt, snippet.UpdatedAt,
			snippet.Status,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}

		if err := appendVersion(ctx, tx, snippet, now); err != nil {
			return err
		}
		return linkTags(ctx, tx, snippet.ID, tags)
	})
	if err != nil {
		return err
	}

	snippet.Tags = dedupe(tags)
	return nil
}

// Update rewrites title, description and content, then appends a version.
// The version history is append-only: an edit never touches older rows.
//
// When replaceTags is set, existing links are deleted and the new set is
// linked from scratch. usage_count is only ever incremented, so replacing
// [a, b] with [a] still leaves a's count bumped twice.
func (s *SnippetDB) Update(ctx context.Context, snippet *model.Snippet, tags []string, replaceTags bool) error {
	now := time.Now().UTC()
	snippet.UpdatedAt = now

	return s.db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, description = ?, css_content = ?, html_content = ?, updated_at = ?
			 WHERE id = ?`,
			snippet.Title, snippet.Description, snippet.CSSContent, snippet.HTMLContent,
			snippet.UpdatedAt, snippet.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
		}
		if err := requireAffected(res, "snippet", snippet.ID); err != nil {
			return err
		}

		if err := appendVersion(ctx, tx, snippet, now); err != nil {
			return err
		}

		if !replaceTags {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM snippet_tags WHERE snippet_id = ?`, snippet.ID); err != nil {
			return fmt.Errorf("sqlite: clearing tags for %s: %w", snippet.ID, err)
		}
		return linkTags(ctx, tx, snippet.ID, tags)
	})
}

func appendVersion(ctx context.Context, tx *sqlx.Tx, snippet *model.Snippet, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snippet_versions (id, snippet_id, css_content, html_content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		xid.New().String(), snippet.ID, snippet.CSSContent, snippet.HTMLContent, at,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending version for %s: %w", snippet.ID, err)
	}
	return nil
}

// linkTags resolves each name with find-or-create semantics, bumping
// usage_count, and links it to the snippet. The upsert is a single
// statement so two snippets creating the same new tag cannot both insert it.
func linkTags(ctx context.Context, tx *sqlx.Tx, snippetID string, tags []string) error {
	for _, name := range dedupe(tags) {
		var tagID string
		err := tx.GetContext(ctx, &tagID,
			`INSERT INTO tags (id, name, usage_count) VALUES (?, ?, 1)
			 ON CONFLICT(name) DO UPDATE SET usage_count = usage_count + 1
			 RETURNING id`,
			xid.New().String(), name,
		)
		if err != nil {
			return fmt.Errorf("sqlite: resolving tag %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_tags (snippet_id, tag_id) VALUES (?, ?)`,
			snippetID, tagID); err != nil {
			return fmt.Errorf("sqlite: linking tag %q to %s: %w", name, snippetID, err)
		}
	}
	return nil
}

// dedupe trims names, drops empties and keeps the first occurrence of each.
func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// GetByID retrieves a single snippet, with its tags, regardless of status.
// Visibility rules are the service's job.
func (s *SnippetDB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	var snippet model.Snippet
	err := s.db.conn.GetContext(ctx, &snippet, snippetSelect+` WHERE s.id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	tags, err := s.TagsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	snippet.Tags = tags[id]
	if snippet.Tags == nil {
		snippet.Tags = []string{}
	}
	return &snippet, nil
}

// Delete removes a snippet. ON DELETE CASCADE takes its versions, tag
// links, likes, collections and comments with it.
func (s *SnippetDB) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return requireAffected(res, "snippet", id)
}

func (s *SnippetDB) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE snippets SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("sqlite: setting status of %s: %w", id, err)
	}
	return requireAffected(res, "snippet", id)
}

// Feed returns one page of snippets matching q plus the total number of
// matches (for page counts). Tags are attached to every returned item.
//
// The WHERE clause is assembled from fixed fragments; only values travel
// as ? arguments.
func (s *SnippetDB) Feed(ctx context.Context, q repository.FeedQuery) ([]model.Snippet, int, error) {
	var (
		join  string
		where []string
		args  []any
	)

	switch {
	case q.LikedBy != "":
		join = ` JOIN likes x ON x.snippet_id = s.id AND x.user_id = ?`
		args = append(args, q.LikedBy)
	case q.CollectedBy != "":
		join = ` JOIN collections x ON x.snippet_id = s.id AND x.user_id = ?`
		args = append(args, q.CollectedBy)
	}

	if !q.IncludePrivate {
		where = append(where, `s.status = 'active'`)
	}
	if !q.Since.IsZero() {
		where = append(where, `s.created_at >= ?`)
		args = append(args, q.Since.UTC())
	}
	if q.OwnerID != "" {
		where = append(where, `s.user_id = ?`)
		args = append(args, q.OwnerID)
	}
	if q.Tag != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
			WHERE st.snippet_id = s.id AND t.name = ?)`)
		args = append(args, q.Tag)
	}

	filter := join
	if len(where) > 0 {
		filter += ` WHERE ` + strings.Join(where, ` AND `)
	}

	var total int
	if err := s.db.conn.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM snippets s`+filter, args...); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting feed: %w", err)
	}

	var order string
	switch q.Order {
	case repository.OrderScore:
		order = scoreExpr + ` DESC, s.created_at DESC, s.id DESC`
	case repository.OrderInteraction:
		if join != "" {
			order = `x.created_at DESC, s.id DESC`
			break
		}
		fallthrough
	default:
		order = `s.created_at DESC, s.id DESC`
	}

	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = 12
	}
	if offset < 0 {
		offset = 0
	}

	snippets := make([]model.Snippet, 0, limit)
	err := s.db.conn.SelectContext(ctx, &snippets,
		snippetSelect+filter+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing feed: %w", err)
	}

	if err := s.attachTags(ctx, snippets); err != nil {
		return nil, 0, err
	}
	return snippets, total, nil
}

// Search matches query case-insensitively as a substring of the title,
// the description or any tag name, over public snippets only, best score
// first.
func (s *SnippetDB) Search(ctx context.Context, query string, limit int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + foldPattern(query) + "%"

	snippets := make([]model.Snippet, 0, limit)
	err := s.db.conn.SelectContext(ctx, &snippets,
		snippetSelect+`
		WHERE s.status = 'active'
		  AND (fold(s.title) LIKE ? ESCAPE '\'
		       OR fold(s.description) LIKE ? ESCAPE '\'
		       OR EXISTS (
		           SELECT 1 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
		           WHERE st.snippet_id = s.id AND fold(t.name) LIKE ? ESCAPE '\'))
		ORDER BY `+scoreExpr+` DESC, s.created_at DESC, s.id DESC
		LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching snippets: %w", err)
	}

	if err := s.attachTags(ctx, snippets); err != nil {
		return nil, err
	}
	return snippets, nil
}

// TagsFor loads tag names for a batch of snippets in one query, keyed by
// snippet id. Names within a snippet are sorted alphabetically.
func (s *SnippetDB) TagsFor(ctx context.Context, snippetIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(snippetIDs))
	if len(snippetIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(
		`SELECT st.snippet_id, t.name
		 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
		 WHERE st.snippet_id IN (?)
		 ORDER BY t.name`, snippetIDs)
	if err != nil {
		return nil, fmt.Errorf("sqlite: building tag query: %w", err)
	}

	var rows []struct {
		SnippetID string `db:"snippet_id"`
		Name      string `db:"name"`
	}
	if err := s.db.conn.SelectContext(ctx, &rows, s.db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlite: loading tags: %w", err)
	}
	for _, r := range rows {
		out[r.SnippetID] = append(out[r.SnippetID], r.Name)
	}
	return out, nil
}

func (s *SnippetDB) attachTags(ctx context.Context, snippets []model.Snippet) error {
	ids := make([]string, len(snippets))
	for i := range snippets {
		ids[i] = snippets[i].ID
	}
	tags, err := s.TagsFor(ctx, ids)
	if err != nil {
		return err
	}
	for i := range snippets {
		snippets[i].Tags = tags[snippets[i].ID]
		if snippets[i].Tags == nil {
			snippets[i].Tags = []string{}
		}
	}
	return nil
}

// Versions returns the snapshot history, newest first.
func (s *SnippetDB) Versions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error) {
	versions := []model.SnippetVersion{}
	err := s.db.conn.SelectContext(ctx, &versions,
		`SELECT id, snippet_id, css_content, html_content, created_at
		 FROM snippet_versions
		 WHERE snippet_id = ?
		 ORDER BY created_at DESC, id DESC`,
		snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions of %s: %w", snippetID, err)
	}
	return versions, nil
}
