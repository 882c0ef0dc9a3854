package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

var _ repository.TagRepository = (*TagDB)(nil)

// TagDB is read-only: tags are created and counted by SnippetDB as a side
// effect of linking them.
type TagDB struct {
	db *DB
}

// Popular returns the most used tags first.
func (t *TagDB) Popular(ctx context.Context, limit int) ([]model.Tag, error) {
	tags := []model.Tag{}
	err := t.db.conn.SelectContext(ctx, &tags,
		`SELECT id, name, usage_count FROM tags
		 ORDER BY usage_count DESC, name ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing popular tags: %w", err)
	}
	return tags, nil
}

// SearchPrefix matches tag names starting with prefix, case-insensitively.
func (t *TagDB) SearchPrefix(ctx context.Context, prefix string, limit int) ([]model.Tag, error) {
	tags := []model.Tag{}
	err := t.db.conn.SelectContext(ctx, &tags,
		`SELECT id, name, usage_count FROM tags
		 WHERE fold(name) LIKE ? ESCAPE '\'
		 ORDER BY usage_count DESC, name ASC
		 LIMIT ?`, foldPattern(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching tags: %w", err)
	}
	return tags, nil
}
