package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

var _ repository.CommentRepository = (*CommentDB)(nil)

// CommentDB stores comments and keeps snippets.comments_count in step.
type CommentDB struct {
	db *DB
}

const commentSelect = `
	SELECT c.id, c.snippet_id, c.user_id, u.username, u.avatar,
	       c.content, c.parent_id, c.created_at
	FROM comments c
	JOIN users u ON u.id = c.user_id`

// Create inserts the comment and increments the counter.
//
// The snippet check, the parent check, the insert and the counter bump run
// in one transaction: a parent deleted between check and insert cannot
// leave an orphan, and the counter never drifts from the row count.
func (c *CommentDB) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now().UTC()

	return c.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := snippetMustExist(ctx, tx, comment.SnippetID); err != nil {
			return err
		}

		if comment.ParentID != nil {
			var parentSnippet string
			err := tx.GetContext(ctx, &parentSnippet,
				`SELECT snippet_id FROM comments WHERE id = ?`, *comment.ParentID)
			if err != nil && !isNoRows(err) {
				return fmt.Errorf("sqlite: checking parent comment: %w", err)
			}
			// A parent on another snippet is reported exactly like a
			// missing one.
			if isNoRows(err) || parentSnippet != comment.SnippetID {
				return apperror.NotFound("comment", *comment.ParentID)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, snippet_id, user_id, content, parent_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			comment.ID, comment.SnippetID, comment.UserID, comment.Content,
			comment.ParentID, comment.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: inserting comment: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE snippets SET comments_count = comments_count + 1 WHERE id = ?`,
			comment.SnippetID); err != nil {
			return fmt.Errorf("sqlite: incrementing comments_count: %w", err)
		}

		var author struct {
			Username string `db:"username"`
			Avatar   string `db:"avatar"`
		}
		if err := tx.GetContext(ctx, &author,
			`SELECT username, avatar FROM users WHERE id = ?`, comment.UserID); err != nil {
			return fmt.Errorf("sqlite: loading comment author: %w", err)
		}
		comment.Username = author.Username
		comment.Avatar = author.Avatar
		comment.Replies = []*model.Comment{}
		return nil
	})
}

func (c *CommentDB) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	err := c.db.conn.GetContext(ctx, &comment, commentSelect+` WHERE c.id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &comment, nil
}

// ListBySnippet returns the flat comment list, oldest first. Building the
// reply tree is left to the caller.
func (c *CommentDB) ListBySnippet(ctx context.Context, snippetID string) ([]model.Comment, error) {
	comments := []model.Comment{}
	err := c.db.conn.SelectContext(ctx, &comments,
		commentSelect+` WHERE c.snippet_id = ? ORDER BY c.created_at ASC, c.id ASC`,
		snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of %s: %w", snippetID, err)
	}
	return comments, nil
}

// Delete removes a comment and, through ON DELETE CASCADE on parent_id,
// every reply beneath it. The counter is decremented by the size of that
// subtree, counted in the same transaction right before the delete.
func (c *CommentDB) Delete(ctx context.Context, id string) (int, error) {
	var removed int
	err := c.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var snippetID string
		err := tx.GetContext(ctx, &snippetID, `SELECT snippet_id FROM comments WHERE id = ?`, id)
		if err != nil {
			if isNoRows(err) {
				return apperror.NotFound("comment", id)
			}
			return fmt.Errorf("sqlite: getting comment %s: %w", id, err)
		}

		err = tx.GetContext(ctx, &removed,
			`WITH RECURSIVE subtree(id) AS (
			     SELECT id FROM comments WHERE id = ?
			     UNION ALL
			     SELECT c.id FROM comments c JOIN subtree ON c.parent_id = subtree.id
			 )
			 SELECT COUNT(*) FROM subtree`, id)
		if err != nil {
			return fmt.Errorf("sqlite: sizing comment subtree %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE snippets SET comments_count = MAX(0, comments_count - ?) WHERE id = ?`,
			removed, snippetID); err != nil {
			return fmt.Errorf("sqlite: decrementing comments_count: %w", err)
		}
		return nil
	})
	return removed, err
}
