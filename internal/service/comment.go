package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

// CommentInput is a new comment or reply. ParentID is empty for a
// top-level comment.
type CommentInput struct {
	SnippetID string
	Content   string
	ParentID  string
}

type CommentService struct {
	comments  repository.CommentRepository
	snippets  repository.SnippetRepository
	publisher events.Publisher
	logger    *slog.Logger
}

func NewCommentService(
	comments repository.CommentRepository,
	snippets repository.SnippetRepository,
	publisher events.Publisher,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{comments: comments, snippets: snippets, publisher: publisher, logger: logger}
}

// Tree returns the snippet's comments as a forest of root comments with
// nested replies.
func (s *CommentService) Tree(ctx context.Context, viewer auth.Identity, snippetID string) ([]*model.Comment, error) {
	if err := s.checkSnippet(ctx, viewer, snippetID); err != nil {
		return nil, err
	}
	flat, err := s.comments.ListBySnippet(ctx, snippetID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return BuildCommentTree(flat), nil
}

// Get returns one comment without its replies.
func (s *CommentService) Get(ctx context.Context, viewer auth.Identity, id string) (*model.Comment, error) {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkSnippet(ctx, viewer, comment.SnippetID); err != nil {
		return nil, err
	}
	comment.Replies = []*model.Comment{}
	return comment, nil
}

// Create validates and stores a comment. The repository bumps
// comments_count in the same transaction as the insert.
func (s *CommentService) Create(ctx context.Context, viewer auth.Identity, in CommentInput) (*model.Comment, error) {
	if viewer.UserID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	in.SnippetID = strings.TrimSpace(in.SnippetID)
	in.Content = strings.TrimSpace(in.Content)
	in.ParentID = strings.TrimSpace(in.ParentID)

	if in.SnippetID == "" {
		return nil, apperror.ValidationFailed("cssnippet_id", "snippet ID is required")
	}
	if in.Content == "" {
		return nil, apperror.ValidationFailed("content", "comment content is required")
	}
	if utf8.RuneCountInString(in.Content) > model.MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", model.MaxCommentLength))
	}
	if err := s.checkSnippet(ctx, viewer, in.SnippetID); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		SnippetID: in.SnippetID,
		UserID:    viewer.UserID,
		Content:   in.Content,
	}
	if in.ParentID != "" {
		comment.ParentID = &in.ParentID
	}

	if err := s.comments.Create(ctx, comment); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to create comment",
			slog.String("snippetID", in.SnippetID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal(err)
	}

	s.logger.Info("comment created",
		slog.String("id", comment.ID),
		slog.String("snippetID", comment.SnippetID),
	)
	announce(ctx, s.publisher, s.logger, events.Event{
		Type:      events.SubjectCommentCreated,
		SnippetID: comment.SnippetID,
		UserID:    viewer.UserID,
		CommentID: comment.ID,
	})
	return comment, nil
}

// Delete removes a comment and its replies. The author or an admin may
// delete. comments_count drops by the number of rows removed.
func (s *CommentService) Delete(ctx context.Context, viewer auth.Identity, id string) error {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(viewer, comment.UserID) {
		return apperror.Forbidden("you can only delete your own comments")
	}

	removed, err := s.comments.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete comment",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(err)
	}

	s.logger.Info("comment deleted",
		slog.String("id", id),
		slog.String("snippetID", comment.SnippetID),
		slog.Int("removed", removed),
	)
	announce(ctx, s.publisher, s.logger, events.Event{
		Type:      events.SubjectCommentDeleted,
		SnippetID: comment.SnippetID,
		UserID:    viewer.UserID,
		CommentID: id,
		Count:     &removed,
	})
	return nil
}

// checkSnippet hides comments of private snippets from everyone who could
// not see the snippet itself.
func (s *CommentService) checkSnippet(ctx context.Context, viewer auth.Identity, snippetID string) error {
	snippet, err := s.snippets.GetByID(ctx, snippetID)
	if err != nil {
		return err
	}
	if !snippet.IsPublic() && !canModify(viewer, snippet.UserID) {
		return apperror.NotFound("snippet", snippetID)
	}
	return nil
}

// BuildCommentTree nests a flat, created_at-ascending comment list.
//
// ONE PASS, IN ORDER:
// Each comment gets an empty Replies slice and is indexed by id. If its
// parent was already indexed it is appended to that parent's Replies,
// otherwise it becomes a root.
//
// A dangling or forward parent reference therefore yields a root instead of
// an error or a lost comment, and no input can produce a cycle. Relative
// order within every Replies slice matches the input.
func BuildCommentTree(flat []model.Comment) []*model.Comment {
	nodes := make(map[string]*model.Comment, len(flat))
	roots := make([]*model.Comment, 0)

	for i := range flat {
		c := flat[i]
		c.Replies = make([]*model.Comment, 0)
		node := &c

		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Replies = append(parent.Replies, node)
				nodes[c.ID] = node
				continue
			}
		}
		roots = append(roots, node)
		nodes[c.ID] = node
	}
	return roots
}
