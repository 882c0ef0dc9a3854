package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/metrics"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

// InteractionService drives the like and collect ledgers.
//
// ATOMICITY:
// The ledger repository changes the row and the snippet counter in one
// transaction. This layer only decides which mutation to run and reports
// the outcome; it never touches a counter itself.
//
// RACES:
// Two concurrent adds for the same (user, snippet) both pass any pre-check,
// but the table's primary key lets only one insert commit. The loser gets
// apperror.ErrConflict, which reaches the client as a 400 with code
// "conflict" and is reconciled there.
type InteractionService struct {
	ledger    repository.LedgerRepository
	publisher events.Publisher
	logger    *slog.Logger
}

func NewInteractionService(ledger repository.LedgerRepository, publisher events.Publisher, logger *slog.Logger) *InteractionService {
	return &InteractionService{ledger: ledger, publisher: publisher, logger: logger}
}

func (s *InteractionService) Like(ctx context.Context, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	return s.add(ctx, model.Like, viewer, snippetID)
}

func (s *InteractionService) Unlike(ctx context.Context, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	return s.remove(ctx, model.Like, viewer, snippetID)
}

func (s *InteractionService) Collect(ctx context.Context, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	return s.add(ctx, model.Collect, viewer, snippetID)
}

func (s *InteractionService) Uncollect(ctx context.Context, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	return s.remove(ctx, model.Collect, viewer, snippetID)
}

// Toggle reads the ledger and runs the opposite mutation. If another
// request for the same pair slips in between, the mutation reports
// Conflict instead of double-counting.
func (s *InteractionService) Toggle(ctx context.Context, kind model.InteractionKind, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	if err := checkActor(viewer, snippetID); err != nil {
		return model.InteractionState{}, err
	}
	exists, err := s.ledger.Exists(ctx, kind, viewer.UserID, snippetID)
	if err != nil {
		return model.InteractionState{}, fmt.Errorf("reading %s state: %w", kind, err)
	}
	if exists {
		return s.remove(ctx, kind, viewer, snippetID)
	}
	return s.add(ctx, kind, viewer, snippetID)
}

func (s *InteractionService) add(ctx context.Context, kind model.InteractionKind, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	if err := checkActor(viewer, snippetID); err != nil {
		return model.InteractionState{}, err
	}

	count, err := s.ledger.Add(ctx, kind, viewer.UserID, snippetID)
	if err != nil {
		return model.InteractionState{}, s.fail(kind, "add", snippetID, err)
	}

	metrics.Interaction(kind.String(), "add", "ok")
	s.logger.Info(kind.String()+" added",
		slog.String("snippetID", snippetID),
		slog.String("userID", viewer.UserID),
		slog.Int("count", count),
	)
	s.emit(ctx, kind, true, viewer.UserID, snippetID, count)
	return model.InteractionState{Active: true, Count: count}, nil
}

func (s *InteractionService) remove(ctx context.Context, kind model.InteractionKind, viewer auth.Identity, snippetID string) (model.InteractionState, error) {
	if err := checkActor(viewer, snippetID); err != nil {
		return model.InteractionState{}, err
	}

	count, err := s.ledger.Remove(ctx, kind, viewer.UserID, snippetID)
	if err != nil {
		return model.InteractionState{}, s.fail(kind, "remove", snippetID, err)
	}

	metrics.Interaction(kind.String(), "remove", "ok")
	s.logger.Info(kind.String()+" removed",
		slog.String("snippetID", snippetID),
		slog.String("userID", viewer.UserID),
		slog.Int("count", count),
	)
	s.emit(ctx, kind, false, viewer.UserID, snippetID, count)
	return model.InteractionState{Active: false, Count: count}, nil
}

// fail records the outcome and passes domain errors through untouched.
// Anything else is a storage failure and is wrapped as internal.
func (s *InteractionService) fail(kind model.InteractionKind, action, snippetID string, err error) error {
	switch {
	case errors.Is(err, apperror.ErrConflict):
		metrics.Interaction(kind.String(), action, "conflict")
		return err
	case errors.Is(err, apperror.ErrNotFound):
		metrics.Interaction(kind.String(), action, "not_found")
		return err
	}
	metrics.Interaction(kind.String(), action, "error")
	s.logger.Error("ledger mutation failed",
		slog.String("kind", kind.String()),
		slog.String("action", action),
		slog.String("snippetID", snippetID),
		slog.String("error", err.Error()),
	)
	return apperror.Internal(err)
}

func (s *InteractionService) emit(ctx context.Context, kind model.InteractionKind, added bool, userID, snippetID string, count int) {
	var subject string
	switch {
	case kind == model.Like && added:
		subject = events.SubjectSnippetLiked
	case kind == model.Like:
		subject = events.SubjectSnippetUnliked
	case added:
		subject = events.SubjectSnippetCollected
	default:
		subject = events.SubjectSnippetUncollected
	}
	announce(ctx, s.publisher, s.logger, events.Event{
		Type:      subject,
		SnippetID: snippetID,
		UserID:    userID,
		Count:     &count,
	})
}

func checkActor(viewer auth.Identity, snippetID string) error {
	if viewer.UserID == "" {
		return apperror.Unauthorized("authentication required")
	}
	if strings.TrimSpace(snippetID) == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}
	return nil
}

// Recount rebuilds every snippet's counters from the ledger rows and
// returns how many snippets had drifted. Used by csstoyctl.
func (s *InteractionService) Recount(ctx context.Context) (int, error) {
	n, err := s.ledger.Recount(ctx)
	if err != nil {
		return 0, fmt.Errorf("recounting: %w", err)
	}
	s.logger.Info("counters recounted", slog.Int("repaired", n))
	return n, nil
}
