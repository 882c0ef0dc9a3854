// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives and small input structs, never *http.Request,
// and return apperror values. The handler translates those into status
// codes, so the same rules serve the HTTP API, csstoyctl and the tests.
//
// DEPENDENCY INJECTION:
// Every service receives repository interfaces (not *sqlite.DB) at
// construction. main.go builds the graph once: DB → repositories →
// services → handlers. Tests pass in-memory fakes or a :memory: database.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/metrics"
)

// Paging limits shared by every feed.
const (
	DefaultPageLimit = 12
	MaxPageLimit     = 100
	DefaultTagLimit  = 20
)

// PageRequest is a 1-based page number and a page size, as sent by clients.
type PageRequest struct {
	Page  int
	Limit int
}

// normalize clamps the request to sane values. Page 0 or a negative limit
// never reach the database.
func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.Limit
}

// clampLimit applies the same bounds to the non-paginated list endpoints.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// canModify reports whether viewer owns the resource or is an admin.
func canModify(viewer auth.Identity, ownerID string) bool {
	return viewer.UserID != "" && (viewer.UserID == ownerID || viewer.IsAdmin())
}

// announce publishes e after a committed change. A broker outage must not
// fail the request that already succeeded, so errors are only logged and
// counted.
func announce(ctx context.Context, pub events.Publisher, logger *slog.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := pub.Publish(ctx, e); err != nil {
		metrics.EventPublishFailed()
		logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("snippetID", e.SnippetID),
			slog.String("error", err.Error()),
		)
	}
}
