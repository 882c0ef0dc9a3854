package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

type TagService struct {
	tags   repository.TagRepository
	logger *slog.Logger

	// popular collapses concurrent identical popular-tag queries into one
	// database round trip. Every page load asks for the same list.
	popular singleflight.Group
}

func NewTagService(tags repository.TagRepository, logger *slog.Logger) *TagService {
	return &TagService{tags: tags, logger: logger}
}

// Popular returns the most used tags, usage_count descending.
func (s *TagService) Popular(ctx context.Context, limit int) ([]model.Tag, error) {
	limit = clampLimit(limit, DefaultTagLimit)

	v, err, shared := s.popular.Do(strconv.Itoa(limit), func() (any, error) {
		return s.tags.Popular(ctx, limit)
	})
	if err != nil {
		s.logger.Error("failed to load popular tags", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading popular tags: %w", err)
	}
	if shared {
		s.logger.Debug("popular tags query shared", slog.Int("limit", limit))
	}

	tags, _ := v.([]model.Tag)
	if tags == nil {
		return []model.Tag{}, nil
	}
	// Callers may mutate the slice; a shared result must not leak between them.
	out := make([]model.Tag, len(tags))
	copy(out, tags)
	return out, nil
}

// Search returns tags whose name starts with prefix. An empty prefix
// returns an empty list rather than every tag.
func (s *TagService) Search(ctx context.Context, prefix string, limit int) ([]model.Tag, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []model.Tag{}, nil
	}
	tags, err := s.tags.SearchPrefix(ctx, prefix, clampLimit(limit, DefaultTagLimit))
	if err != nil {
		return nil, fmt.Errorf("searching tags: %w", err)
	}
	if tags == nil {
		tags = []model.Tag{}
	}
	return tags, nil
}
