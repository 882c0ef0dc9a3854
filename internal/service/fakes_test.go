package service

import (
	"context"
	"errors"

	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

var errDiskFull = errors.New("disk I/O error")

// failingLedger fails every call with err. It proves storage failures are
// classified as internal and never mistaken for a conflict.
type failingLedger struct {
	err error
}

var _ repository.LedgerRepository = (*failingLedger)(nil)

func (f *failingLedger) Add(context.Context, model.InteractionKind, string, string) (int, error) {
	return 0, f.err
}

func (f *failingLedger) Remove(context.Context, model.InteractionKind, string, string) (int, error) {
	return 0, f.err
}

func (f *failingLedger) Exists(context.Context, model.InteractionKind, string, string) (bool, error) {
	return false, f.err
}

func (f *failingLedger) States(context.Context, string, []string) (map[string]model.ViewerState, error) {
	return nil, f.err
}

func (f *failingLedger) Recount(context.Context) (int, error) {
	return 0, f.err
}

// failingSnippetWrites reads through to a real store and fails every write
// with err.
type failingSnippetWrites struct {
	repository.SnippetRepository
	err error
}

func (f *failingSnippetWrites) Create(context.Context, *model.Snippet, []string) error {
	return f.err
}

func (f *failingSnippetWrites) Update(context.Context, *model.Snippet, []string, bool) error {
	return f.err
}

func (f *failingSnippetWrites) Delete(context.Context, string) error {
	return f.err
}

func (f *failingSnippetWrites) SetStatus(context.Context, string, string) error {
	return f.err
}

// countingTags counts Popular calls and blocks each one until release is
// closed, so concurrent callers pile up inside singleflight.
type countingTags struct {
	calls   chan struct{}
	release chan struct{}
	tags    []model.Tag
}

var _ repository.TagRepository = (*countingTags)(nil)

func (c *countingTags) Popular(context.Context, int) ([]model.Tag, error) {
	c.calls <- struct{}{}
	<-c.release
	return c.tags, nil
}

func (c *countingTags) SearchPrefix(context.Context, string, int) ([]model.Tag, error) {
	return nil, nil
}
