// Package events announces committed domain changes on NATS.
//
// Events are notifications, not a source of truth: they are published after
// the database transaction commits, and a publish failure is logged by the
// caller and never fails the request that caused it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by the service.
const (
	SubjectSnippetCreated     = "snippet.created"
	SubjectSnippetDeleted     = "snippet.deleted"
	SubjectSnippetLiked       = "snippet.liked"
	SubjectSnippetUnliked     = "snippet.unliked"
	SubjectSnippetCollected   = "snippet.collected"
	SubjectSnippetUncollected = "snippet.uncollected"
	SubjectCommentCreated     = "comment.created"
	SubjectCommentDeleted     = "comment.deleted"
)

// Event is the envelope every subject carries.
type Event struct {
	Type       string    `json:"event_type"`
	SnippetID  string    `json:"snippet_id"`
	UserID     string    `json:"user_id,omitempty"`
	CommentID  string    `json:"comment_id,omitempty"`
	Count      *int      `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is what services depend on. NatsPublisher is the real one;
// NopPublisher is used when NATS_URL is empty and in tests.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

type NatsPublisher struct {
	conn *nats.Conn
}

// NewNatsPublisher connects to natsURL. The client reconnects on its own
// after the initial connection succeeds.
func NewNatsPublisher(natsURL string) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("csstoy"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to %s: %w", natsURL, err)
	}
	return &NatsPublisher{conn: nc}, nil
}

// Publish serializes e and sends it on the subject named by e.Type.
func (p *NatsPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshalling %s: %w", e.Type, err)
	}
	if err := p.conn.Publish(e.Type, payload); err != nil {
		return fmt.Errorf("events: publishing %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NatsPublisher) Close() {
	_ = p.conn.Drain()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}

// Recorder keeps published events in memory. Tests use it to assert what a
// service announced.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() {}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
