// Package chat models the external chat backend as a single abstract source
// with a pluggable transport. It sits entirely outside the donation pipeline;
// a broken chat source degrades the feed, nothing else.
package chat

import (
	"context"
	"sync"
	"time"
)

// Message is one already-parsed chat message.
type Message struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Source delivers batches of recent messages. Implementations may return the
// same message across calls; the feed deduplicates by ID.
type Source interface {
	Fetch(ctx context.Context) ([]Message, error)
}

// Feed keeps a bounded window of recent messages, deduplicated by ID.
type Feed struct {
	mu       sync.Mutex
	keep     int
	seen     map[string]struct{}
	messages []Message
}

// NewFeed constructs a feed retaining at most keep messages.
func NewFeed(keep int) *Feed {
	if keep <= 0 {
		keep = 50
	}
	return &Feed{keep: keep, seen: make(map[string]struct{})}
}

// Append adds unseen messages in order and trims to the retention window.
func (f *Feed) Append(batch []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, msg := range batch {
		if _, ok := f.seen[msg.ID]; ok {
			continue
		}
		f.seen[msg.ID] = struct{}{}
		f.messages = append(f.messages, msg)
	}

	if len(f.messages) > f.keep {
		dropped := f.messages[:len(f.messages)-f.keep]
		for _, msg := range dropped {
			delete(f.seen, msg.ID)
		}
		f.messages = append([]Message(nil), f.messages[len(f.messages)-f.keep:]...)
	}
}

// Recent returns up to limit messages, oldest first.
func (f *Feed) Recent(limit int) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
