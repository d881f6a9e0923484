package chatlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaygram/server/internal/model"
	"github.com/relaygram/server/internal/storage"
)

// Log is the append-only message log. Messages are held in memory in append
// order (which is chronological order) and each append is written through to
// the store before the call returns; a storage failure fails the append.
type Log struct {
	mu       sync.Mutex
	store    storage.Store
	messages []model.Message
	seq      uint64

	now func() time.Time
}

// Load builds the log from the persisted message collection.
func Load(ctx context.Context, store storage.Store) (*Log, error) {
	persisted, err := store.LoadMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return &Log{
		store:    store,
		messages: persisted,
		seq:      uint64(len(persisted)),
		now:      time.Now,
	}, nil
}

// Append stamps and durably appends a new message, returning the stored form.
func (l *Log) Append(ctx context.Context, from, to, text string) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.seq++
	msg := model.Message{
		// Millisecond timestamp plus a process-local sequence number keeps
		// ids unique and ordered even for appends within the same tick.
		ID:        fmt.Sprintf("msg_%d_%d", now.UnixMilli(), l.seq),
		From:      from,
		To:        to,
		Text:      text,
		Timestamp: now,
	}

	if err := l.store.AppendMessage(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("append message: %w", err)
	}
	l.messages = append(l.messages, msg)
	return msg, nil
}

// Conversation returns every message between the two numbers, in either
// direction, in append order.
func (l *Log) Conversation(phoneA, phoneB string) []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Message
	for _, m := range l.messages {
		if (m.From == phoneA && m.To == phoneB) || (m.From == phoneB && m.To == phoneA) {
			out = append(out, m)
		}
	}
	return out
}

// LastMessage returns the final message of the conversation between viewer
// and other, annotated with whether the viewer sent it. Nil if the two have
// never exchanged a message.
func (l *Log) LastMessage(viewer, other string) *model.LastMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.messages) - 1; i >= 0; i-- {
		m := l.messages[i]
		if (m.From == viewer && m.To == other) || (m.From == other && m.To == viewer) {
			return &model.LastMessage{
				Text:      m.Text,
				Timestamp: m.Timestamp,
				IsOwn:     m.From == viewer,
			}
		}
	}
	return nil
}

// Partners returns the distinct numbers the given number has exchanged
// messages with, in order of first contact.
func (l *Log) Partners(phone string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, m := range l.messages {
		if m.From == phone {
			add(m.To)
		}
		if m.To == phone {
			add(m.From)
		}
	}
	return out
}

// Len returns the number of logged messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.messages)
}
