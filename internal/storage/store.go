package storage

import (
	"context"
	"errors"

	"github.com/relaygram/server/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable backing for the user and message collections.
// Sessions, verification challenges and connection bindings are process-local
// and never reach this layer.
type Store interface {
	// LoadUsers returns every persisted identity.
	LoadUsers(ctx context.Context) ([]model.User, error)
	// SaveUsers persists the full identity collection.
	SaveUsers(ctx context.Context, users []model.User) error
	// LoadMessages returns every persisted message in append order.
	LoadMessages(ctx context.Context) ([]model.Message, error)
	// AppendMessage durably appends a single message.
	AppendMessage(ctx context.Context, msg model.Message) error
	Close() error
}
