package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/relaygram/server/internal/model"
)

const (
	usersFile    = "users.json"
	messagesFile = "messages.json"
)

// FileStore persists both collections as pretty-printed JSON files under a
// data directory. Writes go to a temp file first and are renamed into place
// so a crash mid-write never truncates the previous snapshot.
type FileStore struct {
	mu       sync.Mutex
	dir      string
	messages []model.Message
	loaded   bool
}

// NewFileStore creates the data directory if needed and returns a store
// rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// LoadUsers reads users.json; a missing file means an empty collection.
func (s *FileStore) LoadUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []model.User
	if err := s.readJSON(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SaveUsers rewrites users.json with the full collection.
func (s *FileStore) SaveUsers(_ context.Context, users []model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeJSON(usersFile, users)
}

// LoadMessages reads messages.json; a missing file means an empty log. The
// loaded log is cached so AppendMessage can rewrite the file without a
// re-read.
func (s *FileStore) LoadMessages(_ context.Context) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []model.Message
	if err := s.readJSON(messagesFile, &msgs); err != nil {
		return nil, err
	}
	s.messages = msgs
	s.loaded = true

	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessage appends to the cached log and rewrites messages.json.
func (s *FileStore) AppendMessage(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		var msgs []model.Message
		if err := s.readJSON(messagesFile, &msgs); err != nil {
			return err
		}
		s.messages = msgs
		s.loaded = true
	}

	s.messages = append(s.messages, msg)
	if err := s.writeJSON(messagesFile, s.messages); err != nil {
		// Roll back the cache so a retry does not duplicate the entry.
		s.messages = s.messages[:len(s.messages)-1]
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
