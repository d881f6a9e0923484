package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/relaygram/server/internal/model"
	"github.com/relaygram/server/internal/storage"
)

var (
	// ErrNotFound means no identity exists for the phone number.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadySet means the identity already claimed a username.
	ErrAlreadySet = errors.New("username already set")
	// ErrUsernameTaken means another identity holds the username.
	ErrUsernameTaken = errors.New("username already taken")
)

// phoneQueryPattern matches strings that look like (partial) phone numbers:
// digits, plus sign, spaces, dashes and parentheses.
var phoneQueryPattern = regexp.MustCompile(`^[+0-9\s\-()]+$`)

var phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// SearchResult is one entry of a directory search. Exists is false only for
// the synthetic "not yet a contact" entry prepended for phone-looking
// queries that match no known number.
type SearchResult struct {
	PhoneNumber  string  `json:"phoneNumber"`
	Username     *string `json:"username"`
	Exists       bool    `json:"exists"`
	IsNewContact bool    `json:"isNewContact,omitempty"`
}

// Directory owns the identity collection. All access is serialized through a
// single mutex; durable writes happen under the lock before the call returns,
// so a successful return implies the change is on disk.
type Directory struct {
	mu    sync.Mutex
	store storage.Store
	users map[string]*model.User
	order []string

	now func() time.Time
}

// Load builds a directory from the persisted identity collection.
func Load(ctx context.Context, store storage.Store) (*Directory, error) {
	persisted, err := store.LoadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	d := &Directory{
		store: store,
		users: make(map[string]*model.User, len(persisted)),
		now:   time.Now,
	}
	for i := range persisted {
		u := persisted[i]
		d.users[u.PhoneNumber] = &u
		d.order = append(d.order, u.PhoneNumber)
	}
	return d, nil
}

// GetOrCreate returns the identity for the phone number, creating and
// persisting a fresh one (username unset) if none exists.
func (d *Directory) GetOrCreate(ctx context.Context, phone string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[phone]; ok {
		return *u, nil
	}

	u := &model.User{
		PhoneNumber:  phone,
		RegisteredAt: d.now(),
	}
	d.users[phone] = u
	d.order = append(d.order, phone)

	if err := d.persistLocked(ctx); err != nil {
		delete(d.users, phone)
		d.order = d.order[:len(d.order)-1]
		return model.User{}, err
	}

	log.Printf("directory: new user %s", phone)
	return *u, nil
}

// Find returns the identity for the phone number, if any.
func (d *Directory) Find(phone string) (model.User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[phone]
	if !ok {
		return model.User{}, false
	}
	return *u, true
}

// SetUsername claims a username for the identity. A username may be set
// exactly once per identity and must be unique across the directory,
// case-insensitively. Both checks and the durable write happen under the
// lock, so two concurrent claims of the same name cannot both succeed.
func (d *Directory) SetUsername(ctx context.Context, phone, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[phone]
	if !ok {
		return ErrNotFound
	}
	if u.HasUsername() {
		return ErrAlreadySet
	}

	lower := strings.ToLower(username)
	for _, other := range d.users {
		if other.HasUsername() && strings.ToLower(*other.Username) == lower {
			return ErrUsernameTaken
		}
	}

	u.Username = &username
	if err := d.persistLocked(ctx); err != nil {
		u.Username = nil
		return err
	}
	return nil
}

// All returns every identity in registration order.
func (d *Directory) All() []model.User {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.User, 0, len(d.order))
	for _, phone := range d.order {
		out = append(out, *d.users[phone])
	}
	return out
}

// Search matches the query as a case-insensitive substring of phone number
// or username, excluding the viewer. If the query looks like a phone number
// (length >= 5) and no matched identity's number contains it, a synthetic
// "new contact" entry is prepended. Search never creates identities.
func (d *Directory) Search(viewer, query string) []SearchResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))

	var results []SearchResult
	for _, phone := range d.order {
		u := d.users[phone]
		if phone == viewer {
			continue
		}
		match := strings.Contains(strings.ToLower(phone), q)
		if !match && u.HasUsername() {
			match = strings.Contains(strings.ToLower(*u.Username), q)
		}
		if match {
			results = append(results, SearchResult{
				PhoneNumber: phone,
				Username:    u.Username,
				Exists:      true,
			})
		}
	}

	if phoneQueryPattern.MatchString(q) && len(q) >= 5 {
		clean := phoneCleaner.Replace(q)
		known := false
		for _, r := range results {
			if strings.Contains(r.PhoneNumber, clean) {
				known = true
				break
			}
		}
		if !known && clean != phoneCleaner.Replace(viewer) {
			results = append([]SearchResult{{
				PhoneNumber:  q,
				Exists:       false,
				IsNewContact: true,
			}}, results...)
		}
	}

	return results
}

func (d *Directory) persistLocked(ctx context.Context) error {
	users := make([]model.User, 0, len(d.order))
	for _, phone := range d.order {
		users = append(users, *d.users[phone])
	}
	if err := d.store.SaveUsers(ctx, users); err != nil {
		return fmt.Errorf("persist users: %w", err)
	}
	return nil
}
