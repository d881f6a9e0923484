package model

import "time"

// User is an identity in the directory, keyed by phone number. The phone
// number is immutable; the username may be set exactly once.
type User struct {
	PhoneNumber  string    `json:"phoneNumber"`
	Username     *string   `json:"username"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// HasUsername reports whether the identity has claimed a username.
func (u User) HasUsername() bool {
	return u.Username != nil && *u.Username != ""
}

// Message is one entry in the append-only message log. Insertion order is
// chronological order; messages are never mutated or deleted.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// LastMessage is the final message of a conversation as seen by a viewer.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsOwn     bool      `json:"isOwn"`
}
