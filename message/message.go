// Package message defines the objects, events, queries and inbound messages
// exchanged between agents and zones.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Message is the base of every queued unit of work: a unique identifier, a
// creation timestamp and a retry counter.
type Message struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Retries   int       `json:"retries,omitempty"`
}

// Option configures a Message at construction
type Option func(*Message)

// WithTime sets the creation timestamp instead of time.Now()
func WithTime(createdAt time.Time) Option {
	return func(m *Message) {
		m.CreatedAt = createdAt
	}
}

// WithID sets the identifier instead of a generated UUID
func WithID(id string) Option {
	return func(m *Message) {
		m.ID = id
	}
}

// NewMessage creates a message with a random UUID and the current time
func NewMessage(opts ...Option) Message {
	m := Message{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Retry increments the retry counter and returns the new count
func (m *Message) Retry() int {
	m.Retries++
	return m.Retries
}
