// Package audit captures security-relevant authentication events. The
// publisher is append-only and uses the storage layer for persistence so
// tests can swap sinks easily.
package audit

import (
	"context"
	"sync"
	"time"
)

// Actions recorded by the authentication core.
const (
	ActionIPMismatch       = "session.ip_mismatch"
	ActionSessionExpired   = "session.expired"
	ActionInvalidSignature = "apikey.invalid_signature"
	ActionLoginFailed      = "login.failed"
	ActionLogin            = "login.succeeded"
	ActionLogout           = "logout"
)

// Event is one security audit record.
type Event struct {
	Timestamp time.Time
	Action    string
	SubjectID string
	SessionID string
	RemoteIP  string
	Reason    string
}

// Store is the audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps and appends events.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// InMemoryStore collects events for tests and single-node deployments.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *InMemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
