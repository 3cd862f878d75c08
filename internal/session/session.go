package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcdash/telemetry/pkg/core"
)

// Session is one driving session. It is created once at startup and passed
// explicitly to whatever needs the user.
type Session struct {
	mu      sync.Mutex
	id      uuid.UUID
	user    core.User
	source  string
	started time.Time
	ended   time.Time
	now     func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a session for user fed by the named source.
func New(user core.User, source string, opts ...Option) *Session {
	s := &Session{
		id:     uuid.New(),
		user:   user,
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the user stored under key. When none is stored and username
// is set, a new user is registered and saved.
func Open(ctx context.Context, store Store, key, username, source string, opts ...Option) (*Session, error) {
	user, err := LoadUser(ctx, store, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound) && username != "":
		user = core.User{ID: uuid.NewString(), Username: username}
		if err := SaveUser(ctx, store, key, user); err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}
	default:
		return nil, fmt.Errorf("load user: %w", err)
	}
	return New(user, source, opts...), nil
}

func (s *Session) ID() uuid.UUID   { return s.id }
func (s *Session) User() core.User { return s.user }

// Start starts the clock. Calling it again has no effect.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = s.now()
	}
}

// Stop stops the clock and returns the elapsed time in whole seconds.
// Later calls return the same value.
func (s *Session) Stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	if s.ended.IsZero() {
		s.ended = s.now()
	}
	return s.ended.Sub(s.started).Truncate(time.Second)
}

// Elapsed is the running time so far in whole seconds.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.started.IsZero():
		return 0
	case !s.ended.IsZero():
		return s.ended.Sub(s.started).Truncate(time.Second)
	default:
		return s.now().Sub(s.started).Truncate(time.Second)
	}
}

// Record returns the storable view of the session.
func (s *Session) Record() *core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &core.Session{
		ID:        s.id,
		User:      s.user,
		Source:    s.source,
		StartedAt: s.started,
		EndedAt:   s.ended,
	}
	if !s.ended.IsZero() {
		rec.Duration = s.ended.Sub(s.started).Truncate(time.Second)
	}
	return rec
}

// Logout removes the stored user record.
func Logout(ctx context.Context, store Store, key string) error {
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
