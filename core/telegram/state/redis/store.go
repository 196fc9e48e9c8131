// Package redis backs conversation sessions with Redis so several bot
// replicas can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/m3rciful/shopbot/core/telegram/state"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "shopbot:session:"

// Store implements state.Store using Redis string keys holding JSON.
type Store struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Store and Locker.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithTTL sets the expiration for sessions, or for locks when passed to NewLocker.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

func buildOptions(opts []Option) options {
	o := options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore creates a session store on top of an existing client.
func NewStore(client backend.UniversalClient, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{client: client, prefix: o.prefix, ttl: o.ttl, now: time.Now}
}

func (s *Store) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

// Load retrieves the session for userID.
func (s *Store) Load(ctx context.Context, userID int64) (state.Session, bool, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return state.Session{}, false, nil
		}
		return state.Session{}, false, fmt.Errorf("failed to load session from redis: %w", err)
	}
	var sess state.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return state.Session{}, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, true, nil
}

// Save persists the session with the configured TTL; 0 keeps it forever.
func (s *Store) Save(ctx context.Context, userID int64, sess state.Session) error {
	sess.UpdatedAt = s.now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Delete removes the session for userID.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

var _ state.Store = (*Store)(nil)
