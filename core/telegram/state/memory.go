package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
)

// MemoryStore keeps sessions in process memory.
// Sessions idle longer than ttl are dropped lazily; ttl <= 0 keeps them for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load returns the stored session for userID.
func (m *MemoryStore) Load(ctx context.Context, userID int64) (Session, bool, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if m.expired(s) {
		m.mu.Lock()
		delete(m.sessions, userID)
		m.mu.Unlock()
		logger.Debug(ctx, "session", "session.expired", slog.Int64("user_id", userID))
		return Session{}, false, nil
	}
	return s.Clone(), true, nil
}

// Save stores a copy of s for userID.
func (m *MemoryStore) Save(_ context.Context, userID int64, s Session) error {
	s = s.Clone()
	s.UpdatedAt = m.now()
	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return nil
}

// Delete removes the entire session for a user.
func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) expired(s Session) bool {
	return m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are reference counted and
// removed once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*lockEntry)}
}

// Lock blocks until the lock for userID is held or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, userID int64) (UnlockFunc, error) {
	entry := k.acquire(userID)
	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(userID)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.ch
			k.release(userID)
		})
		return nil
	}, nil
}

func (k *KeyedMutex) acquire(userID int64) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.locks[userID]
	if !ok {
		// one-slot channel doubles as a mutex that can be abandoned on ctx.Done
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		k.locks[userID] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedMutex) release(userID int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.locks[userID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, userID)
	}
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
