package state

import (
	"context"
	"time"
)

// Session stores conversation state and temporary data for a user.
type Session struct {
	State     string            `json:"state"`
	Temp      map[string]string `json:"temp,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TempValue returns a temporary value by key.
func (s *Session) TempValue(key string) (string, bool) {
	if s == nil || s.Temp == nil {
		return "", false
	}
	v, ok := s.Temp[key]
	return v, ok
}

// SetTemp stores a temporary key/value pair.
func (s *Session) SetTemp(key, value string) {
	if s.Temp == nil {
		s.Temp = make(map[string]string)
	}
	s.Temp[key] = value
}

// ClearTemp removes a temporary key.
func (s *Session) ClearTemp(key string) {
	delete(s.Temp, key)
}

// Clone returns a deep copy so stored sessions are never shared with callers.
func (s Session) Clone() Session {
	out := s
	if s.Temp != nil {
		out.Temp = make(map[string]string, len(s.Temp))
		for k, v := range s.Temp {
			out.Temp[k] = v
		}
	}
	return out
}

// Store persists sessions keyed by user id.
// Load returns found=false with a zero Session when none exists.
type Store interface {
	Load(ctx context.Context, userID int64) (Session, bool, error)
	Save(ctx context.Context, userID int64, s Session) error
	Delete(ctx context.Context, userID int64) error
}

// UnlockFunc releases a lock obtained from Locker.
type UnlockFunc func(ctx context.Context) error

// Locker grants exclusive access to one user's session.
type Locker interface {
	Lock(ctx context.Context, userID int64) (UnlockFunc, error)
}
