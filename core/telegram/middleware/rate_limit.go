package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists UpdateKind values that are never limited.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// limiter remembers when each user was last let through. Entries older than
// the interval are swept at most once a minute.
type limiter struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	seen  map[int64]time.Time
	swept time.Time
}

func (l *limiter) allow(userID int64) bool {
	ts := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts.Sub(l.swept) > time.Minute {
		for id, at := range l.seen {
			if ts.Sub(at) >= l.interval {
				delete(l.seen, id)
			}
		}
		l.swept = ts
	}
	if at, ok := l.seen[userID]; ok && ts.Sub(at) < l.interval {
		return false
	}
	l.seen[userID] = ts
	return true
}

// RateLimitMiddleware drops updates that arrive from the same user faster
// than opts.Interval and hands them to opts.OnLimited instead.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	l := &limiter{interval: opts.Interval, now: opts.Now, seen: make(map[int64]time.Time)}
	if l.now == nil {
		l.now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			kind := UpdateKind(c)
			if _, excluded := opts.Exclude[kind]; user == nil || opts.Interval <= 0 || excluded {
				return next(c)
			}
			if l.allow(user.ID) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
