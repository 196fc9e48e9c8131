package middleware

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// UpdateObserver records one observation per handled update.
type UpdateObserver interface {
	ObserveUpdate(kind string, elapsed time.Duration, err error)
}

// UpdateKind names the update type: callback, message, inline_query or other.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// MetricsMiddleware reports update kind, handling time and failure to obs.
func MetricsMiddleware(obs UpdateObserver) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if obs == nil {
			return next
		}
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)
			obs.ObserveUpdate(UpdateKind(c), time.Since(start), err)
			return err
		}
	}
}
