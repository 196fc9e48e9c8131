package cms

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/m3rciful/shopbot/internal/shop"
)

// Error describes a failed call to the content service.
// It unwraps to shop.ErrNotFound or shop.ErrUnavailable.
type Error struct {
	Op         string
	Collection string
	Status     int
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("cms %s %s: status %d: %v", e.Op, e.Collection, e.Status, e.Err)
	}
	return fmt.Sprintf("cms %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code is used as err_code in handler summaries.
func (e *Error) Code() string {
	if errors.Is(e.Err, shop.ErrNotFound) {
		return "cms_not_found"
	}
	return "cms_unavailable"
}

func statusError(op, collection string, status int, detail string) *Error {
	sentinel := shop.ErrUnavailable
	if status == http.StatusNotFound {
		sentinel = shop.ErrNotFound
	}
	return &Error{
		Op:         op,
		Collection: collection,
		Status:     status,
		Err:        fmt.Errorf("%w: %s", sentinel, detail),
	}
}

func transportError(op, collection string, cause error) *Error {
	return &Error{
		Op:         op,
		Collection: collection,
		Err:        fmt.Errorf("%w: %w", shop.ErrUnavailable, cause),
	}
}
