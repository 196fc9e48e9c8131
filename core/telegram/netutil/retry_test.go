package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.True(t, ShouldRetry(dial))
	assert.True(t, ShouldRetry(&url.Error{Op: "Get", URL: "http://x", Err: dial}))
	assert.True(t, ShouldRetry(context.DeadlineExceeded))
	assert.False(t, ShouldRetry(errors.New("bad request")))
	assert.False(t, ShouldRetry(nil))
}

func TestRetryTransportReplaysBody(t *testing.T) {
	var bodies []string
	calls := 0
	rt := &RetryTransport{
		MaxRetries: 2,
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			buf := new(strings.Builder)
			if r.Body != nil {
				_, _ = io.Copy(buf, r.Body)
			}
			bodies = append(bodies, buf.String())
			if calls < 3 {
				return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	req, err := http.NewRequest(http.MethodPost, "http://cms.local/api/carts", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{`{"a":1}`, `{"a":1}`, `{"a":1}`}, bodies)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	calls := 0
	rt := &RetryTransport{
		MaxRetries: 3,
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("tls: bad certificate")
		}),
	}
	req, err := http.NewRequest(http.MethodGet, "http://cms.local/api/products", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout awaiting response headers" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryTransportKeepsPostAfterWrite(t *testing.T) {
	calls := map[string]int{}
	rt := &RetryTransport{
		MaxRetries: 2,
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls[r.Method]++
			return nil, timeoutErr{}
		}),
	}
	for _, method := range []string{http.MethodPost, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodGet} {
		req, err := http.NewRequest(method, "http://cms.local/api/cart-products", strings.NewReader(`{}`))
		require.NoError(t, err)
		_, err = rt.RoundTrip(req)
		assert.Error(t, err)
	}
	assert.Equal(t, 2, calls[http.MethodPost], "one attempt per POST")
	assert.Equal(t, 1, calls[http.MethodPatch])
	assert.Equal(t, 3, calls[http.MethodPut])
	assert.Equal(t, 3, calls[http.MethodGet])
}

func TestReplayable(t *testing.T) {
	post, err := http.NewRequest(http.MethodPost, "http://cms.local/api/carts", nil)
	require.NoError(t, err)
	get, err := http.NewRequest(http.MethodGet, "http://cms.local/api/carts", nil)
	require.NoError(t, err)
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	assert.True(t, Replayable(post, dial))
	assert.False(t, Replayable(post, timeoutErr{}))
	assert.False(t, Replayable(post, &net.OpError{Op: "read", Err: timeoutErr{}}))
	assert.True(t, Replayable(get, timeoutErr{}))
	assert.False(t, Replayable(get, errors.New("bad request")))
}
