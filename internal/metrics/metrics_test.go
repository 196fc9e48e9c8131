package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ObserveUpdate("callback", 10*time.Millisecond, nil)
	m.ObserveUpdate("message", time.Millisecond, errors.New("boom"))
	m.ObserveTransition("menu", "cart", "cart")
	m.ObserveRemoteCall("list", "products", 20*time.Millisecond, context.DeadlineExceeded)
	m.ObserveJob("callback", time.Millisecond, nil)
	m.ObserveRenderFallback()

	code, body := scrape(t, m.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, code)
	for _, want := range []string{
		`shopbot_updates_total{kind="callback",status="ok"} 1`,
		`shopbot_updates_total{kind="message",status="fail"} 1`,
		`shopbot_fsm_transitions_total{action="cart",from="menu",to="cart"} 1`,
		`shopbot_cms_requests_total{collection="products",op="list",status="timeout"} 1`,
		`shopbot_dispatch_jobs_total{status="ok"} 1`,
		`shopbot_render_fallbacks_total 1`,
		`# HELP shopbot_dispatch_job_duration_seconds Conversation turn run time, excluding queue wait.`,
		`shopbot_dispatch_job_duration_seconds_count 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestHealthz(t *testing.T) {
	code, body := scrape(t, New().Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New().Serve(ctx, "127.0.0.1:0") }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
