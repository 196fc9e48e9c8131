package telegram

import (
	"testing"

	"github.com/m3rciful/shopbot/core/telegram/netutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retriesOf(t *testing.T, opts ...HTTPClientOptions) int {
	t.Helper()
	rt, ok := BuildHTTPClient(opts...).Transport.(*netutil.RetryTransport)
	require.True(t, ok)
	return rt.MaxRetries
}

func TestBuildHTTPClientRetries(t *testing.T) {
	assert.Equal(t, defaultRetryAttempts, retriesOf(t))
	assert.Equal(t, defaultRetryAttempts, retriesOf(t, HTTPClientOptions{}))
	assert.Equal(t, 5, retriesOf(t, HTTPClientOptions{Retries: 5}))
	assert.Equal(t, 0, retriesOf(t, HTTPClientOptions{Retries: -1}))
	assert.Equal(t, 0, retriesOf(t, HTTPClientOptions{Retries: RetryBudget(0)}))
	assert.Equal(t, 2, retriesOf(t, HTTPClientOptions{Retries: RetryBudget(2)}))
}
