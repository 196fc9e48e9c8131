package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// HTTPClientOptions tunes BuildHTTPClient. Zero values select defaults.
type HTTPClientOptions struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	// Retries is the replay budget; negative disables replays.
	Retries int
	Backoff time.Duration
}

// RetryBudget maps a configured retry count, where 0 means none, to
// HTTPClientOptions.Retries.
func RetryBudget(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// BuildHTTPClient returns a pooled HTTP client with retries on transient network errors.
// The long-poll Telegram client and the CMS client share this shape.
func BuildHTTPClient(opts ...HTTPClientOptions) *http.Client {
	o := HTTPClientOptions{
		Timeout:         defaultClientTimeout,
		ResponseTimeout: defaultResponseTimeout,
		Retries:         defaultRetryAttempts,
		Backoff:         defaultRetryBackoff,
	}
	if len(opts) > 0 {
		if opts[0].Timeout > 0 {
			o.Timeout = opts[0].Timeout
		}
		if opts[0].ResponseTimeout > 0 {
			o.ResponseTimeout = opts[0].ResponseTimeout
		}
		switch r := opts[0].Retries; {
		case r < 0:
			o.Retries = 0
		case r > 0:
			o.Retries = r
		}
		if opts[0].Backoff > 0 {
			o.Backoff = opts[0].Backoff
		}
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: o.ResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: o.Timeout,
		Transport: &netutil.RetryTransport{
			Base:       transport,
			MaxRetries: o.Retries,
			Backoff:    o.Backoff,
		},
	}
}
