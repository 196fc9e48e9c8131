// Package cms is a small client for the Strapi v5 REST API that stores the
// catalog, carts and client records.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
	"github.com/oklog/ulid/v2"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
	maxMediaBytes  = 10 << 20
)

// Observer records remote call outcomes, e.g. for metrics.
type Observer interface {
	ObserveRemoteCall(op, collection string, elapsed time.Duration, err error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// Timeout bounds every call; zero selects 5s.
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

// Client talks to the content service.
type Client struct {
	base     *url.URL
	token    string
	timeout  time.Duration
	http     *http.Client
	obs      Observer
	newKey   func() string
	basePath string
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("cms: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:     base,
		token:    opts.Token,
		timeout:  opts.Timeout,
		http:     hc,
		obs:      opts.Observer,
		newKey:   func() string { return ulid.Make().String() },
		basePath: base.String(),
	}, nil
}

// envelope is the Strapi response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// List fetches a collection and decodes the data array into out, a pointer to a slice.
func (c *Client) List(ctx context.Context, collection string, q *Query, out any) error {
	raw, err := c.do(ctx, "list", collection, http.MethodGet, "/api/"+collection, q, nil)
	if err != nil {
		return err
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return transportError("list", collection, fmt.Errorf("decode data: %w", err))
	}
	if err := Decode(items, out); err != nil {
		return transportError("list", collection, err)
	}
	return nil
}

// Create posts data as a new document and decodes the stored document into out when non-nil.
func (c *Client) Create(ctx context.Context, collection string, data, out any) error {
	return c.write(ctx, "create", collection, http.MethodPost, "/api/"+collection, data, out)
}

// Update replaces fields of the document with documentID.
func (c *Client) Update(ctx context.Context, collection, documentID string, data, out any) error {
	return c.write(ctx, "update", collection, http.MethodPut, "/api/"+collection+"/"+url.PathEscape(documentID), data, out)
}

// Delete removes the document with documentID.
func (c *Client) Delete(ctx context.Context, collection, documentID string) error {
	_, err := c.do(ctx, "delete", collection, http.MethodDelete, "/api/"+collection+"/"+url.PathEscape(documentID), nil, nil)
	return err
}

// ResolveURL turns a media reference into an absolute URL.
// Upload providers may already return absolute URLs; those are kept.
func (c *Client) ResolveURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.basePath + "/" + strings.TrimLeft(ref, "/")
}

// Fetch downloads a media file by absolute URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	data, status, err := c.fetch(ctx, rawURL)
	c.observe(ctx, call{op: "fetch", collection: "media", status: status}, time.Since(start), err)
	return data, err
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, transportError("fetch", "media", err)
	}
	// media served by the CMS itself may be private
	if strings.HasPrefix(rawURL, c.basePath) {
		c.authorize(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, transportError("fetch", "media", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, statusError("fetch", "media", resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, resp.StatusCode, transportError("fetch", "media", err)
	}
	if len(data) > maxMediaBytes {
		return nil, resp.StatusCode, statusError("fetch", "media", resp.StatusCode, "media too large")
	}
	return data, resp.StatusCode, nil
}

func (c *Client) write(ctx context.Context, op, collection, method, path string, data, out any) error {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return &Error{Op: op, Collection: collection, Err: fmt.Errorf("encode body: %w", err)}
	}
	raw, err := c.do(ctx, op, collection, method, path, nil, body)
	if err != nil || out == nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return transportError(op, collection, fmt.Errorf("decode data: %w", err))
	}
	if err := Decode(doc, out); err != nil {
		return transportError(op, collection, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do performs one request and returns the raw data member of the envelope.
func (c *Client) do(ctx context.Context, op, collection, method, path string, q *Query, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, status, err := c.roundTrip(ctx, op, collection, method, path, q.Values(), body)
	c.observe(ctx, call{op: op, collection: collection, query: q.String(), status: status}, time.Since(start), err)
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, op, collection, method, path string, query url.Values, body []byte) (json.RawMessage, int, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, 0, transportError(op, collection, err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		// RetryTransport replays the request with this same key
		req.Header.Set("Idempotency-Key", c.newKey())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, transportError(op, collection, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, transportError(op, collection, err)
	}

	var env envelope
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &env); err != nil && resp.StatusCode < 300 {
			return nil, resp.StatusCode, transportError(op, collection, fmt.Errorf("decode envelope: %w", err))
		}
	}
	if resp.StatusCode >= 300 {
		detail := resp.Status
		if env.Error != nil && env.Error.Message != "" {
			detail = env.Error.Name + ": " + env.Error.Message
		}
		return nil, resp.StatusCode, statusError(op, collection, resp.StatusCode, logger.SanitizeLimit(detail, 256))
	}
	return env.Data, resp.StatusCode, nil
}

// call identifies one request in logs and metrics.
type call struct {
	op, collection string
	query          string
	status         int
}

func (c *Client) observe(ctx context.Context, cl call, elapsed time.Duration, err error) {
	if c.obs != nil {
		c.obs.ObserveRemoteCall(cl.op, cl.collection, elapsed, err)
	}
	attrs := cl.attrs(elapsed, err)
	if err == nil {
		logger.Debug(ctx, "cms", "request.done", attrs...)
		return
	}
	logger.Warn(ctx, "cms", "request.fail", attrs...)
}

func (cl call) attrs(elapsed time.Duration, err error) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("op", cl.op),
		slog.String("collection", cl.collection),
		slog.Duration("duration", logger.RoundMS(elapsed)),
	}
	if cl.query != "" {
		attrs = append(attrs, slog.String("query", cl.query))
	}
	if cl.status != 0 {
		attrs = append(attrs, slog.Int("http_code", cl.status))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", netutil.ClassifyError(err)),
		)
	}
	return attrs
}
