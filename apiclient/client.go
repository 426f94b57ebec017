// Package apiclient is the preconfigured HTTP client every store and query
// uses. It is bound to one base URL and always sends credentials (cookies).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

const (
	maxBodySize    = 1 << 20
	defaultTimeout = 15 * time.Second
)

// Client issues JSON requests against the API.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	logger    zerolog.Logger

	// Set by options, applied once every option has run.
	base       *http.Client
	jar        http.CookieJar
	timeout    time.Duration
	hasTimeout bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of hc as the underlying http.Client; hc itself
// is never modified. A nil hc is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.base = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.hasTimeout = true
	}
}

// WithJar sets the cookie jar, e.g. a PersistentJar.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[apiclient.New] baseURL is required")
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "clubnorte-cli",
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}

	hc := &http.Client{Timeout: defaultTimeout}
	if c.base != nil {
		cp := *c.base
		hc = &cp
	}
	if c.hasTimeout {
		hc.Timeout = c.timeout
	}
	if c.jar != nil {
		hc.Jar = c.jar
	}
	if hc.Jar == nil {
		jar, err := NewJar()
		if err != nil {
			return nil, errors.Wrapf(err, "[apiclient.New] cookie jar")
		}
		hc.Jar = jar
	}
	c.http = hc
	c.base, c.jar = nil, nil
	return c, nil
}

// NewJar returns an in-memory cookie jar with public suffix rules.
func NewJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// BaseURL returns the API root the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends one request. A nil in sends no body; a nil out discards the
// response body. Non-2xx answers return *StatusError; requests without
// a response return *NetworkError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed without response")
		return &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &NetworkError{Method: method, Path: path, Err: err}
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    messageFrom(raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(errors.ErrBadPayload, "%s %s: %v", method, path, err)
	}
	return nil
}

// messageFrom pulls the "message" field out of an error body.
func messageFrom(raw []byte) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Message
}
