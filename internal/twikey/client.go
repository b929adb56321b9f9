// Package twikey is a client for the Twikey creditor API: mandates, invoices, transactions,
// payment links and refunds, plus the incremental feeds reporting their changes.
//
// A Client is safe for concurrent use. Feed calls are synchronous and issue one request at a
// time; see FeedDocuments for the delivery guarantees.
package twikey

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL   = "https://api.twikey.com"
	defaultUserAgent = "twikey-lambda/v0.1.0"

	// DefaultRequestTimeout bounds every single HTTP call.
	DefaultRequestTimeout = 15 * time.Second

	headerAPIErrorCode = "ApiErrorCode"
	headerAPIError     = "ApiError"
	headerMerchantID   = "X-MERCHANT-ID"
	headerResumeAfter  = "X-RESUME-AFTER"
	headerLast         = "X-LAST"
	headerState        = "X-STATE"
	headerRetryAfter   = "Retry-After"
)

// Client talks to the Twikey API on behalf of one creditor.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	privateKey     string
	userAgent      string
	requestTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	// sessionMu is held for the whole login exchange so concurrent callers share one login.
	sessionMu  sync.Mutex
	token      string
	obtainedAt time.Time
	merchantID string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent sent on every call.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPrivateKey enables the one-time code second factor. The key is hex encoded.
func WithPrivateKey(key string) Option {
	return func(c *Client) {
		c.privateKey = strings.TrimSpace(key)
	}
}

// WithLogger lets callers supply a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for session expiry and one-time codes.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestTimeout overrides the per-call timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// New builds a client for the given API key and base URL (for example https://api.beta.twikey.com).
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:     &http.Client{},
		baseURL:        strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:         strings.TrimSpace(apiKey),
		userAgent:      defaultUserAgent,
		requestTimeout: DefaultRequestTimeout,
		logger:         slog.Default(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientFromEnv constructs a client using TWIKEY_* environment variables.
func NewClientFromEnv(httpClient *http.Client, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("TWIKEY_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	opts = append([]Option{
		WithHTTPClient(httpClient),
		WithPrivateKey(os.Getenv("TWIKEY_PRIVATE_KEY")),
		WithUserAgent(os.Getenv("TWIKEY_USER_AGENT")),
	}, opts...)

	return New(os.Getenv("TWIKEY_API_KEY"), baseURL, opts...)
}

func (c *Client) validate() error {
	if c.baseURL == "" {
		return &ConfigError{Field: "base URL"}
	}
	if c.apiKey == "" {
		return &ConfigError{Field: "API key"}
	}
	if c.privateKey != "" {
		if _, err := hex.DecodeString(c.privateKey); err != nil {
			return &ConfigError{Field: "private key", Reason: "must be hex encoded"}
		}
	}
	return nil
}

// request describes one call against the /creditor API.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	form   url.Values
	json   any
	header http.Header
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
	url        string
}

// call performs an authenticated request, refreshing the session first when required, and
// classifies failures into *APIError and *TransportError.
func (c *Client) call(ctx context.Context, req request) (*response, error) {
	token, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.header.Get(headerAPIErrorCode) != "" || resp.statusCode >= 400 {
		return nil, newAPIError(req.op, resp.url, resp.statusCode, resp.body)
	}
	return resp, nil
}

// send executes the HTTP exchange and reads the whole body. Only transport failures are errors.
func (c *Client) send(ctx context.Context, req request, token string) (*response, error) {
	target := c.baseURL + "/creditor" + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.json != nil:
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(req.json); err != nil {
			return nil, &TransportError{Context: req.op, Err: fmt.Errorf("encode body: %w", err)}
		}
		body = buf
		contentType = "application/json"
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, &TransportError{Context: req.op, Err: err}
	}

	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Context: req.op, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Context: req.op, Err: fmt.Errorf("read body: %w", err)}
	}

	return &response{
		statusCode: httpResp.StatusCode,
		header:     httpResp.Header,
		body:       data,
		url:        target,
	}, nil
}

// decode unmarshals a successful response body, reporting malformed payloads as transport errors.
func (r *response) decode(op string, v any) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return &TransportError{Context: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
