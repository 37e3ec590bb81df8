// ABOUTME: HTTP client for the remote identity and guest-token endpoints
// ABOUTME: Bounded per-call timeouts, typed errors, fastjson payload extraction

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/valyala/fastjson"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.app.preset.io/"

// DefaultTimeout bounds each outbound call.
const DefaultTimeout = 7 * time.Second

// maxErrorBody caps how much of an upstream error body is kept for logs.
const maxErrorBody = 64 << 10

// maxResponseBody caps a successful response. Token payloads are a few KB.
const maxResponseBody = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the remote API. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	parsers    fastjson.ParserPool
}

// New creates a Client, applying defaults for unset fields.
func New(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https scheme: %q", raw)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// call describes one outbound POST.
type call struct {
	op       string
	kind     guesttoken.Kind
	message  string
	endpoint string
	bearer   string
	body     any
}

// post sends c.body as JSON and returns the raw 2xx response body.
func (c *Client) post(ctx context.Context, in call) ([]byte, error) {
	payload, err := json.Marshal(in.body)
	if err != nil {
		return nil, &guesttoken.Error{Kind: in.kind, Op: in.op, Message: in.message, Err: fmt.Errorf("encoding request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &guesttoken.Error{Kind: in.kind, Op: in.op, Message: in.message, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if in.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+in.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &guesttoken.Error{
			Kind:      in.kind,
			Op:        in.op,
			Message:   in.message,
			Retryable: errors.Is(err, context.DeadlineExceeded),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &guesttoken.Error{
			Kind:       in.kind,
			Op:         in.op,
			Message:    in.message,
			Detail:     string(detail),
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusGatewayTimeout,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &guesttoken.Error{
			Kind:      in.kind,
			Op:        in.op,
			Message:   in.message,
			Retryable: errors.Is(err, context.DeadlineExceeded),
			Err:       fmt.Errorf("reading response: %w", err),
		}
	}
	return data, nil
}

// extractString returns the first non-empty string found at any of paths.
func (c *Client) extractString(data []byte, paths ...[]string) (string, error) {
	p := c.parsers.Get()
	defer c.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", guesttoken.ErrMalformedResponse, err)
	}
	for _, path := range paths {
		field := v.Get(path...)
		if field == nil || field.Type() != fastjson.TypeString {
			continue
		}
		if s := field.GetStringBytes(); len(s) > 0 {
			return string(s), nil
		}
	}
	return "", guesttoken.ErrMalformedResponse
}

// endpoint joins escaped path segments onto the base URL and appends a
// trailing slash. Dot segments are rejected since joining would resolve them.
func (c *Client) endpoint(segments ...string) (string, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		if s == "." || s == ".." {
			return "", fmt.Errorf("invalid path segment %q", s)
		}
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String() + "/", nil
}
