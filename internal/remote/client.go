// --- File: internal/remote/client.go ---
// Package remote is the HTTP client for a NotifyLight server. It implements
// the inapp.MessageSource contract plus device registration and health.
package remote

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
	"strings"
	"time"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// ErrEmptyUserID is returned before any request is made for an empty user id.
var ErrEmptyUserID = errors.New("user id is required")

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// HTTPDoer is the subset of *http.Client the client uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient HTTPDoer
	logger     *slog.Logger
}

// Config holds what the client needs to reach a server.
type Config struct {
	ServerURL string
	APIKey    string
	Timeout   time.Duration
}

// NewClient builds a client. If httpClient is nil a *http.Client with the
// configured timeout is used.
func NewClient(cfg Config, httpClient HTTPDoer, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.ServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", cfg.ServerURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    u,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger.With("component", "RemoteClient"),
	}, nil
}

// response is the raw outcome of a request that produced an HTTP response.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// serverMessage extracts the "message" field of an error envelope, if any.
func (r response) serverMessage() string {
	var env wire.StatusResponse
	if err := json.Unmarshal(r.body, &env); err != nil {
		return ""
	}
	return env.Message
}

// do performs the request against the path built from segments, each of
// which is escaped. A non-nil error always means no HTTP response was
// obtained (transport failure or request construction).
func (c *Client) do(ctx context.Context, method string, segments []string, query url.Values, body any) (response, error) {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u := c.baseURL.JoinPath(escaped...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(wire.APIKeyHeader, c.apiKey)
	}

	c.logger.Debug("Sending request", "method", method, "path", u.Path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return response{status: resp.StatusCode, body: b}, nil
}
