// Package backend is a client for the remote backend-as-a-service: table
// queries and remote procedures over a PostgREST-style HTTP API.
package backend

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

	"github.com/golang-jwt/jwt/v5"

	"github.com/dinarwallet/wallet/internal/buildinfo"
)

const (
	restPath = "/rest/v1/"
	rpcPath  = "/rest/v1/rpc/"

	mediaJSON   = "application/json"
	mediaObject = "application/vnd.pgrst.object+json"
)

// Client performs table queries and RPC calls against one backend.
type Client struct {
	baseURL *url.URL
	apiKey  string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAccessToken sets the bearer token sent with every request.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for the backend at rawURL authenticated with apiKey.
func New(rawURL, apiKey string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("backend URL is required")
	}
	if apiKey == "" {
		return nil, errors.New("backend API key is required")
	}
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL %q must be http or https", rawURL)
	}

	c := &Client{
		baseURL: u,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessToken returns the bearer token the client sends, if any.
func (c *Client) AccessToken() string {
	return c.token
}

// RPC calls the remote procedure fn with params and decodes the result into
// out (which may be nil).
func (c *Client) RPC(ctx context.Context, fn string, params any, out any) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding rpc %s params: %w", fn, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, rpcPath+url.PathEscape(fn), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mediaJSON)

	if _, err := c.do(req, out); err != nil {
		return fmt.Errorf("calling rpc %s: %w", fn, err)
	}
	return nil
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, params: url.Values{}}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", mediaJSON)
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	bearer := c.token
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return req, nil
}

// do sends req and decodes a successful JSON body into out. Non-2xx
// responses are returned as *Error.
func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.log.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, decodeError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

// SubjectFromToken returns the "sub" claim of a JWT access token. The
// signature is not checked here; the backend verifies every request.
func SubjectFromToken(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parsing access token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("access token has no subject")
	}
	return claims.Subject, nil
}
