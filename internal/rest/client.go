// Package rest is the JSON-over-HTTP transport to the Revolt API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// TokenType selects which header carries the session token.
type TokenType string

const (
	TokenUser TokenType = "user"
	TokenBot  TokenType = "bot"
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// RequestsPerSecond throttles outgoing requests. Zero disables the limiter.
	RequestsPerSecond float64
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	mu        sync.RWMutex
	token     string
	tokenType TokenType
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// SetToken sets the session token sent with every request. An empty token
// clears it.
func (c *Client) SetToken(token string, t TokenType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.tokenType = t
}

func (c *Client) Token() (string, TokenType) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.tokenType
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodDelete, path, body, out)
}

// Do sends a request to path (relative to the base URL, or absolute) with
// body encoded as JSON, and decodes the response into out when out is not
// nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, path, out)
}

// Upload posts data as a multipart form with a single "file" field and
// decodes the response into out.
func (c *Client) Upload(ctx context.Context, rawURL, filename, contentType string, data io.Reader, out any) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("rest: create form part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("rest: copy upload body: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("rest: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return fmt.Errorf("rest: build upload: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.send(req, rawURL, out)
}

func (c *Client) send(req *http.Request, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("rest: rate limiter: %w", err)
		}
	}

	token, tokenType := c.Token()
	if token != "" {
		if tokenType == TokenBot {
			req.Header.Set("X-Bot-Token", token)
		} else {
			req.Header.Set("X-Session-Token", token)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rest: read %s %s: %w", req.Method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Method: req.Method, Path: path}
		// best effort: the body is not always JSON
		_ = json.Unmarshal(body, apiErr)
		c.logger.Debug("request failed",
			"method", req.Method,
			"path", path,
			"status", resp.StatusCode,
			"type", apiErr.Type,
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("rest: decode %s %s: %w", req.Method, path, err)
	}
	return nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
