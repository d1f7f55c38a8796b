// Package api is the HTTP client of the sync server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// User is the account as returned by the server.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AuthResponse is the body of a successful register or login.
type AuthResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type messageResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type downloadResponse struct {
	Data  map[string]json.RawMessage `json:"data"`
	Count int                        `json:"count"`
}

// Client talks to one sync server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the server at baseURL, e.g. http://localhost:3001.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the account token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Upload sends a full snapshot and returns how many keys the server stored.
func (c *Client) Upload(ctx context.Context, token string, data map[string]json.RawMessage) (int, error) {
	var out messageResponse
	body := map[string]any{"data": data}
	if err := c.do(ctx, http.MethodPost, "/api/sync/upload", token, body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Download fetches every key the server holds for the user.
func (c *Client) Download(ctx context.Context, token string) (map[string]json.RawMessage, error) {
	var out downloadResponse
	if err := c.do(ctx, http.MethodGet, "/api/sync/download", token, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = map[string]json.RawMessage{}
	}
	return out.Data, nil
}

// PutItem upserts a single key.
func (c *Client) PutItem(ctx context.Context, token, key string, value json.RawMessage) error {
	body := map[string]any{"key": key, "value": value}
	return c.do(ctx, http.MethodPost, "/api/sync/item", token, body, nil)
}

// DeleteItem removes a single key.
func (c *Client) DeleteItem(ctx context.Context, token, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/item/"+url.PathEscape(key), token, nil, nil)
}

// DeleteAll removes every key of the user.
func (c *Client) DeleteAll(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/all", token, nil, nil)
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cannot reach the server, make sure the backend is running at %s: %w", ErrNetwork, c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.Unmarshal(raw, &e)
		return &Error{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
