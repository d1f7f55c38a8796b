// Package auth holds the device's login session with the sync server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/conorfennell/vocabsync/internal/api"
	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// Client keeps the token and user in the local store under the auth-* keys.
type Client struct {
	store kv.Store
	api   *api.Client

	mu    sync.RWMutex
	token string
	user  *api.User
}

// New restores any saved session from store.
func New(store kv.Store, apiClient *api.Client) (*Client, error) {
	c := &Client{store: store, api: apiClient}

	token, ok, err := store.Get(domain.KeyAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if ok {
		c.token = token
	}

	raw, ok, err := store.Get(domain.KeyAuthUser)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if ok {
		user, err := kv.Decode[api.User](domain.KeyAuthUser, raw)
		if err != nil {
			slog.Warn("discarding malformed saved user", "error", err)
		} else {
			c.user = &user
		}
	}
	return c, nil
}

// Register creates an account and logs in as it.
func (c *Client) Register(ctx context.Context, username, email, password string) (*api.AuthResponse, error) {
	resp, err := c.api.Register(ctx, username, email, password)
	if err != nil {
		return nil, fmt.Errorf("register failed: %w", err)
	}
	if err := c.setAuth(resp.Token, resp.User); err != nil {
		return nil, err
	}
	return resp, nil
}

// Login starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (*api.AuthResponse, error) {
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if err := c.setAuth(resp.Token, resp.User); err != nil {
		return nil, err
	}
	return resp, nil
}

// Logout forgets the session locally.
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.user = nil
	return errors.Join(c.store.Delete(domain.KeyAuthToken), c.store.Delete(domain.KeyAuthUser))
}

// CurrentUser refreshes the user from the server. A rejected token ends the session.
func (c *Client) CurrentUser(ctx context.Context) (*api.User, error) {
	token := c.Token()
	if token == "" {
		return nil, api.ErrUnauthenticated
	}

	user, err := c.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrAuthentication) {
			if lerr := c.Logout(); lerr != nil {
				slog.Error("failed to clear rejected session", "error", lerr)
			}
		}
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
	if err := kv.SaveJSON(c.store, domain.KeyAuthUser, user); err != nil {
		return nil, err
	}
	return user, nil
}

// IsAuthenticated reports whether both a token and a user are held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && c.user != nil
}

// Token returns the bearer token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the logged-in user, or nil.
func (c *Client) User() *api.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) setAuth(token string, user api.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(domain.KeyAuthToken, token); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := kv.SaveJSON(c.store, domain.KeyAuthUser, user); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	c.token = token
	c.user = &user
	return nil
}
