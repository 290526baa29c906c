/**
 * @description
 * This package provides a client for the user-directory service, which owns
 * user profiles and per-chain wallet addresses. The escrow-service never
 * stores wallet configuration itself; it resolves it here at the moment a
 * claim or refund needs an address.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal packages are not imported; the client is self-contained so it
 *   can be stubbed behind the Directory interface in tests.
 */
package userdirectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUserNotFound is returned when the directory has no record for the lookup key.
var ErrUserNotFound = errors.New("user not found in directory")

// Profile is the subset of a directory record the escrow-service needs.
type Profile struct {
	UserID  string            `json:"user_id"`
	Email   string            `json:"email"` // verified email
	Name    string            `json:"name,omitempty"`
	Wallets map[string]string `json:"wallets"` // chain -> wallet address
}

// WalletFor returns the user's wallet address on a chain, if configured.
func (p *Profile) WalletFor(chain string) (string, bool) {
	addr, ok := p.Wallets[chain]
	return addr, ok && addr != ""
}

// Directory resolves user profiles. Implemented by Client; stubbed in tests.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*Profile, error)
	GetUserByEmail(ctx context.Context, email string) (*Profile, error)
}

// Client is an HTTP client for the user-directory service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new directory client. Lookups are bounded by the given
// timeout so a slow directory cannot stall a transfer operation indefinitely.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetUser resolves a profile by user id.
func (c *Client) GetUser(ctx context.Context, userID string) (*Profile, error) {
	return c.get(ctx, fmt.Sprintf("%s/internal/users/%s", c.BaseURL, url.PathEscape(userID)))
}

// GetUserByEmail resolves a profile by verified email address.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*Profile, error) {
	return c.get(ctx, fmt.Sprintf("%s/internal/users/by-email?email=%s", c.BaseURL, url.QueryEscape(email)))
}

func (c *Client) get(ctx context.Context, endpoint string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Internal-API-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var profile Profile
		if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
			return nil, fmt.Errorf("decode directory response: %w", err)
		}
		return &profile, nil
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, fmt.Errorf("user directory returned status %d", resp.StatusCode)
	}
}
