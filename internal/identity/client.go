// Package identity talks to the external LDAP bridge that checks credentials.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnavailable        = errors.New("identity service unavailable")
)

// Identity is what the bridge knows about an authenticated user.
type Identity struct {
	Username string
	Info     map[string]interface{}
}

// Client calls the identity bridge. Each call is one attempt bounded by
// the client timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stubMode   bool
}

// NewClient builds a client. In stub mode any non-empty password is
// accepted and no request is made.
func NewClient(baseURL string, timeout time.Duration, stubMode bool) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		stubMode:   stubMode,
	}
}

// BaseURL is the configured bridge address.
func (c *Client) BaseURL() string { return c.baseURL }

// Check verifies username and password.
func (c *Client) Check(ctx context.Context, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if c.stubMode {
		return &Identity{Username: username, Info: map[string]interface{}{}}, nil
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: bridge returned status %d", ErrInvalidCredentials, resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	id := &Identity{Username: username, Info: map[string]interface{}{}}
	if info, ok := payload["info"].(map[string]interface{}); ok {
		id.Info = info
	}
	return id, nil
}

var semverPattern = regexp.MustCompile(`v?\d+\.\d+\.\d+(?:[-+][0-9A-Za-z.-]+)?`)

// Ping probes the bridge root and extracts a version string when it
// advertises one.
func (c *Client) Ping(ctx context.Context) (string, error) {
	if c.stubMode {
		return "stub", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: bridge returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return extractVersion(raw), nil
}

func extractVersion(body []byte) string {
	var doc map[string]interface{}
	if json.Unmarshal(body, &doc) == nil {
		for _, key := range []string{"version", "app_version", "build", "tag"} {
			if v, ok := doc[key]; ok && v != nil {
				if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
					return s
				}
			}
		}
	}
	return semverPattern.FindString(string(body))
}
