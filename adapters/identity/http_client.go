package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/core"
	"github.com/datamesh-labs/walletgate/ports"
)

const defaultTimeout = 30 * time.Second

// Client talks to the backend identity service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an identity client for the given base URL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With().Str("component", "identity_client").Logger(),
	}
}

var _ ports.IdentityService = (*Client)(nil)

type loginRequest struct {
	Address string `json:"address"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profilePayload struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresAt    string          `json:"expiresAt"`
	Profile      *profilePayload `json:"profile"`
	IsNewUser    bool            `json:"isNewUser"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges a wallet address for a session credential bundle.
func (c *Client) Login(ctx context.Context, address string) (*ports.LoginResult, error) {
	var resp loginResponse
	if err := c.post(ctx, "/auth/login", loginRequest{Address: address}, &resp); err != nil {
		return nil, err
	}

	expiresAt, err := c.resolveExpiry(resp.ExpiresAt, resp.Token)
	if err != nil {
		return nil, fmt.Errorf("login response: %w", err)
	}

	result := &ports.LoginResult{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		IsNewUser:    resp.IsNewUser,
	}
	if resp.Profile != nil {
		result.Profile = &core.UserProfile{
			Address:   resp.Profile.Address,
			Name:      resp.Profile.Name,
			Email:     resp.Profile.Email,
			Role:      resp.Profile.Role,
			CreatedAt: resp.Profile.CreatedAt,
		}
	}
	return result, nil
}

// Refresh exchanges a refresh token for a rotated bundle.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*ports.RefreshResult, error) {
	var resp refreshResponse
	if err := c.post(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}

	expiresAt, err := c.resolveExpiry(resp.ExpiresAt, resp.Token)
	if err != nil {
		return nil, fmt.Errorf("refresh response: %w", err)
	}

	return &ports.RefreshResult{
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout notifies the backend. Best effort: callers already treat failure as
// non-fatal.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %s: %w", err, core.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("logout: backend returned %d: %w", resp.StatusCode, core.ErrBackendUnavailable)
	}
	return nil
}

// resolveExpiry parses the backend-supplied expiry, falling back to the exp
// claim of the issued token when the field is omitted. The invariant that a
// token always carries an expiry holds either way.
func (c *Client) resolveExpiry(expiresAt, token string) (time.Time, error) {
	if expiresAt != "" {
		t, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid expiresAt %q: %w", expiresAt, err)
		}
		return t, nil
	}
	t, err := tokenExpiry(token)
	if err != nil {
		return time.Time{}, fmt.Errorf("no expiresAt and %w", err)
	}
	c.logger.Debug().Time("expires_at", t).Msg("expiry taken from token exp claim")
	return t, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", path, core.ErrTimeout)
		}
		return fmt.Errorf("%s request: %s: %w", path, err, core.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: backend returned %d: %w", path, resp.StatusCode, core.ErrBackendUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%s: %s", path, errResp.Error)
		}
		return fmt.Errorf("%s: backend returned %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", path, err)
	}
	return nil
}
