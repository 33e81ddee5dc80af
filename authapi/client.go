package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-habit-session/transport"
	"github.com/jrsteele09/go-habit-session/users"
)

// DefaultBaseURL is the development backend address
const DefaultBaseURL = "http://127.0.0.1:8888/api"

// Client is the habit backend authentication API client. It owns the default
// Authorization header shared by every request it sends.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.RWMutex
	authHeader string
}

// New creates a new API client. A nil httpClient gets a plain client with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the backend base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken installs "Bearer <token>" as the default Authorization header. An empty token clears it.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.authHeader = ""
		return
	}
	c.authHeader = "Bearer " + token
}

// ClearAuthToken removes the default Authorization header
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// AuthHeader returns the default Authorization header value, "" when absent
func (c *Client) AuthHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authHeader
}

// Login exchanges credentials for a user record and a token pair.
func (c *Client) Login(ctx context.Context, credentials LoginCredentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/login/", credentials, &resp); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	return &resp, nil
}

// Register creates an account and returns the same payload as Login.
func (c *Client) Register(ctx context.Context, userData RegisterUserData) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/register/", userData, &resp); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	return &resp, nil
}

// RefreshToken mints a new access token from refreshToken.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/token/refresh/", RefreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("client.RefreshToken: %w", err)
	}
	if resp.Access == "" {
		return nil, fmt.Errorf("client.RefreshToken: %w: missing access token", ErrMalformedResponse)
	}
	return &resp, nil
}

// UpdateUser patches the profile of userID and returns the updated record as sent by the backend.
func (c *Client) UpdateUser(ctx context.Context, userID int64, update users.Update) (users.Patch, error) {
	var patch users.Patch
	path := "/users/profile/" + strconv.FormatInt(userID, 10) + "/"
	if err := c.doRequest(ctx, http.MethodPatch, path, update, &patch); err != nil {
		return nil, fmt.Errorf("client.UpdateUser: %w", err)
	}
	return patch, nil
}

// ChangePassword changes the password of the authenticated user.
func (c *Client) ChangePassword(ctx context.Context, passwordData ChangePasswordData) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.post(ctx, "/users/password/change/", passwordData, &resp); err != nil {
		return nil, fmt.Errorf("client.ChangePassword: %w", err)
	}
	return &resp, nil
}

// ResetPassword asks the backend to email a reset link.
func (c *Client) ResetPassword(ctx context.Context, resetData PasswordResetData) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/password/reset/", resetData, &resp); err != nil {
		return nil, fmt.Errorf("client.ResetPassword: %w", err)
	}
	return &resp, nil
}

// SetNewPassword confirms a reset with the uid/token pair from the reset link.
func (c *Client) SetNewPassword(ctx context.Context, newPasswordData NewPasswordData) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/password/reset/confirm/", newPasswordData, &resp); err != nil {
		return nil, fmt.Errorf("client.SetNewPassword: %w", err)
	}
	return &resp, nil
}

// VerifyEmail confirms an email address.
func (c *Client) VerifyEmail(ctx context.Context, verificationData EmailVerificationData) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.post(transport.WithoutRetry(ctx), "/users/verify-email/", verificationData, &resp); err != nil {
		return nil, fmt.Errorf("client.VerifyEmail: %w", err)
	}
	return &resp, nil
}

// Logout revokes refreshToken server side. The request is authenticated with
// accessToken rather than the default header, which the caller may already have cleared.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) (*MessageResponse, error) {
	var resp MessageResponse
	auth := ""
	if accessToken != "" {
		auth = "Bearer " + accessToken
	}
	if err := c.send(transport.WithoutRetry(ctx), http.MethodPost, "/users/logout/", auth, RefreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("client.Logout: %w", err)
	}
	return &resp, nil
}

func (r *AuthResponse) validate() error {
	if r.Access == "" || r.Refresh == "" {
		return fmt.Errorf("%w: missing token pair", ErrMalformedResponse)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	return c.send(ctx, method, path, c.AuthHeader(), body, out)
}

func (c *Client) send(ctx context.Context, method, path, auth string, body any, out any) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: extractMessage(respBody), Body: respBody}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
		}
	}
	return nil
}
