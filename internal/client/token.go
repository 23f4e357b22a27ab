package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/domain"
)

var ErrTokenRequest = errors.New("token request failed")

// TokenSource mints a channel token for the caller's session.
type TokenSource interface {
	Token(ctx context.Context, key domain.ChannelKey, role domain.Role, name string) (string, error)
}

type TokenSourceFunc func(ctx context.Context, key domain.ChannelKey, role domain.Role, name string) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context, key domain.ChannelKey, role domain.Role, name string) (string, error) {
	return f(ctx, key, role, name)
}

// HTTPTokenSource asks the server's token endpoint. The client's cookie jar
// must be shared with the signalling dialer so both use the same session.
type HTTPTokenSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTokenSource(baseURL string, client *http.Client) *HTTPTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTokenSource{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

type tokenRequest struct {
	Name string      `json:"name,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

func (ts *HTTPTokenSource) Token(ctx context.Context, key domain.ChannelKey, role domain.Role, name string) (string, error) {
	body, err := json.Marshal(tokenRequest{Name: name, Role: role})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/api/workspaces/%s/channels/%s/token", ts.BaseURL,
		url.PathEscape(string(key.Workspace)), url.PathEscape(string(key.Name)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenRequest, err)
	}
	defer resp.Body.Close()

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: status %d: decode: %w", ErrTokenRequest, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrTokenRequest, resp.StatusCode, out.Error)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenRequest)
	}
	return out.Token, nil
}
