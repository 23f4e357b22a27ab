package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// API wraps the server's read and admin endpoints.
type API struct {
	BaseURL string
	Client  *http.Client
}

func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

func (a *API) ListChannels(ctx context.Context, ws domain.WorkspaceID) ([]core.ChannelInfo, error) {
	var out []core.ChannelInfo
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/workspaces/%s/channels", url.PathEscape(string(ws))), &out)
	return out, err
}

func (a *API) Meetings(ctx context.Context, ws domain.WorkspaceID, limit int) ([]domain.Meeting, error) {
	path := fmt.Sprintf("/api/workspaces/%s/meetings", url.PathEscape(string(ws)))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.Meeting
	err := a.do(ctx, http.MethodGet, path, &out)
	return out, err
}

// Evict removes every member from a channel and reports how many were removed.
func (a *API) Evict(ctx context.Context, key domain.ChannelKey) (int, error) {
	var out struct {
		Evicted int `json:"evicted"`
	}
	path := fmt.Sprintf("/api/workspaces/%s/channels/%s", url.PathEscape(string(key.Workspace)), url.PathEscape(string(key.Name)))
	err := a.do(ctx, http.MethodDelete, path, &out)
	return out.Evicted, err
}

func (a *API) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
