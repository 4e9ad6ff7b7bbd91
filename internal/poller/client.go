package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIClient calls the notification API with a bearer token.
type APIClient struct {
	baseURL  string
	token    string
	endpoint string
	http     *http.Client
}

// NewAPIClient creates a client for baseURL. endpoint is this client's own
// push endpoint, empty when it has none.
func NewAPIClient(baseURL, token, endpoint string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		endpoint: endpoint,
		http:     httpClient,
	}
}

// Pending implements Client.
func (c *APIClient) Pending(ctx context.Context, since time.Time) (Page, error) {
	path := "/api/notifications/pending"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, path, &page); err != nil {
		return Page{}, err
	}
	return page, nil
}

// MarkRead implements Client.
func (c *APIClient) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil)
}

// HasActiveSubscription implements SubscriptionChecker: push is active when
// the server still holds this client's endpoint.
func (c *APIClient) HasActiveSubscription(ctx context.Context) (bool, error) {
	if c.endpoint == "" {
		return false, nil
	}
	var body struct {
		Subscriptions []struct {
			Endpoint string `json:"endpoint"`
		} `json:"subscriptions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/push/subscriptions", &body); err != nil {
		return false, err
	}
	for _, s := range body.Subscriptions {
		if s.Endpoint == c.endpoint {
			return true, nil
		}
	}
	return false, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
