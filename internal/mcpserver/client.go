package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Trustline API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Tenant API key
}

// TrustlineClient is a pure HTTP client for the Trustline API.
type TrustlineClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewTrustlineClient creates a new client for the Trustline API.
func NewTrustlineClient(cfg Config) *TrustlineClient {
	return &TrustlineClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs one API call and hands back the raw response body.
// Error responses are unwrapped into the API's own message where the body
// carries one, so the MCP tool surface can show it verbatim.
func (c *TrustlineClient) doRequest(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, raw)
	}
	return json.RawMessage(raw), nil
}

// apiError prefers the structured message the API returns in its error
// envelope, falling back to the raw body.
func apiError(status int, raw []byte) error {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		return fmt.Errorf("API error (%d): %s", status, envelope.Message)
	}
	return fmt.Errorf("API error (%d): %s", status, string(raw))
}

// ReportEvent records a trust event for an agent.
func (c *TrustlineClient) ReportEvent(ctx context.Context, event map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/events", nil, event)
}

// GetScore returns the current trust score for an agent.
func (c *TrustlineClient) GetScore(ctx context.Context, agentID string, trace bool) (json.RawMessage, error) {
	var q url.Values
	if trace {
		q = url.Values{"trace": {"true"}}
	}
	path := "/v1/agents/" + url.PathEscape(agentID) + "/score"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// Preflight asks for a decision on a proposed action.
func (c *TrustlineClient) Preflight(ctx context.Context, agentID string, action map[string]any) (json.RawMessage, error) {
	body := map[string]any{
		"agentId": agentID,
		"action":  action,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/preflight", nil, body)
}

// ListDecisions returns recent preflight decisions for an agent.
func (c *TrustlineClient) ListDecisions(ctx context.Context, agentID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/agents/" + url.PathEscape(agentID) + "/decisions"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetPolicy returns the tenant's scoring policy.
func (c *TrustlineClient) GetPolicy(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/policy", nil, nil)
}
