package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/belief"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/trust"
	"github.com/fyrsmithlabs/inferd/internal/variable"
)

// SummaryView is the part of a belief summary the dashboard renders.
type SummaryView struct {
	ID                 string            `json:"id"`
	Status             belief.Status     `json:"status"`
	Outcome            belief.Outcome    `json:"outcome,omitempty"`
	SuccessProbability float64           `json:"success_probability"`
	CredibleInterval   variable.Interval `json:"credible_interval"`
	EvidenceCount      int               `json:"evidence_count"`
}

// AgentView is one poll of an agent's state.
type AgentView struct {
	Summaries   []SummaryView           `json:"summaries"`
	Queue       []exploration.Candidate `json:"queue"`
	GeneratedAt time.Time               `json:"generated_at"`
	Trust       trust.State             `json:"-"`
}

// Fetcher loads the current view of an agent.
type Fetcher interface {
	Fetch(ctx context.Context, agentID string) (*AgentView, error)
}

// Client reads agent snapshots and trust state from the inferd HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, agentID string) (*AgentView, error) {
	base := "/api/v1/agents/" + url.PathEscape(agentID)

	var view AgentView
	if err := c.get(ctx, base+"/snapshot", &view); err != nil {
		return nil, err
	}
	if err := c.get(ctx, base+"/trust", &view.Trust); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
