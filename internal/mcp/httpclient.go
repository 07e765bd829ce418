package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/storage"
)

// HTTPClient implements DataSource by calling the planfit REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// generation and storage happen on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey is
// sent on generate requests.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *HTTPClient) do(req *http.Request, path string) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("httpclient: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	status, body, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, status, body)
	}
	return body, nil
}

// Ingest posts a plan to the remote generator. Client errors come back
// wrapped in ingest.ErrInvalidPlan.
func (c *HTTPClient) Ingest(ctx context.Context, r io.Reader, athleteID, _ string) (*ingest.Result, error) {
	const path = "/api/v1/plans/generate"
	u := c.baseURL + path + "?" + url.Values{"athlete_id": {athleteID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	status, body, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ingest.ErrInvalidPlan, apiError(body))
	case status != http.StatusOK:
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, status, apiError(body))
	}

	var result ingest.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("httpclient: decode generate result: %w", err)
	}
	return &result, nil
}

func (c *HTTPClient) ListArtifacts(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error) {
	params := url.Values{}
	if athleteID != "" {
		params.Set("athlete_id", athleteID)
	}
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v1/artifacts", params)
	if err != nil {
		return nil, err
	}

	var artifacts []storage.WorkoutArtifact
	if err := json.Unmarshal(body, &artifacts); err != nil {
		return nil, fmt.Errorf("httpclient: decode artifacts: %w", err)
	}
	return artifacts, nil
}

func (c *HTTPClient) RecentRuns(ctx context.Context, limit int) ([]storage.GenerationRun, error) {
	body, err := c.get(ctx, "/api/v1/runs", url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}

	var runs []storage.GenerationRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, fmt.Errorf("httpclient: decode runs: %w", err)
	}
	return runs, nil
}

// apiError extracts the message of a {"error": "..."} body.
func apiError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
