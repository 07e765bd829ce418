package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Event is one entry of an intervals.icu bulk event upsert.
type Event struct {
	Category           string `json:"category"`
	StartDateLocal     string `json:"start_date_local"`
	Filename           string `json:"filename"`
	FileContentsBase64 string `json:"file_contents_base64"`
	ExternalID         string `json:"external_id"`
	Description        string `json:"description,omitempty"`
}

// Client sends workout events to intervals.icu over HTTP.
type Client struct {
	baseURL    string
	athleteID  string
	apiKey     string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

// NewClient creates a client for one athlete's calendar.
func NewClient(baseURL, athleteID, apiKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		athleteID: athleteID,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
	}
}

// AthleteID returns the athlete the client uploads for.
func (c *Client) AthleteID() string { return c.athleteID }

func (c *Client) bulkURL() string {
	return fmt.Sprintf("%s/api/v1/athlete/%s/events/bulk?upsert=true",
		c.baseURL, url.PathEscape(c.athleteID))
}

// UploadEvents upserts events keyed on external_id.
// Retries up to 3 times with exponential backoff on failure; 4xx responses
// other than 429 are not retried.
func (c *Client) UploadEvents(ctx context.Context, events []Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshaling events: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bulkURL(), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("API_KEY", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("bulk upload failed (status %d): %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return lastErr
		}
	}

	return fmt.Errorf("after 3 attempts: %w", lastErr)
}
