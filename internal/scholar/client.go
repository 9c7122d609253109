// Package scholar searches Google Scholar through the SerpAPI JSON API.
package scholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when no SerpAPI key is configured.
var ErrMissingAPIKey = errors.New("serpapi api key not configured")

const defaultBaseURL = "https://serpapi.com/search.json"

// Result is a single organic Google Scholar hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Summary string `json:"summary"`
}

// Client queries the google_scholar engine. Korean locale parameters match
// the product's audience.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Scholar client.
func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the SerpAPI endpoint, used in tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// Search runs a Google Scholar query and returns the organic results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("engine", "google_scholar")
	params.Set("q", query)
	params.Set("hl", "ko")
	params.Set("gl", "kr")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scholar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scholar request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		OrganicResults []struct {
			Title           string `json:"title"`
			Link            string `json:"link"`
			Snippet         string `json:"snippet"`
			PublicationInfo struct {
				Summary string `json:"summary"`
			} `json:"publication_info"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode scholar response: %w", err)
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		results = append(results, Result{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
			Summary: r.PublicationInfo.Summary,
		})
	}

	return results, nil
}

// SearchFormatted returns the results as the plain-text block the agent tool
// feeds back to the model.
func (c *Client) SearchFormatted(ctx context.Context, query string) (string, error) {
	results, err := c.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found on Google Scholar.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Title)
		if r.Summary != "" {
			fmt.Fprintf(&b, "    %s\n", r.Summary)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", r.Snippet)
		}
		if r.Link != "" {
			fmt.Fprintf(&b, "    %s\n", r.Link)
		}
		if i < len(results)-1 {
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}
