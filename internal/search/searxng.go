package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omaremad10/nivuus-agent/internal/httpkit"
)

// SearXNG implements the Provider interface for a self-hosted SearXNG
// instance with the JSON format enabled.
type SearXNG struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider. The baseURL should be the root
// URL of the SearXNG instance (e.g., "http://localhost:8080").
func NewSearXNG(baseURL string, maxResults int, timeout time.Duration, opts ...httpkit.ClientOption) *SearXNG {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		httpClient: httpkit.NewClient(append([]httpkit.ClientOption{httpkit.WithTimeout(timeout)}, opts...)...),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	count := opts.Count
	if count <= 0 || count > s.maxResults {
		count = s.maxResults
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("searxng: HTTP %d: %s", resp.StatusCode, body)
	}

	var sr searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}

	results := make([]Result, 0, min(count, len(sr.Results)))
	for _, r := range sr.Results {
		if len(results) == count {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}
