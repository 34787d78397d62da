package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultSerperURL = "https://google.serper.dev/search"

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SerperClient queries the Serper Google search API.
type SerperClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewSerperClient(apiKey, url string) *SerperClient {
	if url == "" {
		url = defaultSerperURL
	}
	return &SerperClient{
		apiKey:     apiKey,
		url:        url,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Search returns the organic results for query.
func (c *SerperClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("searching %q: unexpected status %d: %s", query, resp.StatusCode, msg)
	}

	var out struct {
		Organic []SearchResult `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return out.Organic, nil
}
