package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joblens/job-import-service/internal/models"
)

// Client fetches job feeds and flattens them into raw items.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a feed client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// feedDocument matches the single supported XML schema: an rss root with a
// channel holding item elements. A lone item decodes as a one-element slice.
type feedDocument struct {
	Channel struct {
		Items []models.RawItem `xml:"item"`
	} `xml:"channel"`
}

// FetchItems fetches and parses one feed. Errors here are per-feed; callers
// skip the feed and continue with the rest.
func (c *Client) FetchItems(ctx context.Context, url string) ([]models.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	var doc feedDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return doc.Channel.Items, nil
}

// ResolveURL picks the posting URL with fallback precedence
// url -> link -> guid -> empty string.
func ResolveURL(item models.RawItem) string {
	if item.URL != "" {
		return item.URL
	}
	if item.Link != "" {
		return item.Link
	}
	return item.GUID
}
