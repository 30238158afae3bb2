package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cinescope/review-service/pkg/httpclient"
)

// Client talks to the catalog service to resolve target display titles.
// Lookups guard the catalog with a circuit breaker; callers treat failures
// as "no title", never as a reason to reject a review.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a catalog client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	base := httpclient.New(httpclient.DefaultConfig())
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("catalog-service"), logger)

	return &Client{
		http:    cb,
		baseURL: baseURL,
		logger:  logger,
	}
}

// titleResponse mirrors the catalog service's title payload.
type titleResponse struct {
	Data struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"data"`
}

// GetTitle resolves the display title for a target. An unknown target id is
// not an error here; it returns an empty title.
func (c *Client) GetTitle(ctx context.Context, targetID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/titles/%s", c.baseURL, url.PathEscape(targetID))

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("catalog get title: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "catalog-service")
	}

	var payload titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode catalog title: %w", err)
	}
	return payload.Data.Title, nil
}
