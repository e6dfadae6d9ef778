// Package googlecse provides an HTTP client for the Google Programmable
// Search (Custom Search JSON) API, used to discover candidate product pages.
package googlecse

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

	"github.com/pricescout/pricescout/internal/config"
	"github.com/pricescout/pricescout/internal/resilience"
)

// Client talks to the Custom Search JSON API.
type Client struct {
	endpoint   string
	apiKey     string
	engineID   string
	maxResults int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a search client from config.
func NewClient(cfg config.Google) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		engineID:   cfg.EngineID,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// searchResponse is the subset of the API response we consume.
type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// Discover returns candidate product page URLs for the query, biased to
// shopping results by prefixing "buy " and geolocating with the country
// code.
func (c *Client) Discover(ctx context.Context, query, country string) ([]string, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", "buy "+query)
	params.Set("gl", strings.ToLower(country))
	params.Set("num", strconv.Itoa(c.maxResults))

	data, err := c.doRequest(ctx, c.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var result searchResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	links := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("search API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
