// Package webpage downloads product pages and reduces them to plain text.
package webpage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

const (
	// Some storefronts reject requests without a browser User-Agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxContentBytes caps the sanitized text handed to extraction.
	maxContentBytes = 50000

	// maxBodyBytes caps the raw HTML read off the wire.
	maxBodyBytes = 5 << 20
)

// skipTags are subtrees stripped before text extraction: chrome and
// boilerplate that never carries the product offer.
var skipTags = map[string]struct{}{
	"script": {},
	"style":  {},
	"nav":    {},
	"footer": {},
	"header": {},
	"svg":    {},
	"iframe": {},
}

// Fetcher downloads pages with a browser User-Agent and sanitizes the
// HTML down to whitespace-normalized text.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a page fetcher. Timeouts come from the request
// context, so no client-level timeout is set.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{},
	}
}

// Fetch downloads the page and returns its sanitized text content,
// truncated to maxContentBytes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body %s: %w", rawURL, err)
	}

	text, err := Sanitize(string(body))
	if err != nil {
		return "", fmt.Errorf("sanitize %s: %w", rawURL, err)
	}
	return text, nil
}

// Sanitize parses HTML, drops script/style/nav/footer/header/svg/iframe
// subtrees, collapses whitespace and truncates to maxContentBytes.
func Sanitize(rawHTML string) (string, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	collectText(root, &sb)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if len(text) > maxContentBytes {
		text = text[:maxContentBytes]
	}
	return text, nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skipTags[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
