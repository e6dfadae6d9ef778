// Package fetch defines the port for retrieving page content.
package fetch

import "context"

// Fetcher downloads a page and returns its sanitized text content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
