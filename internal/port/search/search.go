// Package search defines the port for discovering candidate product pages.
package search

import "context"

// Discoverer finds candidate product page URLs for a query in a country.
type Discoverer interface {
	Discover(ctx context.Context, query, country string) ([]string, error)
}
