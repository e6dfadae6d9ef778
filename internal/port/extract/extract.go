// Package extract defines the port for structured product extraction.
package extract

import "context"

// Product is a single product offer found in page content.
type Product struct {
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

// Extractor pulls product offers out of page text.
// An empty slice means the page contained no extractable product.
type Extractor interface {
	Extract(ctx context.Context, content, query string) ([]Product, error)
}
