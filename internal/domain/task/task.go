// Package task defines the price-search task entity and its lifecycle.
package task

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pricescout/pricescout/internal/domain"
)

// Status is the lifecycle state of a task.
type Status string

// Task lifecycle states. A task starts pending and transitions exactly
// once to completed or failed.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Listing is a single extracted product offer.
type Listing struct {
	Link        string  `json:"link"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	ProductName string  `json:"productName"`
}

// Valid reports whether the listing survives validation: a finite,
// non-negative price, a currency code, and a product name.
func (l Listing) Valid() bool {
	if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price < 0 {
		return false
	}
	if strings.TrimSpace(l.Currency) == "" {
		return false
	}
	return strings.TrimSpace(l.ProductName) != ""
}

// Task is a price-search request tracked through its lifecycle.
type Task struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Country   string    `json:"country"`
	Status    Status    `json:"status"`
	Listings  []Listing `json:"listings,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New validates the inputs and returns a pending task with a fresh ID.
// The country code is normalized to upper case.
func New(query, country string) (Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Task{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}

	country, err := NormalizeCountry(country)
	if err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	return Task{
		ID:        uuid.NewString(),
		Query:     query,
		Country:   country,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeCountry validates a 2-letter country code and returns it
// upper-cased. Only ASCII letters qualify; ISO 3166-1 alpha-2 codes
// contain nothing else, and the code is forwarded to external APIs.
func NormalizeCountry(country string) (string, error) {
	country = strings.TrimSpace(country)
	if len(country) != 2 || !isASCIILetter(country[0]) || !isASCIILetter(country[1]) {
		return "", fmt.Errorf("%w: country must be a 2-letter code", domain.ErrValidation)
	}
	return strings.ToUpper(country), nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Terminal reports whether the task has reached a final state.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Complete marks the task completed with the given listings.
// A nil slice is normalized to an empty one so the API renders [].
func (t *Task) Complete(listings []Listing) {
	if listings == nil {
		listings = []Listing{}
	}
	t.Status = StatusCompleted
	t.Listings = listings
	t.Error = ""
	t.UpdatedAt = time.Now().UTC()
}

// Fail marks the task failed with a human-readable reason.
func (t *Task) Fail(reason string) {
	t.Status = StatusFailed
	t.Listings = nil
	t.Error = reason
	t.UpdatedAt = time.Now().UTC()
}
