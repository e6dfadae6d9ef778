// Package gemini provides an HTTP client for the Gemini generateContent
// API, used to extract structured product offers from page text.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pricescout/pricescout/internal/config"
	"github.com/pricescout/pricescout/internal/port/extract"
	"github.com/pricescout/pricescout/internal/resilience"
)

const systemInstruction = `You are a data extraction service. You receive the text content of a product page and the product the user searched for. Respond with a single JSON value and nothing else.
If the page offers the searched product for sale, respond with an object {"productName": string, "price": number, "currency": string} where currency is the ISO-4217 code. If the page lists several matching offers, respond with an array of such objects.
If the page does not offer the searched product, respond with the literal null.`

// Extractor calls Gemini to pull product offers out of page text.
type Extractor struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewExtractor creates an extraction client from config.
func NewExtractor(cfg config.Gemini) *Extractor {
	return &Extractor{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (e *Extractor) SetBreaker(b *resilience.Breaker) {
	e.breaker = b
}

type generateRequest struct {
	SystemInstruction content        `json:"system_instruction"`
	Contents          []content      `json:"contents"`
	GenerationConfig  generateConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateConfig struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Extract sends the page content to Gemini and parses the reply into
// zero or more product offers. A null reply means no product.
func (e *Extractor) Extract(ctx context.Context, pageContent, query string) ([]extract.Product, error) {
	prompt := fmt.Sprintf("Searched product: %s\n\nPage content:\n%s", query, pageContent)

	body, err := json.Marshal(generateRequest{
		SystemInstruction: content{Parts: []part{{Text: systemInstruction}}},
		Contents:          []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig:  generateConfig{Temperature: 0.1},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", e.endpoint, e.model)
	data, err := e.doRequest(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty model response")
	}

	return ParseReply(resp.Candidates[0].Content.Parts[0].Text)
}

// ParseReply turns the model's raw reply into product offers. Accepts a
// bare JSON object, a JSON array, or the literal null (no product), with
// or without markdown code fences.
func ParseReply(reply string) ([]extract.Product, error) {
	reply = stripFences(reply)
	if reply == "" || reply == "null" {
		return nil, nil
	}

	if strings.HasPrefix(reply, "[") {
		var products []extract.Product
		if err := json.Unmarshal([]byte(reply), &products); err != nil {
			return nil, fmt.Errorf("parse reply array: %w", err)
		}
		return products, nil
	}

	var product extract.Product
	if err := json.Unmarshal([]byte(reply), &product); err != nil {
		return nil, fmt.Errorf("parse reply object: %w", err)
	}
	return []extract.Product{product}, nil
}

// stripFences removes surrounding markdown code fences from a reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (e *Extractor) doRequest(ctx context.Context, url string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("gemini API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if e.breaker != nil {
		if err := e.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
