// Package readwise ships finished transcripts to the Readwise Reader API.
// Delivery is best effort: failures are logged and reported to the caller
// but never abort the pipeline.
package readwise

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://readwise.io/api/v3/save/"

// Document is one article pushed to Readwise Reader.
type Document struct {
	// URL is the canonical source URL; Readwise uses it for deduplication.
	URL string `json:"url"`

	// HTML is the rendered article body.
	HTML string `json:"html,omitempty"`

	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Location string   `json:"location,omitempty"`

	// ShouldCleanHTML asks Reader to run its article cleaner on HTML.
	ShouldCleanHTML bool `json:"should_clean_html,omitempty"`
}

// Client posts documents to the Reader save endpoint.
type Client struct {
	token  string
	apiURL string
	http   *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithAPIURL overrides the save endpoint, mainly for tests.
func WithAPIURL(url string) Option {
	return func(c *Client) { c.apiURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Readwise client. An empty token returns nil, which callers
// treat as "egress disabled".
func New(token string, opts ...Option) *Client {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	c := &Client{
		token:  token,
		apiURL: defaultAPIURL,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save posts doc to Reader. A nil client is a no-op.
func (c *Client) Save(ctx context.Context, doc Document) error {
	if c == nil {
		return nil
	}
	if doc.URL == "" {
		return fmt.Errorf("readwise: document has no url")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("readwise: marshal document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("readwise: save request: %w", err)
	}
	defer resp.Body.Close()

	// 201 on create, 200 when Reader deduplicates by URL.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("readwise: save returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
