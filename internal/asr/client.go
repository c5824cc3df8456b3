package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// healthTimeout bounds the health probe so a hung backend cannot stall
// backend selection.
const healthTimeout = 5 * time.Second

// defaultChunkTimeout is the per-chunk recognition timeout when the config
// does not set one.
const defaultChunkTimeout = 300 * time.Second

// HealthInfo is the response of a backend's GET /health.
type HealthInfo struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	GPUAvailable bool   `json:"gpu_available"`
	MultiTenant  bool   `json:"multi_tenant"`
}

// Client is an HTTP client for one transcription backend.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests inject
// httptest-backed clients this way).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// WithChunkTimeout sets the per-chunk recognition timeout. Default: 300 s.
func WithChunkTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a backend client for the given base URL.
func NewClient(name, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: defaultChunkTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the backend's configured name.
func (c *Client) Name() string { return c.name }

// Health probes GET /health with a short timeout. A backend is admitted to
// the pool only when it responds with status "ok".
func (c *Client) Health(ctx context.Context) (HealthInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthInfo{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthInfo{}, fmt.Errorf("health probe %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthInfo{}, &ServerError{Status: resp.StatusCode}
	}
	var info HealthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return HealthInfo{}, fmt.Errorf("health probe %s: decode: %w", c.name, err)
	}
	return info, nil
}

// Recognize POSTs one WAV chunk to /recognize as multipart/form-data and
// returns the normalised segment. Hotwords are passed comma-joined;
// sentenceTimestamp asks the backend for per-character timing.
func (c *Client) Recognize(ctx context.Context, wav []byte, hotwords []string, sentenceTimestamp bool) (Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("audio", "chunk.wav")
	if err != nil {
		return Segment{}, fmt.Errorf("asr: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return Segment{}, fmt.Errorf("asr: write wav data: %w", err)
	}

	if len(hotwords) > 0 {
		if err := mw.WriteField("hotwords", strings.Join(hotwords, ",")); err != nil {
			return Segment{}, fmt.Errorf("asr: write hotwords field: %w", err)
		}
	}
	if sentenceTimestamp {
		if err := mw.WriteField("sentence_timestamp", "true"); err != nil {
			return Segment{}, fmt.Errorf("asr: write sentence_timestamp field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Segment{}, fmt.Errorf("asr: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recognize", &body)
	if err != nil {
		return Segment{}, fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Segment{}, fmt.Errorf("asr: %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Segment{}, &ServerError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Segment{}, fmt.Errorf("asr: read response body: %w", err)
	}
	seg, err := normalizeResult(data)
	if err != nil {
		return Segment{}, fmt.Errorf("asr: %s: %w", c.name, err)
	}
	return seg, nil
}
