package translate

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

// DeepLX talks to a DeepLX-protocol endpoint. The v1 and v2 variants share
// the request shape but differ in response framing.
type DeepLX struct {
	name    string
	url     string
	token   string
	http    *http.Client
	timeout time.Duration
}

// DeepLXOption configures a [DeepLX].
type DeepLXOption func(*DeepLX)

// WithDeepLXHTTPClient overrides the HTTP client.
func WithDeepLXHTTPClient(c *http.Client) DeepLXOption {
	return func(d *DeepLX) { d.http = c }
}

// WithDeepLXToken sets the bearer token sent with each request.
func WithDeepLXToken(token string) DeepLXOption {
	return func(d *DeepLX) { d.token = token }
}

// NewDeepLX creates a client for the classic DeepLX endpoint.
func NewDeepLX(url string, opts ...DeepLXOption) *DeepLX {
	return newDeepLX("deeplx", url, opts...)
}

// NewDeepLXV2 creates a client for the v2 endpoint. The wire request is the
// same; only the response envelope differs, which [parseResponse] absorbs.
func NewDeepLXV2(url string, opts ...DeepLXOption) *DeepLX {
	return newDeepLX("deeplx_v2", url, opts...)
}

func newDeepLX(name, url string, opts ...DeepLXOption) *DeepLX {
	d := &DeepLX{
		name:    name,
		url:     url,
		http:    http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Service = (*DeepLX)(nil)

type deeplxRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// deeplxResponse covers the envelopes seen in the wild: {code,data},
// bare {data}, and DeepL-official {translations:[{text}]}.
type deeplxResponse struct {
	Code         int    `json:"code"`
	Data         string `json:"data"`
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate implements [Service].
func (d *DeepLX) Translate(ctx context.Context, text, targetLang string) (string, error) {
	body, err := json.Marshal(deeplxRequest{
		Text:       text,
		SourceLang: "auto",
		TargetLang: deeplTarget(targetLang),
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", d.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Service: d.name, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s read response: %w", d.name, err)
	}
	return d.parseResponse(raw)
}

func (d *DeepLX) parseResponse(raw []byte) (string, error) {
	var parsed deeplxResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%s decode response: %w", d.name, err)
	}
	// A non-200 embedded code means the endpoint accepted the request but
	// the upstream translation failed.
	if parsed.Code != 0 && parsed.Code != 200 {
		return "", &StatusError{Service: d.name, Status: parsed.Code}
	}
	if len(parsed.Translations) > 0 {
		return parsed.Translations[0].Text, nil
	}
	if strings.TrimSpace(parsed.Data) != "" {
		return parsed.Data, nil
	}
	return "", fmt.Errorf("%s returned an empty translation", d.name)
}
