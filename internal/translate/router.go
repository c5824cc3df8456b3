package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/saccohuo/subpipe/internal/config"
	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/resilience"
)

// Router splits text into chunks and routes each chunk through the provider
// chain. A chunk that exhausts the chain falls back to the untranslated
// original, so one provider outage never loses subtitle text.
type Router struct {
	chain   *resilience.Chain[Service]
	cfg     config.TranslationConfig
	metrics *observe.Metrics

	mu   sync.Mutex
	last time.Time
}

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter builds a [Router] over the given ordered provider entries.
func NewRouter(cfg config.TranslationConfig, entries []resilience.Entry[Service], opts ...RouterOption) (*Router, error) {
	if len(entries) == 0 {
		return nil, ErrNoProviders
	}
	r := &Router{
		chain: resilience.NewChain(resilience.BreakerConfig{}, entries...),
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// BuildServices constructs the provider entries from configuration, ordered
// by ascending priority. Disabled services and openai services referencing
// an unknown endpoint are skipped.
func BuildServices(cfg *config.Config) ([]resilience.Entry[Service], error) {
	endpoints := make(map[string]config.OpenAIEndpoint, len(cfg.Tokens.OpenAI))
	for _, ep := range cfg.Tokens.OpenAI {
		endpoints[ep.Name] = ep
	}

	services := make([]config.TranslationService, 0, len(cfg.Translation.Services))
	for _, svc := range cfg.Translation.Services {
		if svc.Enabled {
			services = append(services, svc)
		}
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Priority < services[j].Priority
	})

	var entries []resilience.Entry[Service]
	for _, svc := range services {
		switch svc.Name {
		case "deeplx":
			if cfg.DeepLX.APIURL == "" {
				slog.Warn("deeplx enabled but deeplx.api_url is empty, skipping")
				continue
			}
			entries = append(entries, resilience.Entry[Service]{
				Name:  "deeplx",
				Value: NewDeepLX(cfg.DeepLX.APIURL, WithDeepLXToken(cfg.Tokens.DeepL)),
			})
		case "deeplx_v2":
			if cfg.DeepLX.APIV2URL == "" {
				slog.Warn("deeplx_v2 enabled but deeplx.api_v2_url is empty, skipping")
				continue
			}
			entries = append(entries, resilience.Entry[Service]{
				Name:  "deeplx_v2",
				Value: NewDeepLXV2(cfg.DeepLX.APIV2URL, WithDeepLXToken(cfg.Tokens.DeepL)),
			})
		case "openai":
			ep, ok := endpoints[svc.ConfigName]
			if !ok {
				slog.Warn("openai service references unknown endpoint, skipping", "config_name", svc.ConfigName)
				continue
			}
			var opts []OpenAIOption
			if ep.APIEndpoint != "" {
				opts = append(opts, WithOpenAIBaseURL(ep.APIEndpoint))
			}
			if ep.Prompt != "" {
				opts = append(opts, WithOpenAIPrompt(ep.Prompt))
			}
			oa, err := NewOpenAI(ep.APIKey, ep.Model, opts...)
			if err != nil {
				return nil, fmt.Errorf("build openai service %q: %w", svc.ConfigName, err)
			}
			entries = append(entries, resilience.Entry[Service]{
				Name:  "openai:" + ep.Name,
				Value: oa,
			})
		default:
			slog.Warn("unknown translation service, skipping", "name", svc.Name)
		}
	}
	return entries, nil
}

// Providers returns the chain's provider names in order.
func (r *Router) Providers() []string { return r.chain.Names() }

// Translate renders text in targetLang. The text is chunked, each chunk is
// translated through the chain, and chunks that exhaust every provider are
// passed through untranslated. The returned fallback count reports how many
// chunks ended up untranslated.
func (r *Router) Translate(ctx context.Context, text, targetLang string) (string, int, error) {
	if strings.TrimSpace(text) == "" {
		return text, 0, nil
	}

	chunks := SplitChunks(text, r.cfg.ChunkSize)
	parts := make([]string, 0, len(chunks))
	fallbacks := 0
	for i, chunk := range chunks {
		if err := r.pace(ctx); err != nil {
			return "", fallbacks, err
		}
		out, err := resilience.Do(ctx, r.chain, func(ctx context.Context, name string, svc Service) (string, error) {
			return r.translateWithRetry(ctx, name, svc, chunk, targetLang)
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", fallbacks, ctx.Err()
			}
			slog.Warn("chunk translation exhausted all providers, keeping original text",
				"chunk", i+1, "chunks", len(chunks), "err", err)
			r.metrics.RecordStageError(ctx, "translate", "chain_exhausted")
			out = chunk
			fallbacks++
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, ""), fallbacks, nil
}

// translateWithRetry runs one provider with linear backoff. Fatal HTTP
// errors are marked permanent so the chain moves on without penalising the
// provider's breaker.
func (r *Router) translateWithRetry(ctx context.Context, name string, svc Service, chunk, targetLang string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		out, err := svc.Translate(ctx, chunk, targetLang)
		if err == nil {
			r.metrics.RecordTranslationRequest(ctx, name, "ok")
			return out, nil
		}
		r.metrics.RecordTranslationRequest(ctx, name, "error")
		lastErr = err

		if !transient(err) {
			if isFatalStatus(err) {
				return "", resilience.Permanent(err)
			}
			return "", err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		delay := time.Duration(attempt) * r.cfg.BaseDelay
		if rateLimited(err) {
			delay *= 2
		}
		slog.Debug("translation attempt failed, backing off",
			"provider", name, "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// isFatalStatus reports a 4xx other than 429.
func isFatalStatus(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status >= 400 && se.Status < 500 && se.Status != 429
}

// pace enforces the minimum interval between chunk requests.
func (r *Router) pace(ctx context.Context) error {
	r.mu.Lock()
	wait := r.cfg.RequestInterval - time.Since(r.last)
	r.last = time.Now().Add(max(wait, 0))
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
