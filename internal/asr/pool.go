package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/saccohuo/subpipe/internal/audio"
	"github.com/saccohuo/subpipe/internal/observe"
)

// multiTenantParallelism bounds concurrent chunk submission to a backend that
// advertises multi-tenant capability. Single-tenant backends always receive
// chunks sequentially.
const multiTenantParallelism = 4

// PoolEntry is one configured backend with its selection priority.
type PoolEntry struct {
	Client   *Client
	Priority int
}

// Pool selects a healthy backend for each request and coordinates chunked
// transcription against it. Safe for concurrent use.
type Pool struct {
	entries []PoolEntry
	metrics *observe.Metrics
}

// PoolOption configures a [Pool].
type PoolOption func(*Pool)

// WithPoolMetrics overrides the metrics sink.
func WithPoolMetrics(m *observe.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool builds a pool over the given backends.
func NewPool(entries []PoolEntry, opts ...PoolOption) *Pool {
	e := make([]PoolEntry, len(entries))
	copy(e, entries)
	p := &Pool{entries: e}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// candidate is an admitted backend with its probe result.
type candidate struct {
	client   *Client
	priority int
	health   HealthInfo
}

// healthy probes every backend concurrently and returns the admitted ones
// ranked by ascending priority, ties broken in favour of GPU backends.
func (p *Pool) healthy(ctx context.Context) []candidate {
	results := make([]*candidate, len(p.entries))
	var wg sync.WaitGroup
	for i, e := range p.entries {
		wg.Add(1)
		go func(i int, e PoolEntry) {
			defer wg.Done()
			info, err := e.Client.Health(ctx)
			if err != nil {
				slog.Debug("backend failed health probe", "backend", e.Client.Name(), "err", err)
				return
			}
			if info.Status != "ok" {
				slog.Debug("backend not ready", "backend", e.Client.Name(), "status", info.Status)
				return
			}
			results[i] = &candidate{client: e.Client, priority: e.Priority, health: info}
		}(i, e)
	}
	wg.Wait()

	admitted := make([]candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			admitted = append(admitted, *c)
		}
	}
	sort.SliceStable(admitted, func(i, j int) bool {
		if admitted[i].priority != admitted[j].priority {
			return admitted[i].priority < admitted[j].priority
		}
		return admitted[i].health.GPUAvailable && !admitted[j].health.GPUAvailable
	})
	return admitted
}

// Ready reports whether at least one backend passes the health probe. Used as
// a readiness checker.
func (p *Pool) Ready(ctx context.Context) error {
	if len(p.healthy(ctx)) == 0 {
		return ErrNoHealthyBackend
	}
	return nil
}

// failoverError marks a backend-level failure that justifies trying the next
// ranked backend.
type failoverError struct{ err error }

func (e *failoverError) Error() string { return e.err.Error() }
func (e *failoverError) Unwrap() error { return e.err }

// Transcribe submits all chunks to the best healthy backend and merges the
// results. Failover to the next ranked backend happens only when the selected
// one fails at the transport level (or 5xx) before any chunk has succeeded.
func (p *Pool) Transcribe(ctx context.Context, buf *audio.Buffer, plans []audio.ChunkPlan, hotwords []string) (*Transcript, error) {
	candidates := p.healthy(ctx)
	if len(candidates) == 0 {
		return nil, ErrNoHealthyBackend
	}

	var lastErr error
	for _, cand := range candidates {
		tr, err := p.transcribeWith(ctx, cand, buf, plans, hotwords)
		if err == nil {
			return tr, nil
		}
		lastErr = err
		var fe *failoverError
		if !errors.As(err, &fe) {
			return nil, err
		}
		slog.Warn("backend failed before first chunk success, trying next",
			"backend", cand.client.Name(), "err", err)
	}
	return nil, fmt.Errorf("all transcription backends failed: %w", lastErr)
}

// transcribeWith runs the whole chunk loop against one backend.
func (p *Pool) transcribeWith(ctx context.Context, cand candidate, buf *audio.Buffer, plans []audio.ChunkPlan, hotwords []string) (*Transcript, error) {
	var (
		segments []Segment
		failed   int
		err      error
	)
	if cand.health.MultiTenant {
		segments, failed, err = p.submitParallel(ctx, cand, buf, plans, hotwords)
	} else {
		segments, failed, err = p.submitSequential(ctx, cand, buf, plans, hotwords)
	}
	if err != nil {
		return nil, err
	}
	return merge(segments, plans, cand.client.Name(), failed)
}

// submitSequential is the default chunk loop. A transport or 5xx failure
// before the first success aborts with a failover error; later failures are
// logged and skipped.
func (p *Pool) submitSequential(ctx context.Context, cand candidate, buf *audio.Buffer, plans []audio.ChunkPlan, hotwords []string) ([]Segment, int, error) {
	var (
		segments []Segment
		failed   int
	)
	for _, plan := range plans {
		pcm := buf.Extract(plan)
		if audio.IsSilence(pcm) {
			slog.Debug("skipping silent chunk", "chunk", plan.Index)
			continue
		}
		wav := audio.EncodeWAV(pcm, buf.Format.SampleRate, buf.Format.Channels)
		seg, err := p.recognizeChunk(ctx, cand, wav, hotwords)
		if err != nil {
			if len(segments) == 0 && failoverWorthy(err) {
				return nil, 0, &failoverError{err: err}
			}
			slog.Warn("chunk recognition failed, continuing",
				"backend", cand.client.Name(), "chunk", plan.Index, "err", err)
			failed++
			continue
		}
		seg.ChunkIndex = plan.Index
		segments = append(segments, seg)
	}
	return segments, failed, nil
}

// submitParallel submits chunks with a bounded semaphore for multi-tenant
// backends. Offsets stay pre-assigned from the chunk plans so ordering does
// not matter.
func (p *Pool) submitParallel(ctx context.Context, cand candidate, buf *audio.Buffer, plans []audio.ChunkPlan, hotwords []string) ([]Segment, int, error) {
	sem := semaphore.NewWeighted(multiTenantParallelism)
	results := make([]*Segment, len(plans))
	errs := make([]error, len(plans))
	var wg sync.WaitGroup

	for i, plan := range plans {
		pcm := buf.Extract(plan)
		if audio.IsSilence(pcm) {
			slog.Debug("skipping silent chunk", "chunk", plan.Index)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			break
		}
		wg.Add(1)
		go func(i int, plan audio.ChunkPlan, pcm []byte) {
			defer wg.Done()
			defer sem.Release(1)
			wav := audio.EncodeWAV(pcm, buf.Format.SampleRate, buf.Format.Channels)
			seg, err := p.recognizeChunk(ctx, cand, wav, hotwords)
			if err != nil {
				errs[i] = err
				return
			}
			seg.ChunkIndex = plan.Index
			results[i] = &seg
		}(i, plan, pcm)
	}
	wg.Wait()

	var (
		segments []Segment
		failed   int
		downErr  error
	)
	for i, seg := range results {
		if seg != nil {
			segments = append(segments, *seg)
			continue
		}
		if errs[i] != nil {
			slog.Warn("chunk recognition failed",
				"backend", cand.client.Name(), "chunk", plans[i].Index, "err", errs[i])
			failed++
			if failoverWorthy(errs[i]) {
				downErr = errs[i]
			}
		}
	}
	// With no successes and at least one transport/5xx failure the backend is
	// treated as down, same as the sequential path.
	if len(segments) == 0 && downErr != nil {
		return nil, 0, &failoverError{err: downErr}
	}
	return segments, failed, nil
}

// recognizeChunk runs one chunk recognition, tracking in-flight chunks and
// per-backend request outcomes.
func (p *Pool) recognizeChunk(ctx context.Context, cand candidate, wav []byte, hotwords []string) (Segment, error) {
	p.metrics.ChunksInFlight.Add(ctx, 1)
	defer p.metrics.ChunksInFlight.Add(ctx, -1)

	seg, err := cand.client.Recognize(ctx, wav, hotwords, true)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordASRRequest(ctx, cand.client.Name(), status)
	return seg, err
}

// merge joins per-chunk segments into one transcript. Chunk-local timestamps
// are translated to global time by adding the sum of planned durations of all
// preceding chunks, never durations reported by the backend.
func merge(segments []Segment, plans []audio.ChunkPlan, backend string, failed int) (*Transcript, error) {
	offsets := make(map[int]int64, len(plans))
	var total time.Duration
	for _, plan := range plans {
		offsets[plan.Index] = total.Milliseconds()
		total += plan.Duration
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].ChunkIndex < segments[j].ChunkIndex
	})

	var (
		texts         []string
		timestamps    [][2]int64
		allTimestamps = true
	)
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		if len(seg.Timestamps) == 0 {
			allTimestamps = false
			continue
		}
		off := offsets[seg.ChunkIndex]
		for _, ts := range seg.Timestamps {
			timestamps = append(timestamps, [2]int64{ts[0] + off, ts[1] + off})
		}
	}

	if len(texts) == 0 {
		return nil, ErrTranscriptionEmpty
	}
	// Mixed chunks (some with timing, some without) drop timing entirely so
	// the subtitle builder falls back to sentence splitting.
	if !allTimestamps {
		timestamps = nil
	}
	return &Transcript{
		Text:       strings.Join(texts, " "),
		Timestamps: timestamps,
		Duration:   total,
		Backend:    backend,
		Partial:    failed > 0,
	}, nil
}
