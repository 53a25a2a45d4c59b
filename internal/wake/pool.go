package wake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/harkwake/hark/internal/observe"
)

// DefaultMaxIdlePerKeyword caps the idle list of each keyword. Beyond the
// cap, checking in another handle evicts and closes the oldest idle one.
const DefaultMaxIdlePerKeyword = 4

// Pool caches idle engine handles keyed by keyword name so that expensive
// engine initialization is amortized across reconnecting sessions.
//
// A keyword's idle list may hold several handles at different
// sensitivities; checkout matches sensitivity exactly because it is baked
// into the engine at construction. The idle map is the only state shared
// across sessions and every access to it happens under one lock. Engine
// construction is deliberately performed outside that lock so a slow
// model load never blocks other sessions' checkouts.
type Pool struct {
	factory Factory
	lexicon Lexicon
	metrics *observe.Metrics
	maxIdle int

	mu   sync.Mutex
	idle map[string][]*Handle
}

// PoolOption configures a [Pool].
type PoolOption func(*Pool)

// WithMaxIdlePerKeyword overrides [DefaultMaxIdlePerKeyword]. n <= 0
// disables caching entirely: every check-in closes the handle.
func WithMaxIdlePerKeyword(n int) PoolOption {
	return func(p *Pool) { p.maxIdle = n }
}

// WithMetrics sets the metrics instance the pool records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a pool that constructs engines with factory and
// validates keyword names against lexicon.
func NewPool(factory Factory, lexicon Lexicon, opts ...PoolOption) *Pool {
	p := &Pool{
		factory: factory,
		lexicon: lexicon,
		maxIdle: DefaultMaxIdlePerKeyword,
		idle:    make(map[string][]*Handle),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxIdle < 0 {
		p.maxIdle = 0
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Checkout returns an engine handle for (keyword, sensitivity), reusing
// an idle one when available and constructing a new one otherwise. The
// caller owns the handle exclusively until it passes it back via
// [Pool.Checkin].
//
// Returns [ErrUnknownKeyword] when keyword is not in the lexicon and an
// [*InitError] when the engine factory rejects the pair.
func (p *Pool) Checkout(ctx context.Context, keyword string, sensitivity float32) (*Handle, error) {
	if !p.lexicon.Contains(keyword) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyword, keyword)
	}

	// Reuse path: exact (keyword, sensitivity) match in the idle list.
	p.mu.Lock()
	handles := p.idle[keyword]
	for i, h := range handles {
		if h.Sensitivity() == sensitivity {
			p.idle[keyword] = append(handles[:i], handles[i+1:]...)
			remaining := len(p.idle[keyword])
			p.mu.Unlock()

			p.metrics.IdleHandles.Add(ctx, -1)
			p.metrics.PoolCheckouts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("keyword", keyword),
				attribute.String("source", observe.CheckoutCache),
			))
			slog.Debug("reusing cached engine", "keyword", keyword, "idle_remaining", remaining)
			return h, nil
		}
	}
	p.mu.Unlock()

	// Construction happens outside the lock: model loads are slow and
	// must not stall other sessions.
	ctx, span := observe.StartSpan(ctx, "pool.checkout",
		trace.WithAttributes(attribute.String("keyword", keyword)),
	)
	defer span.End()

	slog.Debug("loading engine", "keyword", keyword, "sensitivity", sensitivity)
	start := time.Now()
	engine, err := p.factory.New(ctx, keyword, sensitivity)
	if err != nil {
		return nil, &InitError{Keyword: keyword, Sensitivity: sensitivity, Err: err}
	}

	p.metrics.EngineInitDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("keyword", keyword)))
	p.metrics.PoolCheckouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("keyword", keyword),
		attribute.String("source", observe.CheckoutNew),
	))
	return NewHandle(engine, sensitivity), nil
}

// Checkin returns a handle to the keyword's idle list for reuse. It never
// fails: caching is best effort, and losing a handle only costs a future
// re-initialization.
//
// Poisoned handles are not pooled; their native resource may still be
// busy, so they are dropped here and the session that poisoned them
// closes the engine once the stuck call returns. When the idle list is
// at capacity, the oldest idle handle is evicted and closed.
func (p *Pool) Checkin(keyword string, h *Handle) {
	if h == nil {
		return
	}
	if h.Poisoned() {
		slog.Warn("discarding poisoned engine handle", "keyword", keyword)
		return
	}

	var evicted *Handle
	p.mu.Lock()
	p.idle[keyword] = append(p.idle[keyword], h)
	if len(p.idle[keyword]) > p.maxIdle {
		evicted = p.idle[keyword][0]
		p.idle[keyword] = p.idle[keyword][1:]
	}
	p.mu.Unlock()

	ctx := context.Background()
	if evicted == nil {
		p.metrics.IdleHandles.Add(ctx, 1)
		return
	}

	p.metrics.PoolEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", keyword)))
	if err := evicted.Engine().Close(); err != nil {
		slog.Warn("closing evicted engine failed", "keyword", keyword, "err", err)
	}
}

// IdleCount returns the number of idle handles cached for keyword.
func (p *Pool) IdleCount(keyword string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[keyword])
}

// TotalIdle returns the number of idle handles across all keywords.
func (p *Pool) TotalIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, handles := range p.idle {
		total += len(handles)
	}
	return total
}

// Close releases every idle handle. Sessions still owning handles are
// unaffected. Close runs at process shutdown, after the server has
// drained all sessions.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*Handle)
	p.mu.Unlock()

	var firstErr error
	for keyword, handles := range idle {
		for _, h := range handles {
			if err := h.Engine().Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close engine for %q: %w", keyword, err)
			}
		}
	}
	return firstErr
}
