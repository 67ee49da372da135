package servercache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/querycache/internal/observe"
	"github.com/roach88/querycache/internal/querykey"
)

// DefaultRevalidateTimeout bounds a single background revalidation.
const DefaultRevalidateTimeout = 10 * time.Second

// Revalidator invalidates server cache entries by tag. Implementations must
// be idempotent: duplicate requests for the same tag are expected.
type Revalidator interface {
	Revalidate(ctx context.Context, tag string) error
}

// RevalidatorFunc adapts a function to Revalidator.
type RevalidatorFunc func(ctx context.Context, tag string) error

func (f RevalidatorFunc) Revalidate(ctx context.Context, tag string) error {
	return f(ctx, tag)
}

// Option configures a reconciler.
type Option func(*options)

type options struct {
	skip    bool
	metrics *observe.Metrics
	timeout time.Duration
}

// WithSkip disables the reconciler: no subscription and no revalidation.
// Observe still falls back to the preload.
func WithSkip(skip bool) Option {
	return func(o *options) {
		o.skip = skip
	}
}

// WithMetrics records triggered and failed revalidations.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRevalidateTimeout bounds each background revalidation.
func WithRevalidateTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultRevalidateTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// divergence tracks the reference value and fires revalidations.
type divergence struct {
	identity    string
	kind        querykey.Kind
	tag         string
	revalidator Revalidator
	opts        options

	mu        sync.Mutex
	reference []byte

	wg sync.WaitGroup
}

// observe compares live with the reference and starts a revalidation when
// they differ. It reports whether a revalidation was started.
func (d *divergence) observe(ctx context.Context, live []byte, equal func(a, b []byte) bool) bool {
	d.mu.Lock()
	if equal(d.reference, live) {
		d.mu.Unlock()
		return false
	}
	d.reference = live
	d.mu.Unlock()

	d.fire(ctx)
	return true
}

func (d *divergence) fire(ctx context.Context) {
	requestID := uuid.Must(uuid.NewV7()).String()
	d.opts.metrics.RevalidationTriggered(ctx, d.identity, d.kind)
	slog.Debug("live data diverged from reference, revalidating",
		"identity", d.identity,
		"kind", d.kind,
		"tag", d.tag,
		"request_id", requestID,
	)

	// The caller's cancellation does not abandon the revalidation.
	bg := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		rctx, cancel := context.WithTimeout(bg, d.opts.timeout)
		defer cancel()

		if err := d.revalidator.Revalidate(rctx, d.tag); err != nil {
			d.opts.metrics.RevalidationFailed(bg, d.identity, d.kind)
			slog.Error("revalidation failed",
				"identity", d.identity,
				"tag", d.tag,
				"request_id", requestID,
				"error", err,
			)
			return
		}
		slog.Debug("revalidation complete", "tag", d.tag, "request_id", requestID)
	}()
}

// wait blocks until every started revalidation has returned.
func (d *divergence) wait() {
	d.wg.Wait()
}
