package tagcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/querycache/internal/backend"
	"github.com/roach88/querycache/internal/observe"
	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/validation"
)

// Clock supplies the current time for entry ages.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// envelope is the stored form of an entry.
type envelope struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"storedAt"`
}

// Boundary is the read-through server cache in front of a backend.Source.
// It satisfies servercache.Revalidator.
type Boundary struct {
	store   TagStore
	source  backend.Source
	gate    *validation.Gate
	profile Profile
	clock   Clock
	metrics *observe.Metrics
	logger  *slog.Logger

	// refreshing holds the tags with a background refresh in flight. The
	// value is set when the tag was revalidated meanwhile, and the refresh
	// then drops its result.
	mu         sync.Mutex
	refreshing map[string]bool
	wg         sync.WaitGroup
}

// BoundaryOption configures a Boundary.
type BoundaryOption func(*Boundary)

// WithProfile sets the cache-life profile. The default is DefaultProfile.
func WithProfile(p Profile) BoundaryOption {
	return func(b *Boundary) {
		b.profile = p
	}
}

// WithClock replaces the wall clock used to age entries.
func WithClock(c Clock) BoundaryOption {
	return func(b *Boundary) {
		b.clock = c
	}
}

// WithMetrics records tag cache hits and misses.
func WithMetrics(m *observe.Metrics) BoundaryOption {
	return func(b *Boundary) {
		b.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) BoundaryOption {
	return func(b *Boundary) {
		b.logger = l
	}
}

// NewBoundary returns a Boundary caching source results in store and
// validating preloads through gate.
func NewBoundary(store TagStore, source backend.Source, gate *validation.Gate, opts ...BoundaryOption) (*Boundary, error) {
	b := &Boundary{
		store:      store,
		source:     source,
		gate:       gate,
		profile:    DefaultProfile,
		clock:      systemClock{},
		logger:     slog.Default(),
		refreshing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.profile.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Profile returns the active cache-life profile.
func (b *Boundary) Profile() Profile { return b.profile }

// FetchAndTag returns the result of identity called with args, from the
// store when present and from the backend otherwise, and reports the key
// it is cached under.
//
// Paginated results are reduced to an exhausted snapshot of their page
// before caching; args should already carry the first page's
// paginationOpts (see pagination.FirstPageArgs).
func (b *Boundary) FetchAndTag(ctx context.Context, identity string, args any, kind querykey.Kind) ([]byte, querykey.QueryKey, error) {
	key, err := querykey.Derive(identity, args, kind)
	if err != nil {
		return nil, querykey.QueryKey{}, err
	}

	if env, ok := b.read(ctx, identity, key.Tag); ok {
		b.metrics.TagCacheRead(ctx, identity, kind, true)
		if b.clock.Now().Sub(env.StoredAt) >= b.profile.Revalidate {
			b.refresh(ctx, identity, args, kind, key.Tag)
		}
		return env.Value, key, nil
	}

	b.metrics.TagCacheRead(ctx, identity, kind, false)
	value, err := b.fill(ctx, identity, args, kind, key.Tag)
	if err != nil {
		return nil, key, err
	}
	return value, key, nil
}

// Preload fetches a simple query through the cache and validates the
// result. A result that does not match the output schema yields nil.
func (b *Boundary) Preload(ctx context.Context, identity string, args any) ([]byte, error) {
	raw, _, err := b.FetchAndTag(ctx, identity, args, querykey.KindQuery)
	if err != nil {
		return nil, err
	}
	return b.gate.Validate(ctx, identity, querykey.KindQuery, raw)
}

// PreloadPaginated fetches the first numItems items of a paginated query
// through the cache and validates the snapshot. A nil snapshot means no
// usable preload.
func (b *Boundary) PreloadPaginated(ctx context.Context, identity string, args map[string]any, numItems int) (*pagination.Snapshot, error) {
	raw, _, err := b.FetchAndTag(ctx, identity, pagination.FirstPageArgs(args, numItems), querykey.KindPaginated)
	if err != nil {
		return nil, err
	}
	valid, err := b.gate.Validate(ctx, identity, querykey.KindPaginated, raw)
	if err != nil || valid == nil {
		return nil, err
	}
	snap, err := pagination.ParseSnapshot(valid)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Revalidate drops the entry cached under tag so the next fetch goes to
// the backend. Revalidating an absent tag is a no-op.
func (b *Boundary) Revalidate(ctx context.Context, tag string) error {
	b.mu.Lock()
	if _, busy := b.refreshing[tag]; busy {
		b.refreshing[tag] = true
	}
	b.mu.Unlock()

	if err := b.store.Invalidate(ctx, tag); err != nil {
		return err
	}
	b.logger.Debug("tag revalidated", "tag", tag)
	return nil
}

// RevalidateQuery derives the tag of identity called with args and
// revalidates it.
func (b *Boundary) RevalidateQuery(ctx context.Context, identity string, args any, kind querykey.Kind) error {
	key, err := querykey.Derive(identity, args, kind)
	if err != nil {
		return err
	}
	return b.Revalidate(ctx, key.Tag)
}

// Wait blocks until background refreshes have finished.
func (b *Boundary) Wait() {
	b.wg.Wait()
}

// read returns the stored envelope for tag. Store errors and corrupt
// entries are logged and treated as misses.
func (b *Boundary) read(ctx context.Context, identity, tag string) (envelope, bool) {
	data, ok, err := b.store.Get(ctx, tag)
	if err != nil {
		b.logger.Warn("tag cache read failed", "identity", identity, "tag", tag, "error", err)
		return envelope{}, false
	}
	if !ok {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.logger.Warn("discarding corrupt tag cache entry", "identity", identity, "tag", tag, "error", err)
		return envelope{}, false
	}
	return env, true
}

// fill fetches from the backend and stores the result. A store write
// failure does not fail the fetch.
func (b *Boundary) fill(ctx context.Context, identity string, args any, kind querykey.Kind, tag string) ([]byte, error) {
	value, err := b.fetch(ctx, identity, args, kind)
	if err != nil {
		return nil, err
	}
	if err := b.write(ctx, identity, tag, value); err != nil {
		return nil, err
	}
	return value, nil
}

// write stores value under tag. Only encoding errors are returned.
func (b *Boundary) write(ctx context.Context, identity, tag string, value []byte) error {
	data, err := json.Marshal(envelope{Value: value, StoredAt: b.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("tagcache: encode %s: %w", identity, err)
	}
	if err := b.store.Set(ctx, tag, data, b.profile.Expire); err != nil {
		b.logger.Warn("tag cache write failed", "identity", identity, "tag", tag, "error", err)
	}
	return nil
}

func (b *Boundary) fetch(ctx context.Context, identity string, args any, kind querykey.Kind) ([]byte, error) {
	raw, err := b.source.Fetch(ctx, identity, args)
	if err != nil {
		return nil, fmt.Errorf("tagcache: fetch %s: %w", identity, err)
	}
	if kind != querykey.KindPaginated {
		return raw, nil
	}

	page, err := pagination.ParseServerPage(raw)
	if err != nil {
		return nil, err
	}
	return pagination.Exhausted(page.Page).Marshal()
}

// refresh refetches tag in the background. At most one refresh per tag
// runs at a time, and a refresh overtaken by Revalidate stores nothing.
func (b *Boundary) refresh(ctx context.Context, identity string, args any, kind querykey.Kind, tag string) {
	b.mu.Lock()
	if _, busy := b.refreshing[tag]; busy {
		b.mu.Unlock()
		return
	}
	b.refreshing[tag] = false
	b.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		value, err := b.fetch(bg, identity, args, kind)

		// The write happens under mu so Revalidate either sees the refresh
		// in flight or runs its Invalidate after the write.
		b.mu.Lock()
		defer b.mu.Unlock()
		revalidated := b.refreshing[tag]
		delete(b.refreshing, tag)

		switch {
		case err != nil:
			b.logger.Warn("background refresh failed", "identity", identity, "tag", tag, "error", err)
		case revalidated:
			b.logger.Debug("dropping refresh overtaken by revalidation", "identity", identity, "tag", tag)
		default:
			if err := b.write(bg, identity, tag, value); err != nil {
				b.logger.Warn("background refresh failed", "identity", identity, "tag", tag, "error", err)
				return
			}
			b.logger.Debug("refreshed stale entry", "identity", identity, "tag", tag)
		}
	}()
}
