package clientcache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/validation"
)

// Query reconciles one simple query call, identified by its identity and
// arguments, against the local store.
type Query struct {
	identity string
	key      querykey.QueryKey
	check    validation.CheckFunc
	store    LocalStore
}

// NewQuery binds a reconciler to identity called with args. It fails if the
// arguments cannot be serialized or the schema map has no entry for
// identity.
func NewQuery(ctx context.Context, gate *validation.Gate, store LocalStore, identity string, args any) (*Query, error) {
	key, check, err := bind(ctx, gate, identity, args, querykey.KindQuery)
	if err != nil {
		return nil, err
	}
	return &Query{identity: identity, key: key, check: check, store: store}, nil
}

// Key returns the cache key the query is stored under.
func (q *Query) Key() querykey.QueryKey { return q.key }

// Current returns the stored value before any live value has arrived.
func (q *Query) Current(ctx context.Context) ([]byte, error) {
	return Reconcile(ctx, Input{StorageKey: q.key.Key, Check: q.check, Store: q.store})
}

// OnUpdate handles a live value. The reconciled value is preferred; when
// nothing valid is known the live value is passed through as delivered.
func (q *Query) OnUpdate(ctx context.Context, raw []byte) ([]byte, error) {
	cached, err := Reconcile(ctx, Input{StorageKey: q.key.Key, Raw: raw, Check: q.check, Store: q.store})
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return raw, nil
}

// Watch emits the current value, then the reconciled value for every live
// update, until updates is closed or ctx is done.
func (q *Query) Watch(ctx context.Context, updates <-chan []byte, emit func([]byte)) error {
	current, err := q.Current(ctx)
	if err != nil {
		return err
	}
	emit(current)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			v, err := q.OnUpdate(ctx, raw)
			if err != nil {
				return err
			}
			emit(v)
		}
	}
}

// PaginatedQuery reconciles one paginated query call against the local
// store.
type PaginatedQuery struct {
	identity string
	key      querykey.QueryKey
	check    validation.CheckFunc
	store    LocalStore
}

// NewPaginatedQuery binds a reconciler to identity called with args. The
// args exclude pagination options.
func NewPaginatedQuery(ctx context.Context, gate *validation.Gate, store LocalStore, identity string, args any) (*PaginatedQuery, error) {
	key, check, err := bind(ctx, gate, identity, args, querykey.KindPaginated)
	if err != nil {
		return nil, err
	}
	return &PaginatedQuery{identity: identity, key: key, check: check, store: store}, nil
}

// Key returns the cache key the snapshot is stored under.
func (q *PaginatedQuery) Key() querykey.QueryKey { return q.key }

// Current returns a first-page loading result merged with the stored
// snapshot, if any.
func (q *PaginatedQuery) Current(ctx context.Context) (pagination.Result, error) {
	initial := pagination.Result{
		Snapshot: pagination.Empty(pagination.StatusLoadingFirstPage),
		LoadMore: pagination.NoopLoadMore,
	}
	return q.OnUpdate(ctx, initial)
}

// OnUpdate handles a live paginated result. While the live result is still
// loading its first page it counts as absent. A cached snapshot replaces
// the live results, status and loading flag; LoadMore and Err always come
// from the live result.
func (q *PaginatedQuery) OnUpdate(ctx context.Context, live pagination.Result) (pagination.Result, error) {
	var raw []byte
	if live.Status != pagination.StatusLoadingFirstPage {
		var err error
		raw, err = live.Reduce().Marshal()
		if err != nil {
			return live, fmt.Errorf("clientcache: %s: %w", q.identity, err)
		}
	}

	cached, err := Reconcile(ctx, Input{StorageKey: q.key.Key, Raw: raw, Check: q.check, Store: q.store})
	if err != nil {
		return live, err
	}
	if cached == nil {
		return live, nil
	}

	snap, err := pagination.ParseSnapshot(cached)
	if err != nil {
		slog.Warn("stored snapshot is unreadable", "identity", q.identity, "error", err)
		return live, nil
	}
	out := live
	out.Snapshot = snap
	return out, nil
}

// Watch emits the current result, then the reconciled result for every live
// update, until updates is closed or ctx is done.
func (q *PaginatedQuery) Watch(ctx context.Context, updates <-chan pagination.Result, emit func(pagination.Result)) error {
	current, err := q.Current(ctx)
	if err != nil {
		return err
	}
	emit(current)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case live, ok := <-updates:
			if !ok {
				return nil
			}
			v, err := q.OnUpdate(ctx, live)
			if err != nil {
				return err
			}
			emit(v)
		}
	}
}

// bind derives the cache key and checks the schema is known up front.
func bind(ctx context.Context, gate *validation.Gate, identity string, args any, kind querykey.Kind) (querykey.QueryKey, validation.CheckFunc, error) {
	key, err := querykey.Derive(identity, args, kind)
	if err != nil {
		return querykey.QueryKey{}, nil, err
	}
	if _, err := gate.Validate(ctx, identity, kind, nil); err != nil {
		return querykey.QueryKey{}, nil, err
	}
	return key, gate.Checker(identity, kind), nil
}
