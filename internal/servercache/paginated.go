package servercache

import (
	"context"
	"log/slog"

	"github.com/roach88/querycache/internal/ir"
	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
)

// PaginatedQuery reconciles a paginated query's preloaded snapshot with its
// live result.
type PaginatedQuery struct {
	identity string
	key      querykey.QueryKey
	preload  *pagination.Snapshot
	skip     bool
	div      *divergence
}

// NewPaginatedQuery returns a reconciler for identity called with args.
// Revalidation targets the tag of the first page: args plus
// paginationOpts {numItems: initialNumItems, cursor: null}, the call the
// preload was made with. preload may be nil.
func NewPaginatedQuery(identity string, args map[string]any, initialNumItems int, preload *pagination.Snapshot, rv Revalidator, opts ...Option) (*PaginatedQuery, error) {
	o := buildOptions(opts)

	var key querykey.QueryKey
	var reference []byte
	if !o.skip {
		var err error
		key, err = querykey.Derive(identity, pagination.FirstPageArgs(args, initialNumItems), querykey.KindPaginated)
		if err != nil {
			return nil, err
		}
		if preload != nil {
			reference, err = preload.Marshal()
			if err != nil {
				return nil, err
			}
		}
	}

	return &PaginatedQuery{
		identity: identity,
		key:      key,
		preload:  preload,
		skip:     o.skip,
		div: &divergence{
			identity:    identity,
			kind:        querykey.KindPaginated,
			tag:         key.Tag,
			revalidator: rv,
			opts:        o,
			reference:   reference,
		},
	}, nil
}

// Key returns the first-page cache key whose tag is revalidated.
func (q *PaginatedQuery) Key() querykey.QueryKey { return q.key }

// Observe returns the preloaded snapshot with a no-op LoadMore while the
// live result is loading its first page, and the live result unmodified
// afterwards. Divergence is only checked once the live result has settled.
func (q *PaginatedQuery) Observe(ctx context.Context, live pagination.Result) pagination.Result {
	if !q.skip && !live.IsLoading {
		raw, err := live.Reduce().Marshal()
		if err != nil {
			slog.Warn("cannot compare live page", "identity", q.identity, "error", err)
		} else {
			q.div.observe(ctx, raw, ir.EqualJSON)
		}
	}

	if live.Status != pagination.StatusLoadingFirstPage {
		return live
	}
	snap := pagination.Empty(pagination.StatusLoadingFirstPage)
	if q.preload != nil {
		snap = *q.preload
	}
	return pagination.Result{Snapshot: snap, LoadMore: pagination.NoopLoadMore}
}

// Watch emits the merged result for every live update until updates is
// closed or ctx is done.
func (q *PaginatedQuery) Watch(ctx context.Context, updates <-chan pagination.Result, emit func(pagination.Result)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case live, ok := <-updates:
			if !ok {
				return nil
			}
			emit(q.Observe(ctx, live))
		}
	}
}

// Wait blocks until in-flight revalidations finish.
func (q *PaginatedQuery) Wait() {
	q.div.wait()
}
