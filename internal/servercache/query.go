package servercache

import (
	"context"

	"github.com/roach88/querycache/internal/backend"
	"github.com/roach88/querycache/internal/ir"
	"github.com/roach88/querycache/internal/querykey"
)

// Query reconciles a simple query's preload with its live value.
type Query struct {
	identity string
	args     any
	key      querykey.QueryKey
	preload  []byte
	skip     bool
	div      *divergence
}

// NewQuery returns a reconciler for identity called with args. preload may
// be nil when nothing was preloaded or the preload failed validation.
func NewQuery(identity string, args any, preload []byte, rv Revalidator, opts ...Option) (*Query, error) {
	o := buildOptions(opts)

	var key querykey.QueryKey
	if !o.skip {
		var err error
		key, err = querykey.Derive(identity, args, querykey.KindQuery)
		if err != nil {
			return nil, err
		}
	}

	return &Query{
		identity: identity,
		args:     args,
		key:      key,
		preload:  preload,
		skip:     o.skip,
		div: &divergence{
			identity:    identity,
			kind:        querykey.KindQuery,
			tag:         key.Tag,
			revalidator: rv,
			opts:        o,
			reference:   preload,
		},
	}, nil
}

// Key returns the cache key whose tag is revalidated.
func (q *Query) Key() querykey.QueryKey { return q.key }

// Observe returns live if present, otherwise the preload. A live value
// that differs from the reference starts a background revalidation.
func (q *Query) Observe(ctx context.Context, live []byte) []byte {
	if live == nil {
		return q.preload
	}
	if !q.skip {
		q.div.observe(ctx, live, ir.EqualJSON)
	}
	return live
}

// Watch subscribes to the query and emits the merged value: first the
// preload, then one value per live update. It returns when the
// subscription ends or ctx is done. A skipped query only emits the preload.
func (q *Query) Watch(ctx context.Context, src backend.Source, emit func([]byte)) error {
	emit(q.Observe(ctx, nil))
	if q.skip {
		return nil
	}

	updates, err := src.Subscribe(ctx, q.identity, q.args)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case live, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			emit(q.Observe(ctx, live))
		}
	}
}

// Wait blocks until in-flight revalidations finish.
func (q *Query) Wait() {
	q.div.wait()
}
