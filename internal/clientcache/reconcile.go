package clientcache

import (
	"context"
	"log/slog"

	"github.com/roach88/querycache/internal/validation"
)

// LocalStore is the persistent store the reconciler writes through to.
// *store.Store and *MemoryStore implement it.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Input is one reconciliation step.
type Input struct {
	StorageKey string
	Raw        []byte // live value, nil when absent
	Check      validation.CheckFunc
	Store      LocalStore
}

// deleter is implemented by stores that can drop a rejected entry.
type deleter interface {
	Delete(ctx context.Context, key string) error
}

// Reconcile writes a valid live value through to the store and returns it.
// When the live value is absent or invalid, the stored value is returned
// if it still validates, otherwise nil. Errors are configuration faults
// from the check; store failures are logged and treated as a miss.
func Reconcile(ctx context.Context, in Input) ([]byte, error) {
	if in.Raw != nil {
		valid, err := in.Check(ctx, in.Raw)
		if err != nil {
			return nil, err
		}
		if valid != nil {
			if err := in.Store.Set(ctx, in.StorageKey, valid); err != nil {
				slog.Warn("local store write failed", "key", in.StorageKey, "error", err)
			}
			return valid, nil
		}
	}

	stored, ok, err := in.Store.Get(ctx, in.StorageKey)
	if err != nil {
		slog.Warn("local store read failed", "key", in.StorageKey, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	// The store outlives deploys, so an entry may predate the current schema.
	valid, err := in.Check(ctx, stored)
	if err != nil {
		return nil, err
	}
	if valid == nil {
		slog.Debug("dropping stored value that no longer validates", "key", in.StorageKey)
		if d, ok := in.Store.(deleter); ok {
			if err := d.Delete(ctx, in.StorageKey); err != nil {
				slog.Warn("local store delete failed", "key", in.StorageKey, "error", err)
			}
		}
		return nil, nil
	}
	return valid, nil
}
