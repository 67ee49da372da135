// Package validation decides whether raw query data may be trusted.
//
// The Gate sits between every source of untyped bytes (tag cache, local
// store, live subscription) and the consumers that act on them. A payload
// that does not match its query's output schema is treated exactly like a
// cache miss: the Gate returns nil and no error. Only configuration faults,
// a missing schema or a malformed paginated schema, are returned as errors.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/querycache/internal/observe"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/schemamap"
)

// Validators supplies compiled validators. *schemamap.Map implements it.
type Validators interface {
	Fetch(identity string, kind querykey.Kind) (*schemamap.Validator, error)
}

// CheckFunc validates raw data for one query. It returns raw when valid,
// nil when absent or invalid, and an error only for configuration faults.
type CheckFunc func(ctx context.Context, raw []byte) ([]byte, error)

// Gate validates payloads against the schema map.
type Gate struct {
	validators Validators
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithMetrics records accept and reject counts.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithLogger sets the logger used for rejected payloads.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate returns a Gate backed by validators.
func NewGate(validators Validators, opts ...Option) *Gate {
	g := &Gate{validators: validators, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate returns raw unchanged if it matches the output schema of
// identity. Absent data (nil) and structurally invalid data both yield
// (nil, nil). Lookup failures are returned as errors.
func (g *Gate) Validate(ctx context.Context, identity string, kind querykey.Kind, raw []byte) ([]byte, error) {
	v, err := g.validators.Fetch(identity, kind)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	if err := v.Check(raw); err != nil {
		g.logger.Debug("discarding payload that does not match schema",
			"identity", identity,
			"kind", kind,
			"error", err,
		)
		g.metrics.Validation(ctx, identity, kind, false)
		return nil, nil
	}

	g.metrics.Validation(ctx, identity, kind, true)
	return raw, nil
}

// ValidateValue marshals v to JSON and validates it. A nil v is absent.
func (g *Gate) ValidateValue(ctx context.Context, identity string, kind querykey.Kind, v any) ([]byte, error) {
	if v == nil {
		return g.Validate(ctx, identity, kind, nil)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("validation: marshal %s: %w", identity, err)
	}
	return g.Validate(ctx, identity, kind, raw)
}

// Checker binds the Gate to one query.
func (g *Gate) Checker(identity string, kind querykey.Kind) CheckFunc {
	return func(ctx context.Context, raw []byte) ([]byte, error) {
		return g.Validate(ctx, identity, kind, raw)
	}
}
