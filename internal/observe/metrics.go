// Package observe holds the OpenTelemetry instruments shared by the cache
// components. Exporter wiring belongs to the host process, which passes in
// a metric.Meter; without one every instrument is a no-op.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/roach88/querycache/internal/querykey"
)

// Instrument names.
const (
	MetricValidationAccepted    = "querycache.validation.accepted"
	MetricValidationRejected    = "querycache.validation.rejected"
	MetricRevalidationTriggered = "querycache.revalidation.triggered"
	MetricRevalidationFailed    = "querycache.revalidation.failed"
	MetricTagCacheHits          = "querycache.tagcache.hits"
	MetricTagCacheMisses        = "querycache.tagcache.misses"
)

// Attribute keys.
const (
	AttrIdentity = "query.identity"
	AttrKind     = "query.kind"
)

// Metrics records cache decisions. A nil *Metrics records nothing.
type Metrics struct {
	validationAccepted    metric.Int64Counter
	validationRejected    metric.Int64Counter
	revalidationTriggered metric.Int64Counter
	revalidationFailed    metric.Int64Counter
	tagCacheHits          metric.Int64Counter
	tagCacheMisses        metric.Int64Counter
}

// NewMetrics creates the instruments on meter. A nil meter uses the no-op
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("querycache")
	}

	counters := []struct {
		name, desc, unit string
	}{
		{MetricValidationAccepted, "Payloads accepted by the validation gate", "{payload}"},
		{MetricValidationRejected, "Payloads rejected by the validation gate", "{payload}"},
		{MetricRevalidationTriggered, "Tag revalidations triggered by divergent live data", "{revalidation}"},
		{MetricRevalidationFailed, "Tag revalidations that returned an error", "{revalidation}"},
		{MetricTagCacheHits, "Tag cache reads served from the store", "{read}"},
		{MetricTagCacheMisses, "Tag cache reads that fell through to the backend", "{read}"},
	}

	m := &Metrics{}
	targets := []*metric.Int64Counter{
		&m.validationAccepted,
		&m.validationRejected,
		&m.revalidationTriggered,
		&m.revalidationFailed,
		&m.tagCacheHits,
		&m.tagCacheMisses,
	}
	for i, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*targets[i] = counter
	}
	return m, nil
}

// Validation records one gate decision.
func (m *Metrics) Validation(ctx context.Context, identity string, kind querykey.Kind, accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.validationAccepted.Add(ctx, 1, queryAttrs(identity, kind))
		return
	}
	m.validationRejected.Add(ctx, 1, queryAttrs(identity, kind))
}

// RevalidationTriggered records a revalidation request.
func (m *Metrics) RevalidationTriggered(ctx context.Context, identity string, kind querykey.Kind) {
	if m == nil {
		return
	}
	m.revalidationTriggered.Add(ctx, 1, queryAttrs(identity, kind))
}

// RevalidationFailed records a revalidation request that failed.
func (m *Metrics) RevalidationFailed(ctx context.Context, identity string, kind querykey.Kind) {
	if m == nil {
		return
	}
	m.revalidationFailed.Add(ctx, 1, queryAttrs(identity, kind))
}

// TagCacheRead records whether a tag cache read hit the store.
func (m *Metrics) TagCacheRead(ctx context.Context, identity string, kind querykey.Kind, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.tagCacheHits.Add(ctx, 1, queryAttrs(identity, kind))
		return
	}
	m.tagCacheMisses.Add(ctx, 1, queryAttrs(identity, kind))
}

func queryAttrs(identity string, kind querykey.Kind) metric.AddOption {
	return metric.WithAttributes(
		attribute.String(AttrIdentity, identity),
		attribute.String(AttrKind, string(kind)),
	)
}
