package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Recorder collects metrics in memory so tests can read counter values.
type Recorder struct {
	*Metrics
	reader *sdkmetric.ManualReader
}

// NewRecorder returns Metrics backed by an in-memory SDK reader.
func NewRecorder() *Recorder {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(provider.Meter("querycache"))
	if err != nil {
		// The SDK only fails on invalid instrument names.
		panic(err)
	}
	return &Recorder{Metrics: m, reader: reader}
}

// Count returns the cumulative value of a counter for one identity,
// summed across kinds. It returns 0 if nothing was recorded.
func (r *Recorder) Count(name, identity string) int64 {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		return 0
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(AttrIdentity)); ok && v.AsString() == identity {
					total += dp.Value
				}
			}
		}
	}
	return total
}
