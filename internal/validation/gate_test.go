package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycache/internal/observe"
	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/schemamap"
)

const schemaMapJSON = `{
	"todos:get": {"output": {
		"type": "object",
		"properties": {"id": {"type": "string"}, "done": {"type": "boolean"}},
		"required": ["id", "done"]
	}},
	"todos:paginate": {"output": {
		"type": "object",
		"properties": {
			"page": {"type": "array", "items": {"type": "string"}},
			"isDone": {"type": "boolean"},
			"continueCursor": {"type": "string"}
		},
		"required": ["page", "isDone", "continueCursor"]
	}}
}`

func newTestGate(t *testing.T) (*Gate, *observe.Recorder) {
	t.Helper()
	m, err := schemamap.Parse([]byte(schemaMapJSON))
	require.NoError(t, err)
	rec := observe.NewRecorder()
	return NewGate(m, WithMetrics(rec.Metrics)), rec
}

func TestValidateAcceptsConformingData(t *testing.T) {
	g, rec := newTestGate(t)
	raw := []byte(`{"id":"1","done":true}`)

	got, err := g.Validate(context.Background(), "todos:get", querykey.KindQuery, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, int64(1), rec.Count(observe.MetricValidationAccepted, "todos:get"))
}

func TestValidateSoftFails(t *testing.T) {
	g, rec := newTestGate(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"wrong field type", `{"id":1,"done":true}`},
		{"missing required field", `{"id":"1"}`},
		{"malformed json", `{"id":`},
		{"wrong shape", `"todo"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Validate(context.Background(), "todos:get", querykey.KindQuery, []byte(tt.raw))
			assert.NoError(t, err)
			assert.Nil(t, got)
		})
	}
	assert.Equal(t, int64(len(tests)), rec.Count(observe.MetricValidationRejected, "todos:get"))
}

func TestValidateAbsentData(t *testing.T) {
	g, rec := newTestGate(t)

	got, err := g.Validate(context.Background(), "todos:get", querykey.KindQuery, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(0), rec.Count(observe.MetricValidationRejected, "todos:get"))
}

func TestValidateFatalErrors(t *testing.T) {
	g, _ := newTestGate(t)

	_, err := g.Validate(context.Background(), "todos:missing", querykey.KindQuery, []byte(`{}`))
	assert.ErrorIs(t, err, schemamap.ErrSchemaNotFound)

	// Fatal even when there is nothing to validate.
	_, err = g.Validate(context.Background(), "todos:missing", querykey.KindQuery, nil)
	assert.ErrorIs(t, err, schemamap.ErrSchemaNotFound)

	_, err = g.Validate(context.Background(), "todos:get", querykey.KindPaginated, []byte(`{}`))
	assert.ErrorIs(t, err, schemamap.ErrMalformedPaginatedSchema)
}

func TestValidatePaginatedContradiction(t *testing.T) {
	g, _ := newTestGate(t)

	got, err := g.Validate(context.Background(), "todos:paginate", querykey.KindPaginated,
		[]byte(`{"results":[],"status":"Exhausted","isLoading":true}`))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestValidatePaginatedPairs(t *testing.T) {
	g, _ := newTestGate(t)

	for _, status := range pagination.Statuses {
		for _, loading := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/%t", status, loading), func(t *testing.T) {
				snap := pagination.Snapshot{Status: status, IsLoading: loading}
				raw, err := snap.Marshal()
				require.NoError(t, err)

				got, err := g.Validate(context.Background(), "todos:paginate", querykey.KindPaginated, raw)
				require.NoError(t, err)
				if loading == status.Loading() {
					assert.Equal(t, raw, got)
				} else {
					assert.Nil(t, got)
				}
			})
		}
	}
}

func TestValidateValue(t *testing.T) {
	g, _ := newTestGate(t)

	type todo struct {
		ID   string `json:"id"`
		Done bool   `json:"done"`
	}

	got, err := g.ValidateValue(context.Background(), "todos:get", querykey.KindQuery, todo{ID: "1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","done":false}`, string(got))

	got, err = g.ValidateValue(context.Background(), "todos:get", querykey.KindQuery, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = g.ValidateValue(context.Background(), "todos:get", querykey.KindQuery, make(chan int))
	assert.Error(t, err)
}

func TestChecker(t *testing.T) {
	g, _ := newTestGate(t)
	check := g.Checker("todos:get", querykey.KindQuery)

	got, err := check(context.Background(), []byte(`{"id":"1","done":false}`))
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = check(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, got)
}
