package clientcache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/schemamap"
	"github.com/roach88/querycache/internal/store"
	"github.com/roach88/querycache/internal/validation"
)

const schemaMapJSON = `{
	"todos:list": {"output": {"type": "array", "items": {"type": "string"}}},
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

var listArgs = map[string]any{"owner": "ada"}

func newTestGate(t *testing.T) *validation.Gate {
	t.Helper()
	m, err := schemamap.Parse([]byte(schemaMapJSON))
	require.NoError(t, err)
	return validation.NewGate(m)
}

func TestReconcileValidWritesThrough(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()

	got, err := Reconcile(context.Background(), Input{
		StorageKey: "k",
		Raw:        []byte(`["a"]`),
		Check:      gate.Checker("todos:list", querykey.KindQuery),
		Store:      s,
	})
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(got))

	stored, ok, _ := s.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, `["a"]`, string(stored))
}

func TestReconcileInvalidNeverSeedsStore(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()

	got, err := Reconcile(context.Background(), Input{
		StorageKey: "k",
		Raw:        []byte(`[1]`),
		Check:      gate.Checker("todos:list", querykey.KindQuery),
		Store:      s,
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, s.Writes())
}

func TestReconcileInvalidFallsBackToStored(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	require.NoError(t, s.Set(context.Background(), "k", []byte(`["old"]`)))

	got, err := Reconcile(context.Background(), Input{
		StorageKey: "k",
		Raw:        []byte(`{"not":"a list"}`),
		Check:      gate.Checker("todos:list", querykey.KindQuery),
		Store:      s,
	})
	require.NoError(t, err)
	assert.Equal(t, `["old"]`, string(got))
}

func TestReconcileStoredValueIsRevalidated(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte(`{"legacy":true}`)))

	got, err := Reconcile(ctx, Input{
		StorageKey: "k",
		Check:      gate.Checker("todos:list", querykey.KindQuery),
		Store:      s,
	})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok, _ := s.Get(ctx, "k")
	assert.False(t, ok, "rejected entry is dropped")
}

func TestReconcileFatalCheck(t *testing.T) {
	gate := newTestGate(t)
	_, err := Reconcile(context.Background(), Input{
		StorageKey: "k",
		Raw:        []byte(`[]`),
		Check:      gate.Checker("todos:missing", querykey.KindQuery),
		Store:      NewMemoryStore(),
	})
	assert.ErrorIs(t, err, schemamap.ErrSchemaNotFound)
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}

func (failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk gone")
}

func TestReconcileStoreErrorsAreSoft(t *testing.T) {
	gate := newTestGate(t)
	check := gate.Checker("todos:list", querykey.KindQuery)

	got, err := Reconcile(context.Background(), Input{StorageKey: "k", Raw: []byte(`["a"]`), Check: check, Store: failingStore{}})
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(got))

	got, err = Reconcile(context.Background(), Input{StorageKey: "k", Check: check, Store: failingStore{}})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryFirstRenderServesStoredValue(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`["cached"]`)))
	writes := s.Writes()

	got, err := q.OnUpdate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, `["cached"]`, string(got))
	assert.Equal(t, writes, s.Writes(), "absent live value must not write")
}

func TestQueryLiveSupersedesStored(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`["cached"]`)))

	got, err := q.OnUpdate(ctx, []byte(`["live"]`))
	require.NoError(t, err)
	assert.Equal(t, `["live"]`, string(got))

	current, err := q.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, `["live"]`, string(current))
}

func TestQueryInvalidLiveWithEmptyStorePassesThrough(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)

	got, err := q.OnUpdate(ctx, []byte(`[1]`))
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))
	assert.Equal(t, 0, s.Writes())
}

func TestNewQueryUnknownIdentity(t *testing.T) {
	_, err := NewQuery(context.Background(), newTestGate(t), NewMemoryStore(), "todos:missing", nil)
	assert.ErrorIs(t, err, schemamap.ErrSchemaNotFound)

	_, err = NewQuery(context.Background(), newTestGate(t), NewMemoryStore(), "todos:list", make(chan int))
	assert.Error(t, err)
}

func TestQueryKeyIgnoresArgOrder(t *testing.T) {
	gate := newTestGate(t)
	a, err := NewQuery(context.Background(), gate, NewMemoryStore(), "todos:list", map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := NewQuery(context.Background(), gate, NewMemoryStore(), "todos:list", map[string]any{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a.Key(), b.Key())
}

func TestQueryWatch(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`["cached"]`)))

	updates := make(chan []byte, 3)
	updates <- []byte(`["one"]`)
	updates <- []byte(`"bad"`)
	updates <- []byte(`["two"]`)
	close(updates)

	var seen []string
	err = q.Watch(ctx, updates, func(v []byte) { seen = append(seen, string(v)) })
	require.NoError(t, err)
	assert.Equal(t, []string{`["cached"]`, `["one"]`, `["one"]`, `["two"]`}, seen)
}

func TestQueryWatchStopsOnCancel(t *testing.T) {
	gate := newTestGate(t)
	q, err := NewQuery(context.Background(), gate, NewMemoryStore(), "todos:list", listArgs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Watch(ctx, make(chan []byte), func([]byte) {})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestQueryDurableAcrossInstances(t *testing.T) {
	gate := newTestGate(t)
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	first, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	_, err = first.OnUpdate(ctx, []byte(`["persisted"]`))
	require.NoError(t, err)

	second, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	got, err := second.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, `["persisted"]`, string(got))
}

func TestQueryStaleShapeInDurableStoreIsMiss(t *testing.T) {
	gate := newTestGate(t)
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q, err := NewQuery(ctx, gate, s, "todos:list", listArgs)
	require.NoError(t, err)
	// Written by a build whose output schema was an object.
	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`{"legacy":true}`)))

	got, err := q.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok, err := s.Get(ctx, q.Key().Key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func liveResult(status pagination.Status, items ...string) pagination.Result {
	results := make([]json.RawMessage, len(items))
	for i, it := range items {
		b, _ := json.Marshal(it)
		results[i] = b
	}
	return pagination.Result{
		Snapshot: pagination.Snapshot{Results: results, Status: status, IsLoading: status.Loading()},
		LoadMore: func(int) {},
	}
}

func TestPaginatedFirstLoadServesStoredSnapshot(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewPaginatedQuery(ctx, gate, s, "todos:paginate", listArgs)
	require.NoError(t, err)
	assert.Contains(t, q.Key().Key, "pq:todos:paginate:")

	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`{"results":["x"],"status":"Exhausted","isLoading":false}`)))
	writes := s.Writes()

	loadMoreCalled := false
	live := liveResult(pagination.StatusLoadingFirstPage)
	live.LoadMore = func(int) { loadMoreCalled = true }
	live.Err = errors.New("transient")

	got, err := q.OnUpdate(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, pagination.StatusExhausted, got.Status)
	assert.False(t, got.IsLoading)
	require.Len(t, got.Results, 1)
	assert.JSONEq(t, `"x"`, string(got.Results[0]))
	assert.EqualError(t, got.Err, "transient")

	got.LoadMore(10)
	assert.True(t, loadMoreCalled, "LoadMore comes from the live result")
	assert.Equal(t, writes, s.Writes())
}

func TestPaginatedLiveWritesSnapshot(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewPaginatedQuery(ctx, gate, s, "todos:paginate", listArgs)
	require.NoError(t, err)

	got, err := q.OnUpdate(ctx, liveResult(pagination.StatusCanLoadMore, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, pagination.StatusCanLoadMore, got.Status)
	assert.Len(t, got.Results, 2)

	stored, ok, _ := s.Get(ctx, q.Key().Key)
	require.True(t, ok)
	assert.JSONEq(t, `{"results":["a","b"],"status":"CanLoadMore","isLoading":false}`, string(stored))
}

func TestPaginatedInvalidLiveKeepsStored(t *testing.T) {
	gate := newTestGate(t)
	s := NewMemoryStore()
	ctx := context.Background()

	q, err := NewPaginatedQuery(ctx, gate, s, "todos:paginate", listArgs)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, q.Key().Key, []byte(`{"results":["x"],"status":"Exhausted","isLoading":false}`)))

	// Status and loading flag contradict each other.
	live := liveResult(pagination.StatusExhausted, "y")
	live.IsLoading = true

	got, err := q.OnUpdate(ctx, live)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.JSONEq(t, `"x"`, string(got.Results[0]))
	assert.False(t, got.IsLoading)
}

func TestPaginatedCurrentWithoutStore(t *testing.T) {
	gate := newTestGate(t)
	q, err := NewPaginatedQuery(context.Background(), gate, NewMemoryStore(), "todos:paginate", listArgs)
	require.NoError(t, err)

	got, err := q.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pagination.StatusLoadingFirstPage, got.Status)
	assert.True(t, got.IsLoading)
	assert.Empty(t, got.Results)
	assert.NotNil(t, got.LoadMore)
}

func TestPaginatedWatch(t *testing.T) {
	gate := newTestGate(t)
	ctx := context.Background()
	q, err := NewPaginatedQuery(ctx, gate, NewMemoryStore(), "todos:paginate", listArgs)
	require.NoError(t, err)

	updates := make(chan pagination.Result, 2)
	updates <- liveResult(pagination.StatusLoadingFirstPage)
	updates <- liveResult(pagination.StatusExhausted, "a")
	close(updates)

	var statuses []pagination.Status
	err = q.Watch(ctx, updates, func(r pagination.Result) { statuses = append(statuses, r.Status) })
	require.NoError(t, err)
	assert.Equal(t, []pagination.Status{
		pagination.StatusLoadingFirstPage,
		pagination.StatusLoadingFirstPage,
		pagination.StatusExhausted,
	}, statuses)
}
