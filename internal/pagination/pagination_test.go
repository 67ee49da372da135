package pagination

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLoading(t *testing.T) {
	expected := map[Status]bool{
		StatusLoadingFirstPage: true,
		StatusCanLoadMore:      false,
		StatusLoadingMore:      true,
		StatusExhausted:        false,
	}
	for _, s := range Statuses {
		assert.Equal(t, expected[s], s.Loading(), "status %s", s)
	}
}

func TestSnapshotMarshalNeverNullResults(t *testing.T) {
	data, err := Snapshot{Status: StatusExhausted}.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[],"status":"Exhausted","isLoading":false}`, string(data))
}

func TestParseSnapshot(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{"results":[{"id":1}],"status":"CanLoadMore","isLoading":false}`))
	require.NoError(t, err)
	assert.Equal(t, StatusCanLoadMore, s.Status)
	require.Len(t, s.Results, 1)
	assert.JSONEq(t, `{"id":1}`, string(s.Results[0]))

	_, err = ParseSnapshot([]byte(`[]`))
	assert.Error(t, err)
}

func TestExhaustedFromServerPage(t *testing.T) {
	page, err := ParseServerPage([]byte(`{"page":[1,2],"isDone":true,"continueCursor":"c"}`))
	require.NoError(t, err)

	s := Exhausted(page.Page)
	assert.Equal(t, StatusExhausted, s.Status)
	assert.False(t, s.IsLoading)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)}, s.Results)

	assert.NotNil(t, Exhausted(nil).Results)
}

func TestEmpty(t *testing.T) {
	s := Empty(StatusLoadingFirstPage)
	assert.True(t, s.IsLoading)
	assert.Empty(t, s.Results)
}

func TestFirstPageArgs(t *testing.T) {
	args := map[string]any{"channel": "general"}
	got := FirstPageArgs(args, 25)

	assert.Equal(t, map[string]any{
		"channel":        "general",
		"paginationOpts": map[string]any{"numItems": 25, "cursor": nil},
	}, got)
	assert.NotContains(t, args, "paginationOpts", "input must not be mutated")

	assert.Contains(t, FirstPageArgs(nil, 10), "paginationOpts")
}
