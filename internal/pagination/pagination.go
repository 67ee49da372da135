// Package pagination holds the paginated query result shapes shared by the
// client and server reconcilers.
package pagination

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Status is the load state of a paginated subscription.
type Status string

const (
	StatusLoadingFirstPage Status = "LoadingFirstPage"
	StatusCanLoadMore      Status = "CanLoadMore"
	StatusLoadingMore      Status = "LoadingMore"
	StatusExhausted        Status = "Exhausted"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusLoadingFirstPage,
	StatusCanLoadMore,
	StatusLoadingMore,
	StatusExhausted,
}

// Loading returns the isLoading value a status implies.
func (s Status) Loading() bool {
	return s == StatusLoadingFirstPage || s == StatusLoadingMore
}

// Snapshot is the cacheable reduction of a paginated result.
// IsLoading must equal Status.Loading(); the validation gate rejects
// snapshots that break the pairing.
type Snapshot struct {
	Results   []json.RawMessage `json:"results"`
	Status    Status            `json:"status"`
	IsLoading bool              `json:"isLoading"`
}

// Empty returns a results-free snapshot for status.
func Empty(status Status) Snapshot {
	return Snapshot{Results: []json.RawMessage{}, Status: status, IsLoading: status.Loading()}
}

// Exhausted wraps a complete server page as a snapshot.
func Exhausted(page []json.RawMessage) Snapshot {
	if page == nil {
		page = []json.RawMessage{}
	}
	return Snapshot{Results: page, Status: StatusExhausted, IsLoading: false}
}

// Marshal encodes the snapshot as the JSON document stored in caches.
func (s Snapshot) Marshal() ([]byte, error) {
	if s.Results == nil {
		s.Results = []json.RawMessage{}
	}
	return json.Marshal(s)
}

// ParseSnapshot decodes a cached snapshot. It does not validate it.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("pagination: parse snapshot: %w", err)
	}
	return s, nil
}

// Result is the full state of a live paginated subscription. Only the
// embedded Snapshot is ever cached; LoadMore and Err are live-only.
type Result struct {
	Snapshot
	LoadMore func(numItems int)
	Err      error
}

// Reduce returns the cacheable part of r.
func (r Result) Reduce() Snapshot {
	return r.Snapshot
}

// NoopLoadMore is used while results come from a preload.
func NoopLoadMore(int) {}

// ServerPage is the shape a paginated backend function returns.
type ServerPage struct {
	Page           []json.RawMessage `json:"page"`
	IsDone         bool              `json:"isDone"`
	ContinueCursor string            `json:"continueCursor"`
}

// ParseServerPage decodes a paginated backend response.
func ParseServerPage(data []byte) (ServerPage, error) {
	var p ServerPage
	if err := json.Unmarshal(data, &p); err != nil {
		return ServerPage{}, fmt.Errorf("pagination: parse server page: %w", err)
	}
	return p, nil
}

// Opts are the pagination options passed to a paginated backend function.
type Opts struct {
	NumItems int     `json:"numItems"`
	Cursor   *string `json:"cursor"`
}

// FirstPageArgs returns a copy of args with paginationOpts set to the first
// page of numItems items. This is the argument shape preloads are cached
// under, so revalidation must derive its tag from the same shape.
func FirstPageArgs(args map[string]any, numItems int) map[string]any {
	out := maps.Clone(args)
	if out == nil {
		out = map[string]any{}
	}
	out["paginationOpts"] = map[string]any{
		"numItems": numItems,
		"cursor":   nil,
	}
	return out
}
