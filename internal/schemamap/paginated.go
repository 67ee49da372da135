package schemamap

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/querycache/internal/pagination"
)

// snapshotSource renders the closed union of cacheable snapshots. Each
// variant pins isLoading to the value its status implies.
func snapshotSource() string {
	var b strings.Builder
	b.WriteString("item: _\nsnapshot: ")
	for i, status := range pagination.Statuses {
		if i > 0 {
			b.WriteString(" |\n\t")
		}
		fmt.Fprintf(&b, "close({results: [...item], status: %q, isLoading: %t})", status, status.Loading())
	}
	b.WriteString("\n")
	return b.String()
}

// PaginatedSnapshotSchema derives the snapshot schema from the schema of a
// server paginated result. The server schema must describe an object with
// a list-typed page field; its element schema becomes the schema of
// results.
func PaginatedSnapshotSchema(server cue.Value) (cue.Value, error) {
	if err := server.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrMalformedPaginatedSchema, err)
	}
	if server.IncompleteKind() != cue.StructKind {
		return cue.Value{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedPaginatedSchema, server.IncompleteKind())
	}

	page := server.LookupPath(cue.MakePath(cue.Str("page")))
	if !page.Exists() {
		page = server.LookupPath(cue.MakePath(cue.Str("page").Optional()))
	}
	if !page.Exists() {
		return cue.Value{}, fmt.Errorf("%w: missing page field", ErrMalformedPaginatedSchema)
	}
	if page.IncompleteKind() != cue.ListKind {
		return cue.Value{}, fmt.Errorf("%w: page is %s, expected list", ErrMalformedPaginatedSchema, page.IncompleteKind())
	}

	item := page.LookupPath(cue.MakePath(cue.AnyIndex))
	if !item.Exists() {
		item = server.Context().CompileString("_")
	}

	tmpl := server.Context().CompileString(snapshotSource())
	snapshot := tmpl.FillPath(cue.ParsePath("item"), item).LookupPath(cue.ParsePath("snapshot"))
	if err := snapshot.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrMalformedPaginatedSchema, err)
	}
	return snapshot, nil
}
