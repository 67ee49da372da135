package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/store"
)

const todosModule = `#Todo: {
	id:    string
	title: string
	done:  bool
}

get: {
	query:   true
	public:  true
	returns: #Todo
}

list: {
	query:  true
	public: true
	returns: [...#Todo]
}

paginate: {
	query:  true
	public: true
	returns: {
		page: [...#Todo]
		isDone:         bool
		continueCursor: string
	}
}

remove: {
	query:   false
	public:  true
	returns: bool
}
`

// generateFixture writes a functions directory, generates its schema map
// and returns the artifact path.
func generateFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todos.cue"), []byte(todosModule), 0o644))

	out, err := execute(t, "--format", "json", "generate", dir)
	require.NoError(t, err, out)

	var summary GenerateSummary
	resp := decodeResponse(t, out, &summary)
	require.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"todos:get", "todos:list", "todos:paginate"}, summary.Identities)
	assert.Equal(t, filepath.Join(dir, "_generated", "schema_map.json"), summary.Artifact)
	assert.FileExists(t, summary.Artifact)
	return summary.Artifact
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		out, err := execute(t, "generate", "/nonexistent/functions")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeNotFound)
		assert.Contains(t, out, "not found")
	})

	t.Run("no cue files", func(t *testing.T) {
		_, err := execute(t, "generate", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeNoFiles)
	})

	t.Run("no public queries", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "internal.cue"), []byte("hidden: {query: true, public: false, returns: int}\n"), 0o644))

		_, err := execute(t, "generate", dir)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeNoPublicQueries)
		assert.NoFileExists(t, filepath.Join(dir, "_generated", "schema_map.json"))
	})
}

func TestGenerateTextOutput(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todos.cue"), []byte(todosModule), 0o644))

	out, err := execute(t, "generate", dir, "-o", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Generated 3 schema(s)")
	assert.Contains(t, out, "  todos:paginate")
	assert.FileExists(t, filepath.Join(outDir, "_generated", "schema_map.json"))
}

func TestValidateCommand(t *testing.T) {
	artifact := generateFixture(t)

	t.Run("valid payload", func(t *testing.T) {
		data := writeFile(t, "todo.json", `{"id":"1","title":"write tests","done":false}`)
		out, err := execute(t, "validate", "todos:get", data, "--schema-map", artifact)
		require.NoError(t, err, out)
		assert.Contains(t, out, "✓ Payload matches todos:get (query)")
	})

	t.Run("rejected payload", func(t *testing.T) {
		data := writeFile(t, "todo.json", `{"id":1,"title":"write tests","done":false}`)
		out, err := execute(t, "--format", "json", "validate", "todos:get", data, "--schema-map", artifact)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		resp := decodeResponse(t, out, nil)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeInvalidPayload, resp.Error.Code)
	})

	t.Run("paginated snapshot", func(t *testing.T) {
		data := writeFile(t, "snapshot.json", `{"results":[{"id":"1","title":"a","done":true}],"status":"CanLoadMore","isLoading":false}`)
		out, err := execute(t, "validate", "todos:paginate", data, "--paginated", "--schema-map", artifact)
		require.NoError(t, err, out)
	})

	t.Run("unknown identity", func(t *testing.T) {
		data := writeFile(t, "todo.json", `{}`)
		_, err := execute(t, "validate", "todos:missing", data, "--schema-map", artifact)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeSchemaNotFound)
	})

	t.Run("missing schema map", func(t *testing.T) {
		data := writeFile(t, "todo.json", `{}`)
		_, err := execute(t, "validate", "todos:get", data, "--schema-map", filepath.Join(t.TempDir(), "none.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeLoadFailed)
	})
}

func TestKeyCommand(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "key", "todos:get", `{"id":"1"}`)
		require.NoError(t, err)

		var result KeyResult
		decodeResponse(t, out, &result)
		want := querykey.MustDerive("todos:get", map[string]any{"id": "1"}, querykey.KindQuery)
		assert.Equal(t, want.Key, result.Key)
		assert.Equal(t, want.Tag, result.Tag)
		assert.Equal(t, querykey.KindQuery, result.Kind)
	})

	t.Run("default args", func(t *testing.T) {
		out, err := execute(t, "key", "todos:list")
		require.NoError(t, err)
		want := querykey.MustDerive("todos:list", map[string]any{}, querykey.KindQuery)
		assert.Contains(t, out, "tag: "+want.Tag)
	})

	t.Run("paginated first page", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "key", "todos:paginate", `{"list":"inbox"}`, "--paginated", "--num-items", "10")
		require.NoError(t, err)

		var result KeyResult
		decodeResponse(t, out, &result)
		args := pagination.FirstPageArgs(map[string]any{"list": "inbox"}, 10)
		assert.Equal(t, querykey.MustDerive("todos:paginate", args, querykey.KindPaginated).Tag, result.Tag)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := execute(t, "key", "todos:get", `{"id":`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeInvalidArgs)
	})
}

func TestRevalidateCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	cfgPath := writeFile(t, "querycache.yaml", "redis:\n  addr: "+mr.Addr()+"\n")

	tag := querykey.MustDerive("todos:get", map[string]any{"id": "1"}, querykey.KindQuery).Tag

	t.Run("by tag", func(t *testing.T) {
		require.NoError(t, mr.Set("querycache:"+tag, "cached"))
		out, err := execute(t, "--config", cfgPath, "revalidate", tag)
		require.NoError(t, err, out)
		assert.Contains(t, out, "✓ Revalidated "+tag)
		assert.False(t, mr.Exists("querycache:"+tag))
	})

	t.Run("by query", func(t *testing.T) {
		require.NoError(t, mr.Set("querycache:"+tag, "cached"))
		out, err := execute(t, "--config", cfgPath, "--format", "json", "revalidate", "--identity", "todos:get", `{"id":"1"}`)
		require.NoError(t, err, out)

		var result RevalidateResult
		decodeResponse(t, out, &result)
		assert.Equal(t, tag, result.Tag)
		assert.False(t, mr.Exists("querycache:"+tag))
	})

	t.Run("absent tag", func(t *testing.T) {
		_, err := execute(t, "--config", cfgPath, "revalidate", "0000000000000000")
		assert.NoError(t, err)
	})

	t.Run("malformed tag", func(t *testing.T) {
		_, err := execute(t, "--config", cfgPath, "revalidate", "not-a-tag")
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeInvalidArgs)
	})

	t.Run("redis not configured", func(t *testing.T) {
		empty := writeFile(t, "querycache.yaml", "functions_dir: functions\n")
		_, err := execute(t, "--config", empty, "revalidate", tag)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeConfig)
	})
}

func TestLocalCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "client.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), "q:todos:get:{}", []byte(`{"id":"1"}`)))
	require.NoError(t, st.Close())

	t.Run("ls", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "local", "ls", "--db", dbPath)
		require.NoError(t, err, out)

		var entries []LocalEntry
		decodeResponse(t, out, &entries)
		assert.Equal(t, []LocalEntry{{Key: "q:todos:get:{}"}}, entries)
	})

	t.Run("get", func(t *testing.T) {
		out, err := execute(t, "local", "get", "q:todos:get:{}", "--db", dbPath)
		require.NoError(t, err, out)
		assert.Equal(t, "{\"id\":\"1\"}\n", out)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := execute(t, "local", "get", "q:nope", "--db", dbPath)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}
