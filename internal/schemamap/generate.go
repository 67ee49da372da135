package schemamap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/querycache/internal/backend"
)

// ArtifactName is the file name of the generated schema map.
const ArtifactName = "schema_map.json"

// SchemaEntry is one generated identity and its portable output schema.
type SchemaEntry struct {
	Identity string
	Output   json.RawMessage
}

// GenerateOptions configures Generate.
type GenerateOptions struct {
	Discovery Discovery
	Resolver  backend.Resolver // defaults to backend.NameResolver
	Codec     Codec            // defaults to a fresh CUECodec

	// OutDir receives <OutDir>/_generated/schema_map.json.
	// Empty means nothing is written.
	OutDir string

	Logger *slog.Logger // defaults to slog.Default()
}

// GenerateResult describes one generation run.
type GenerateResult struct {
	Entries      []SchemaEntry // collation order, one per identity
	Skipped      []error       // modules and exports left out of the map
	ArtifactPath string
	Written      bool
}

// Generate builds the schema map from the exports found by the discovery.
//
// An export becomes an entry only if it is a public query that declares an
// output validator. Modules that fail to load and validators that fail to
// convert are logged and skipped. When no entry survives, a warning is
// logged and nothing is written.
func Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Discovery == nil {
		return nil, fmt.Errorf("schemamap: generate: no discovery configured")
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = backend.NameResolver{}
	}
	codec := opts.Codec
	if codec == nil {
		codec = NewCUECodec(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result := &GenerateResult{}

	exports, loadErrs := opts.Discovery.Discover(ctx)
	for _, err := range loadErrs {
		logger.Warn("skipping source module", "error", err)
		result.Skipped = append(result.Skipped, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []SchemaEntry
	for _, exp := range exports {
		if !exp.IsQuery || !exp.IsPublic {
			logger.Debug("not a public query", "module", exp.Module, "export", exp.Name)
			continue
		}

		ref := backend.FunctionRef{Module: exp.Module, Export: exp.Name}
		if !exp.HasReturns() {
			err := &GenerateError{Module: exp.Module, Export: exp.Name, Message: "no output validator declared", Pos: exp.Pos}
			logger.Warn("skipping query without output validator", "function", ref.String())
			result.Skipped = append(result.Skipped, err)
			continue
		}

		identity, err := resolver.ResolveIdentity(ref)
		if err != nil {
			gerr := &GenerateError{Module: exp.Module, Export: exp.Name, Message: "cannot resolve identity", Pos: exp.Pos, Err: err}
			logger.Warn("skipping unresolvable query", "function", ref.String(), "error", err)
			result.Skipped = append(result.Skipped, gerr)
			continue
		}

		schema, err := codec.ToPortable(exp.Returns)
		if err != nil {
			gerr := &GenerateError{Identity: identity, Module: exp.Module, Export: exp.Name, Message: "cannot convert output validator", Pos: exp.Returns.Pos(), Err: err}
			logger.Warn("skipping query with unconvertible output validator", "identity", identity, "error", err)
			result.Skipped = append(result.Skipped, gerr)
			continue
		}

		entries = append(entries, SchemaEntry{Identity: identity, Output: schema})
	}

	result.Entries = dedupeEntries(sortEntries(entries))
	if len(result.Entries) == 0 {
		logger.Warn("no public queries with output validators found, schema map not written")
		return result, nil
	}

	if opts.OutDir == "" {
		return result, nil
	}
	path, err := WriteArtifact(opts.OutDir, result.Entries)
	if err != nil {
		return result, err
	}
	result.ArtifactPath = path
	result.Written = true
	logger.Info("schema map written", "path", path, "entries", len(result.Entries))
	return result, nil
}

// ArtifactPath returns where the artifact for dir is written.
func ArtifactPath(dir string) string {
	return filepath.Join(dir, GeneratedDir, ArtifactName)
}

// WriteArtifact writes entries to <dir>/_generated/schema_map.json.
func WriteArtifact(dir string, entries []SchemaEntry) (string, error) {
	data, err := BuildArtifact(entries)
	if err != nil {
		return "", err
	}

	path := ArtifactPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("schemamap: write artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("schemamap: write artifact: %w", err)
	}
	return path, nil
}

// BuildArtifact renders entries as an indented JSON object, keeping the
// order of entries.
func BuildArtifact(entries []SchemaEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		name, err := json.Marshal(e.Identity)
		if err != nil {
			return nil, err
		}
		body, err := json.MarshalIndent(Entry{Output: e.Output}, "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("schemamap: %s: %w", e.Identity, err)
		}
		buf.WriteString("\n  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(body)
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// sortEntries orders entries by identity using locale-independent
// collation, falling back to byte order for collation ties. The sort is
// stable so later duplicates stay after earlier ones.
func sortEntries(entries []SchemaEntry) []SchemaEntry {
	c := collate.New(language.Und)
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b SchemaEntry) int {
		if r := c.CompareString(a.Identity, b.Identity); r != 0 {
			return r
		}
		return strings.Compare(a.Identity, b.Identity)
	})
	return sorted
}

// dedupeEntries keeps the last of each run of equal identities.
func dedupeEntries(sorted []SchemaEntry) []SchemaEntry {
	out := make([]SchemaEntry, 0, len(sorted))
	for _, e := range sorted {
		if n := len(out); n > 0 && out[n-1].Identity == e.Identity {
			out[n-1] = e
			continue
		}
		out = append(out, e)
	}
	return out
}
