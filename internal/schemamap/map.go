package schemamap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/roach88/querycache/internal/querykey"
)

// Entry is the schema map record for one query identity.
type Entry struct {
	// Output is the JSON Schema of the query's successful result.
	Output json.RawMessage `json:"output"`
}

// Map is the read-only identity to schema mapping loaded at process start.
// It is safe for concurrent use.
type Map struct {
	entries map[string]Entry
	codec   *CUECodec

	mu         sync.Mutex // guards validators and the codec's CUE context
	validators map[validatorKey]*Validator
}

type validatorKey struct {
	identity string
	kind     querykey.Kind
}

// Option configures a Map.
type Option func(*Map)

// WithCodec sets the codec used to compile validators.
func WithCodec(c *CUECodec) Option {
	return func(m *Map) {
		m.codec = c
	}
}

// New builds a Map from entries. The entries are copied.
func New(entries map[string]Entry, opts ...Option) *Map {
	m := &Map{
		entries:    make(map[string]Entry, len(entries)),
		validators: make(map[validatorKey]*Validator),
	}
	for id, e := range entries {
		m.entries[id] = Entry{Output: bytes.Clone(e.Output)}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.codec == nil {
		m.codec = NewCUECodec(nil)
	}
	return m
}

// Parse decodes a schema map artifact.
func Parse(data []byte, opts ...Option) (*Map, error) {
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("schemamap: parse: %w", err)
	}
	return New(entries, opts...), nil
}

// Load reads and decodes the artifact at path.
func Load(path string, opts ...Option) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemamap: load: %w", err)
	}
	return Parse(data, opts...)
}

// Len returns the number of identities in the map.
func (m *Map) Len() int {
	return len(m.entries)
}

// Identities returns every identity in byte order.
func (m *Map) Identities() []string {
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Lookup returns the entry for identity. An entry without an output schema
// is treated as absent.
func (m *Map) Lookup(identity string) (Entry, error) {
	e, ok := m.entries[identity]
	if !ok || len(e.Output) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, identity)
	}
	return e, nil
}

// Fetch returns the validator for identity. Paginated validators accept the
// cacheable snapshot union derived from the server result schema. Compiled
// validators are reused for the lifetime of the Map.
func (m *Map) Fetch(identity string, kind querykey.Kind) (*Validator, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("schemamap: fetch %s: unknown kind %q", identity, kind)
	}
	entry, err := m.Lookup(identity)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	vk := validatorKey{identity: identity, kind: kind}
	if v, ok := m.validators[vk]; ok {
		return v, nil
	}

	schema, err := m.codec.FromPortable(entry.Output)
	if err != nil {
		return nil, fmt.Errorf("schemamap: compile %s: %w", identity, err)
	}
	if kind == querykey.KindPaginated {
		schema, err = PaginatedSnapshotSchema(schema)
		if err != nil {
			return nil, fmt.Errorf("schemamap: %s: %w", identity, err)
		}
	}

	v := &Validator{identity: identity, kind: kind, schema: schema, mu: &m.mu}
	m.validators[vk] = v
	return v, nil
}
