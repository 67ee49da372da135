package schemamap

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/querycache/internal/querykey"
)

// Validator checks JSON documents against one query's output schema.
type Validator struct {
	identity string
	kind     querykey.Kind
	schema   cue.Value
	mu       *sync.Mutex // guards the CUE context shared with the Map
}

// Identity returns the query identity the validator belongs to.
func (v *Validator) Identity() string { return v.identity }

// Kind returns the kind the validator was built for.
func (v *Validator) Kind() querykey.Kind { return v.kind }

// Schema returns the underlying CUE value.
func (v *Validator) Schema() cue.Value { return v.schema }

// Check returns nil if data is valid JSON that unifies with the schema and
// is concrete. Any other outcome is a structural mismatch.
func (v *Validator) Check(data []byte) error {
	expr, err := cuejson.Extract("data.json", data)
	if err != nil {
		return fmt.Errorf("%s: malformed json: %w", v.identity, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	doc := v.schema.Context().BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%s: %w", v.identity, err)
	}
	if err := v.schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %w", v.identity, err)
	}
	return nil
}
