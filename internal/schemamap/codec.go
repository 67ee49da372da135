package schemamap

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/jsonschema"
	"cuelang.org/go/encoding/openapi"
)

// Codec converts between CUE validators and portable JSON Schema documents.
type Codec interface {
	// ToPortable converts a declared output validator into JSON Schema.
	ToPortable(v cue.Value) (json.RawMessage, error)

	// FromPortable compiles a JSON Schema document into a CUE value.
	FromPortable(schema json.RawMessage) (cue.Value, error)
}

// CUECodec is the Codec backed by CUE's encoding packages.
//
// A CUE context is not safe for concurrent use; callers that share a
// CUECodec across goroutines must serialize access.
type CUECodec struct {
	ctx *cue.Context
}

// NewCUECodec returns a codec that builds values in ctx.
// A nil ctx gets a fresh context.
func NewCUECodec(ctx *cue.Context) *CUECodec {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	return &CUECodec{ctx: ctx}
}

// Context returns the CUE context values are built in.
func (c *CUECodec) Context() *cue.Context {
	return c.ctx
}

// outputDefinition is the name under which a validator is exported.
const outputDefinition = "Output"

// ToPortable implements Codec. The value is exported as an OpenAPI
// component with references expanded, and the component schema is returned.
func (c *CUECodec) ToPortable(v cue.Value) (json.RawMessage, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validator: %w", err)
	}

	def := cue.MakePath(cue.Def(outputDefinition))
	wrapped := v.Context().CompileString("#"+outputDefinition+": _").FillPath(def, v)
	if err := wrapped.Err(); err != nil {
		return nil, fmt.Errorf("wrapping validator: %w", err)
	}

	doc, err := openapi.Gen(wrapped, &openapi.Config{
		Info:             map[string]any{"title": "querycache output schema", "version": "v1"},
		ExpandReferences: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generating json schema: %w", err)
	}

	var parsed struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("reading generated schema: %w", err)
	}
	schema, ok := parsed.Components.Schemas[outputDefinition]
	if !ok || len(schema) == 0 {
		return nil, fmt.Errorf("generated document has no %s schema", outputDefinition)
	}
	return schema, nil
}

// FromPortable implements Codec.
func (c *CUECodec) FromPortable(schema json.RawMessage) (cue.Value, error) {
	expr, err := cuejson.Extract("schema.json", schema)
	if err != nil {
		return cue.Value{}, fmt.Errorf("parsing json schema: %w", err)
	}
	doc := c.ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building json schema: %w", err)
	}

	file, err := jsonschema.Extract(doc, &jsonschema.Config{})
	if err != nil {
		return cue.Value{}, fmt.Errorf("converting json schema: %w", err)
	}
	v := c.ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building schema: %w", err)
	}
	return v, nil
}
