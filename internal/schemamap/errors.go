package schemamap

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

var (
	// ErrSchemaNotFound is returned when an identity has no entry in the map.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrMalformedPaginatedSchema is returned when a paginated query's schema
	// is not an object with a list-typed page field.
	ErrMalformedPaginatedSchema = errors.New("malformed paginated schema")
)

// GenerateError describes an export that was skipped during generation.
type GenerateError struct {
	Identity string    // resolved identity, empty if resolution failed
	Module   string    // source module path
	Export   string    // export name
	Message  string
	Pos      token.Pos // CUE position if available
	Err      error
}

func (e *GenerateError) Error() string {
	name := e.Identity
	if name == "" {
		name = e.Module + "." + e.Export
	}
	msg := fmt.Sprintf("%s: %s", name, e.Message)
	if e.Pos.IsValid() {
		msg = fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerateError) Unwrap() error {
	return e.Err
}
