package cli

import (
	"errors"

	"github.com/roach88/querycache/internal/ir"
	"github.com/roach88/querycache/internal/schemamap"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Schema map or data file unreadable
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeConfig      = "E006" // Config file invalid
	ErrCodeWriteFailed = "E007" // File write error

	// Cache errors
	ErrCodeSchemaNotFound   = "E201" // Identity missing from the schema map
	ErrCodeMalformedSchema  = "E202" // Paginated schema without a page list
	ErrCodeInvalidPayload   = "E203" // Payload does not match the schema
	ErrCodeInvalidArgs      = "E204" // Arguments are not valid JSON or not serializable
	ErrCodeNoPublicQueries  = "E205" // Generation produced no entries
	ErrCodeRevalidateFailed = "E206" // Tag store rejected the invalidation
)

// codeForError maps cache errors to their code.
func codeForError(err error) string {
	switch {
	case errors.Is(err, schemamap.ErrSchemaNotFound):
		return ErrCodeSchemaNotFound
	case errors.Is(err, schemamap.ErrMalformedPaginatedSchema):
		return ErrCodeMalformedSchema
	case errors.Is(err, ir.ErrUnsupportedValue):
		return ErrCodeInvalidArgs
	default:
		return ErrCodeGeneric
	}
}

// commandError outputs a single error and returns it with exit code 2.
func commandError(f *OutputFormatter, code, message string) error {
	_ = f.Error(code, message, nil)
	return &ExitError{Code: ExitCommandError, ErrCode: code, Message: message}
}

// failure outputs a check failure and returns it with exit code 1.
func failure(f *OutputFormatter, code, message string, details any) error {
	_ = f.Error(code, message, details)
	return &ExitError{Code: ExitFailure, ErrCode: code, Message: message}
}
