// Package schemamap maps query identities to the portable output schema of
// each query and turns those schemas into validators.
//
// The map is produced at build time by Generate, which discovers exported
// backend functions, keeps the public queries that declare an output
// validator, and writes a JSON artifact sorted by identity. At runtime the
// artifact is loaded once with Load and injected into every consumer; it is
// never mutated.
//
// Portable schemas are JSON Schema documents. The Codec converts between
// them and CUE values, and all structural validation is CUE unification.
//
// # Errors
//
// Lookups for identities that are not in the map fail with
// ErrSchemaNotFound, and paginated lookups on schemas without a list-typed
// "page" field fail with ErrMalformedPaginatedSchema. Both mean the artifact
// does not match the deployed code and must not be treated as a cache miss.
package schemamap
