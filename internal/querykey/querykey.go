package querykey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/querycache/internal/ir"
)

// TagLength is the number of hex characters kept from the key digest (64 bits).
const TagLength = 16

// Kind distinguishes simple queries from paginated ones.
type Kind string

const (
	KindQuery     Kind = "query"
	KindPaginated Kind = "paginated"
)

// Namespace returns the key prefix for the kind.
func (k Kind) Namespace() string {
	if k == KindPaginated {
		return "pq"
	}
	return "q"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindQuery || k == KindPaginated
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("querykey: unknown kind %q (want %q or %q)", s, KindQuery, KindPaginated)
	}
	return k, nil
}

// QueryKey is the derived identity of a query call.
type QueryKey struct {
	// Key is human-readable and used by the client local store.
	Key string `json:"key"`
	// Tag is the short digest used by the server tag cache.
	Tag string `json:"tag"`
}

// Derive computes the Key and Tag for identity called with args.
//
// Object fields are sorted at every nesting level before serialization, so
// argument maps that are deeply equal produce the same QueryKey regardless
// of insertion order. The only error is ir.ErrUnsupportedValue for values
// that have no serialized form (channels, functions).
func Derive(identity string, args any, kind Kind) (QueryKey, error) {
	serialized, err := ir.Serialize(args)
	if err != nil {
		return QueryKey{}, fmt.Errorf("querykey: derive %s: %w", identity, err)
	}

	key := kind.Namespace() + ":" + identity + ":" + string(serialized)
	return QueryKey{Key: key, Tag: TagFor(key)}, nil
}

// MustDerive is like Derive but panics on error.
// Use only in tests or when args are known to be serializable.
func MustDerive(identity string, args any, kind Kind) QueryKey {
	qk, err := Derive(identity, args, kind)
	if err != nil {
		panic(err)
	}
	return qk
}

// TagFor hashes a Key into its Tag.
func TagFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:TagLength]
}
