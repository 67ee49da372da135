package testutil

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/querycache/internal/ir"
)

// GoldenDir is where golden files live, relative to the package under test.
const GoldenDir = "testdata/golden"

// AssertGolden compares data against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/<pkg> -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// AssertGoldenJSON marshals v to canonical JSON (sorted keys, no HTML
// escaping, trailing newline) and compares it against the golden file.
func AssertGoldenJSON(t *testing.T, name string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal golden value %s: %v", name, err)
	}
	data, err := ir.Canonical(raw)
	if err != nil {
		t.Fatalf("canonicalize golden value %s: %v", name, err)
	}
	AssertGolden(t, name, append(data, '\n'))
}
