package schemamap

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"
)

// GeneratedDir is the directory under the functions directory that holds
// generated artifacts. Discovery never reads from it.
const GeneratedDir = "_generated"

// Export is one exported backend function found by a Discovery.
type Export struct {
	Module   string    // module path relative to the functions directory, no extension
	Name     string    // export name
	IsQuery  bool      // the function is a query
	IsPublic bool      // the function is callable by clients
	Returns  cue.Value // declared output validator, zero if none
	Pos      token.Pos
}

// HasReturns reports whether the export declares an output validator.
func (e Export) HasReturns() bool {
	return e.Returns.Exists()
}

// Discovery enumerates exported backend functions. A module that fails to
// load is reported as an error alongside the exports of every other module.
type Discovery interface {
	Discover(ctx context.Context) ([]Export, []error)
}

// ModuleError reports a source module that could not be loaded.
type ModuleError struct {
	Module string
	Pos    token.Pos
	Err    error
}

func (e *ModuleError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: loading module %s: %v", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Module, e.Err)
	}
	return fmt.Sprintf("loading module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// CUEDiscovery treats every .cue file under Dir as a source module and every
// top-level struct field of a module as an export:
//
//	list: {
//		query:  true
//		public: true
//		returns: [...{id: string, title: string}]
//	}
//
// Files are compiled independently, so a broken module never hides the
// exports of the others.
type CUEDiscovery struct {
	Dir string

	// Context builds the module values. A nil Context gets a fresh one.
	Context *cue.Context
}

// Discover implements Discovery.
func (d *CUEDiscovery) Discover(ctx context.Context) ([]Export, []error) {
	info, err := os.Stat(d.Dir)
	if err != nil {
		return nil, []error{fmt.Errorf("functions directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("functions directory: not a directory: %s", d.Dir)}
	}

	files, err := FindCUEFiles(d.Dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", d.Dir, err)}
	}

	cctx := d.Context
	if cctx == nil {
		cctx = cuecontext.New()
	}

	var exports []Export
	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return exports, append(errs, err)
		}

		module, err := modulePath(d.Dir, file)
		if err != nil {
			errs = append(errs, &ModuleError{Module: file, Err: err})
			continue
		}

		found, err := loadModule(cctx, file, module)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		exports = append(exports, found...)
	}
	return exports, errs
}

// FindCUEFiles walks dir in lexical order and returns every .cue file
// outside the generated directory.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == GeneratedDir && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func modulePath(dir, file string) (string, error) {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ".cue"), nil
}

func loadModule(cctx *cue.Context, file, module string) ([]Export, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, &ModuleError{Module: module, Err: err}
	}

	// Only syntax errors fail the whole module. A conflict inside one export
	// is reported when that export's validator is converted.
	f, err := parser.ParseFile(file, src)
	if err != nil {
		return nil, moduleError(module, err)
	}
	structs := structLiterals(f)

	v := cctx.BuildFile(f)
	iter, err := v.Fields()
	if err != nil {
		return nil, moduleError(module, err)
	}

	var exports []Export
	for iter.Next() {
		fn := iter.Value()
		label := iter.Selector().Unquoted()
		// A struct with a failing field evaluates to bottom, so the literal
		// form is checked as well as the evaluated kind.
		if fn.IncompleteKind() != cue.StructKind && !structs[label] {
			continue // constants and helpers are not functions
		}
		exports = append(exports, Export{
			Module:   module,
			Name:     label,
			IsQuery:  boolField(fn, "query"),
			IsPublic: boolField(fn, "public"),
			Returns:  fn.LookupPath(cue.ParsePath("returns")),
			Pos:      fn.Pos(),
		})
	}
	return exports, nil
}

// structLiterals returns the top-level labels whose value is written as a
// struct literal.
func structLiterals(f *ast.File) map[string]bool {
	labels := make(map[string]bool)
	for _, decl := range f.Decls {
		field, ok := decl.(*ast.Field)
		if !ok {
			continue
		}
		if _, ok := field.Value.(*ast.StructLit); !ok {
			continue
		}
		if name, _, err := ast.LabelName(field.Label); err == nil {
			labels[name] = true
		}
	}
	return labels
}

// moduleError keeps the position of the first CUE error.
func moduleError(module string, err error) *ModuleError {
	me := &ModuleError{Module: module, Err: err}
	if errs := errors.Errors(err); len(errs) > 0 {
		if positions := errors.Positions(errs[0]); len(positions) > 0 {
			me.Pos = positions[0]
		}
	}
	return me
}

func boolField(v cue.Value, name string) bool {
	b, err := v.LookupPath(cue.ParsePath(name)).Bool()
	return err == nil && b
}
