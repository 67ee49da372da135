package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querycache/internal/ir"
	"github.com/roach88/querycache/internal/pagination"
	"github.com/roach88/querycache/internal/querykey"
)

// KeyOptions holds flags for the key command.
type KeyOptions struct {
	*RootOptions
	Paginated bool
	NumItems  int // first page size; applies with Paginated
}

// KeyResult is the JSON payload of the key command.
type KeyResult struct {
	Identity string        `json:"identity"`
	Kind     querykey.Kind `json:"kind"`
	Key      string        `json:"key"`
	Tag      string        `json:"tag"`
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key <identity> [args-json]",
		Short: "Print the cache key and tag of a query call",
		Long: `Derive the cache key and tag of a query call.

Arguments are a JSON object and default to {}. With --paginated and
--num-items, paginationOpts for the first page is added to the arguments,
which yields the tag a preload is cached under.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Paginated, "paginated", false, "derive a paginated query key")
	cmd.Flags().IntVar(&opts.NumItems, "num-items", 0, "first page size (adds paginationOpts)")

	return cmd
}

func runKey(opts *KeyOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	identity := args[0]
	raw := "{}"
	if len(args) == 2 {
		raw = args[1]
	}

	qk, kind, err := deriveKey(identity, raw, opts.Paginated, opts.NumItems)
	if err != nil {
		return commandError(formatter, codeForArgs(err), err.Error())
	}

	result := KeyResult{Identity: identity, Kind: kind, Key: qk.Key, Tag: qk.Tag}
	return formatter.Success(result, "key: "+qk.Key, "tag: "+qk.Tag)
}

// deriveKey parses argsJSON and derives the query key. Paginated keys with
// a positive numItems use the first page arguments.
func deriveKey(identity, argsJSON string, paginated bool, numItems int) (querykey.QueryKey, querykey.Kind, error) {
	kind := querykey.KindQuery
	if paginated {
		kind = querykey.KindPaginated
	}

	v, err := ir.DecodeJSON([]byte(argsJSON))
	if err != nil {
		return querykey.QueryKey{}, kind, fmt.Errorf("invalid arguments: %w", err)
	}

	var args any = v
	if paginated && numItems > 0 {
		var obj map[string]any
		dec := json.NewDecoder(bytes.NewReader([]byte(argsJSON)))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return querykey.QueryKey{}, kind, fmt.Errorf("invalid arguments: paginated arguments must be an object: %w", err)
		}
		args = pagination.FirstPageArgs(obj, numItems)
	}

	qk, err := querykey.Derive(identity, args, kind)
	return qk, kind, err
}

func codeForArgs(err error) string {
	if code := codeForError(err); code != ErrCodeGeneric {
		return code
	}
	return ErrCodeInvalidArgs
}
