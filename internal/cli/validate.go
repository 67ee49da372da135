package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/schemamap"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	SchemaMap string
	Paginated bool
}

// ValidationResult is the JSON payload of a successful validate.
type ValidationResult struct {
	Identity string        `json:"identity"`
	Kind     querykey.Kind `json:"kind"`
	Valid    bool          `json:"valid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <identity> <data-file>",
		Short: "Check a payload against a query's output schema",
		Long: `Check a JSON payload against the output schema of a query.

The payload is what the cache would store for the query: the query result,
or with --paginated a snapshot {results, status, isLoading}. Use "-" to read
the payload from stdin. Exits 1 when the payload is rejected.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SchemaMap, "schema-map", "", "schema map artifact (default: schema_map from the config file)")
	cmd.Flags().BoolVar(&opts.Paginated, "paginated", false, "validate a paginated snapshot")

	return cmd
}

func runValidate(opts *ValidateOptions, identity, dataFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	path := opts.SchemaMap
	if path == "" {
		cfg, err := opts.loadConfig(formatter)
		if err != nil {
			return err
		}
		path = cfg.SchemaMap
	}

	m, err := schemamap.Load(path)
	if err != nil {
		return commandError(formatter, ErrCodeLoadFailed, err.Error())
	}
	formatter.VerboseLog("Loaded %d schema(s) from %s", m.Len(), path)

	data, err := readInput(cmd.InOrStdin(), dataFile)
	if err != nil {
		return commandError(formatter, ErrCodeLoadFailed, fmt.Sprintf("reading payload: %v", err))
	}

	kind := querykey.KindQuery
	if opts.Paginated {
		kind = querykey.KindPaginated
	}

	v, err := m.Fetch(identity, kind)
	if err != nil {
		return commandError(formatter, codeForError(err), err.Error())
	}

	if err := v.Check(data); err != nil {
		return failure(formatter, ErrCodeInvalidPayload, "payload does not match the output schema", err.Error())
	}

	result := ValidationResult{Identity: identity, Kind: kind, Valid: true}
	return formatter.Success(result, fmt.Sprintf("✓ Payload matches %s (%s)", identity, kind))
}

// readInput reads name, or r when name is "-".
func readInput(r io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(r)
	}
	return os.ReadFile(name)
}
