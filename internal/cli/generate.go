package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/querycache/internal/backend"
	"github.com/roach88/querycache/internal/schemamap"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	OutDir string // directory receiving _generated/schema_map.json
}

// GenerateSummary is the JSON payload of a successful generate.
type GenerateSummary struct {
	Artifact   string   `json:"artifact"`
	Identities []string `json:"identities"`
	Skipped    []string `json:"skipped,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate [functions-dir]",
		Short: "Generate the schema map from backend function declarations",
		Long: `Scan the CUE function declarations and write the schema map artifact.

Every public query that declares an output validator gets an entry keyed by
its identity. Modules that fail to load and validators that cannot be
converted are reported and skipped. The functions directory defaults to
functions_dir from the config file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "output", "o", "", "output directory (default: the functions directory)")

	return cmd
}

func runGenerate(ctx context.Context, opts *GenerateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	var dir string
	if len(args) == 1 {
		dir = args[0]
	} else {
		cfg, err := opts.loadConfig(formatter)
		if err != nil {
			return err
		}
		dir = cfg.FunctionsDir
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("functions directory not found: %s", dir))
	}
	if err != nil {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("error accessing functions directory: %v", err))
	}
	if !info.IsDir() {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir))
	}

	files, err := schemamap.FindCUEFiles(dir)
	if err != nil {
		return commandError(formatter, ErrCodeScanError, fmt.Sprintf("error scanning directory: %v", err))
	}
	if len(files) == 0 {
		return commandError(formatter, ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", dir))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), dir)

	outDir := opts.OutDir
	if outDir == "" {
		outDir = dir
	}

	result, err := schemamap.Generate(ctx, schemamap.GenerateOptions{
		Discovery: &schemamap.CUEDiscovery{Dir: dir},
		Resolver:  backend.NameResolver{},
		OutDir:    outDir,
	})
	if err != nil {
		return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("generating schema map: %v", err))
	}

	summary := GenerateSummary{Artifact: result.ArtifactPath}
	for _, e := range result.Entries {
		summary.Identities = append(summary.Identities, e.Identity)
	}
	for _, s := range result.Skipped {
		summary.Skipped = append(summary.Skipped, s.Error())
		formatter.VerboseLog("Skipped: %v", s)
	}

	if !result.Written {
		return failure(formatter, ErrCodeNoPublicQueries, "no public queries with output validators found", summary.Skipped)
	}

	lines := []string{fmt.Sprintf("✓ Generated %d schema(s), skipped %d", len(summary.Identities), len(summary.Skipped))}
	for _, id := range summary.Identities {
		lines = append(lines, "  "+id)
	}
	lines = append(lines, "Wrote schema map to "+summary.Artifact)
	return formatter.Success(summary, lines...)
}
