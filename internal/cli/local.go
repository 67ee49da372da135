package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querycache/internal/store"
)

// LocalOptions holds flags for the local command group.
type LocalOptions struct {
	*RootOptions
	DB string // SQLite file; defaults to local_store from the config file
}

// LocalEntry is one client cache entry.
type LocalEntry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// NewLocalCommand creates the local command group for inspecting the
// persistent client cache.
func NewLocalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LocalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Inspect the persistent client cache",
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "client cache database (default: local_store from the config file)")

	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Short:         "List cached keys, oldest write first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, opts, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				keys, err := st.Keys(ctx)
				if err != nil {
					return commandError(f, ErrCodeGeneric, err.Error())
				}
				entries := make([]LocalEntry, len(keys))
				for i, k := range keys {
					entries[i] = LocalEntry{Key: k}
				}
				lines := append([]string{fmt.Sprintf("%d cached key(s)", len(keys))}, keys...)
				return f.Success(entries, lines...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "get <key>",
		Short:         "Print the cached value of a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, opts, func(ctx context.Context, f *OutputFormatter, st *store.Store) error {
				value, ok, err := st.Get(ctx, args[0])
				if err != nil {
					return commandError(f, ErrCodeGeneric, err.Error())
				}
				if !ok {
					return failure(f, ErrCodeNotFound, "no cached value for "+args[0], nil)
				}
				return f.Success(LocalEntry{Key: args[0], Value: string(value)}, string(value))
			})
		},
	})

	return cmd
}

func runLocal(cmd *cobra.Command, opts *LocalOptions, fn func(context.Context, *OutputFormatter, *store.Store) error) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := opts.DB
	if path == "" {
		cfg, err := opts.loadConfig(formatter)
		if err != nil {
			return err
		}
		path = cfg.LocalStore
	}
	if path == "" {
		return commandError(formatter, ErrCodeConfig, "local_store is not configured")
	}

	st, err := store.Open(path)
	if err != nil {
		return commandError(formatter, ErrCodeLoadFailed, err.Error())
	}
	defer st.Close()

	return fn(ctx, formatter, st)
}
