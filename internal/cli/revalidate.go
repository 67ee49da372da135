package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/querycache/internal/config"
	"github.com/roach88/querycache/internal/querykey"
	"github.com/roach88/querycache/internal/tagcache"
)

// RevalidateOptions holds flags for the revalidate command.
type RevalidateOptions struct {
	*RootOptions
	Identity  string // derive the tag from a query call instead
	Paginated bool
	NumItems  int
}

// RevalidateResult is the JSON payload of the revalidate command.
type RevalidateResult struct {
	Tag string `json:"tag"`
}

// NewRevalidateCommand creates the revalidate command.
func NewRevalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revalidate <tag> | --identity <identity> [args-json]",
		Short: "Invalidate a server cache entry by tag",
		Long: `Invalidate the server tag cache entry for a tag, so the next preload
fetches from the backend. With --identity the tag is derived from the query
call instead (see the key command). Revalidating an absent tag succeeds.

The tag store is the Redis instance configured under redis in the config
file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevalidate(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Identity, "identity", "", "derive the tag from this query identity")
	cmd.Flags().BoolVar(&opts.Paginated, "paginated", false, "derive a paginated query tag")
	cmd.Flags().IntVar(&opts.NumItems, "num-items", 0, "first page size of the paginated preload")

	return cmd
}

func runRevalidate(ctx context.Context, opts *RevalidateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	var tag string
	switch {
	case opts.Identity != "":
		raw := "{}"
		if len(args) == 1 {
			raw = args[0]
		}
		qk, _, err := deriveKey(opts.Identity, raw, opts.Paginated, opts.NumItems)
		if err != nil {
			return commandError(formatter, codeForArgs(err), err.Error())
		}
		tag = qk.Tag
	case len(args) == 1:
		tag = args[0]
		if _, err := hex.DecodeString(tag); err != nil || len(tag) != querykey.TagLength {
			return commandError(formatter, ErrCodeInvalidArgs, fmt.Sprintf("tag %q is not %d hex digits", tag, querykey.TagLength))
		}
	default:
		return commandError(formatter, ErrCodeInvalidArgs, "a tag or --identity is required")
	}

	cfg, err := opts.loadConfig(formatter)
	if err != nil {
		return err
	}
	store, closeStore, err := openRedisStore(cfg)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, err.Error())
	}
	defer func() { _ = closeStore() }()

	boundary, err := tagcache.NewBoundary(store, nil, nil, tagcache.WithProfile(cfg.CacheLife))
	if err != nil {
		return commandError(formatter, ErrCodeConfig, err.Error())
	}
	formatter.VerboseLog("Revalidating tag %s", tag)
	if err := boundary.Revalidate(ctx, tag); err != nil {
		return commandError(formatter, ErrCodeRevalidateFailed, err.Error())
	}

	return formatter.Success(RevalidateResult{Tag: tag}, "✓ Revalidated "+tag)
}

// openRedisStore connects to the configured Redis tag store.
func openRedisStore(cfg *config.Config) (tagcache.TagStore, func() error, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil, fmt.Errorf("redis.addr is not configured")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	return tagcache.NewRedisStore(client, cfg.Redis.Prefix), client.Close, nil
}
