package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/poimirror/poimirror/internal/config"
	"github.com/poimirror/poimirror/internal/index"
	"github.com/poimirror/poimirror/internal/source"
	"github.com/poimirror/poimirror/internal/store"
	"github.com/poimirror/poimirror/internal/sync"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Filter string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync [scope...]",
		Short: "Fetch a snapshot from the source and reconcile the store",
		Long: `Fetch the current snapshot for one or more configured scopes and
reconcile the local store against it: new elements are created, changed
ones updated, and elements absent from a complete snapshot are marked
deleted. With no arguments every configured scope is synced in order.

An ad-hoc scope can be given with --filter instead of a scope name.

Example:
  poimirror sync --config mirror.yaml
  poimirror sync --config mirror.yaml germany
  poimirror sync --db mirror.db --filter '["currency:XBT"="yes"]'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "ad-hoc source filter instead of configured scopes")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions, args []string) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	queries, err := resolveQueries(cfg.Sync.Scopes, args, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "no scopes to sync", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeStore(st)

	client := source.NewOverpassClient(cfg.Source.Endpoint, cfg.Source.UserAgent, cfg.SourceTimeout())
	engine := sync.New(st, client, sync.WithReindexer(index.New(st)))

	out := formatter(cmd, opts.RootOptions)
	var failed int
	results := make([]*sync.Result, 0, len(queries))
	for _, q := range queries {
		res, err := engine.Sync(cmd.Context(), q)
		if err != nil {
			if errors.Is(err, sync.ErrSyncInProgress) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("scope %q already syncing", q.Name), err)
			}
			slog.Error("sync failed", "scope", q.Name, "error", err)
			failed++
			continue
		}
		results = append(results, res)
		if opts.Format != "json" {
			if err := out.Print(res, res.String()); err != nil {
				return err
			}
		}
	}

	if opts.Format == "json" {
		if err := out.Print(results, ""); err != nil {
			return err
		}
	}
	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d of %d scopes failed", failed, len(queries)), nil)
	}
	return nil
}

// resolveQueries maps command arguments onto source queries. Named
// arguments must match configured scopes; --filter builds a one-off
// query; no arguments means every configured scope.
func resolveQueries(scopes []config.Scope, names []string, filter string) ([]source.Query, error) {
	if filter != "" {
		if len(names) > 0 {
			return nil, errors.New("--filter cannot be combined with scope names")
		}
		return []source.Query{{Name: "adhoc", Filter: filter}}, nil
	}

	byName := make(map[string]source.Query, len(scopes))
	all := make([]source.Query, 0, len(scopes))
	for _, sc := range scopes {
		q := source.Query{Name: sc.Name, Filter: sc.Filter}
		byName[sc.Name] = q
		all = append(all, q)
	}

	if len(names) == 0 {
		if len(all) == 0 {
			return nil, errors.New("no scopes configured and no --filter given")
		}
		return all, nil
	}

	queries := make([]source.Query, 0, len(names))
	for _, name := range names {
		q, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown scope %q (configured: %s)", name, strings.Join(scopeNames(scopes), ", "))
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func scopeNames(scopes []config.Scope) []string {
	names := make([]string, len(scopes))
	for i, sc := range scopes {
		names[i] = sc.Name
	}
	return names
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
