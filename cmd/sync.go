package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mark-mcdougall/data-analytics/internal/db"
	"github.com/mark-mcdougall/data-analytics/internal/fetcher"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync boundary datasets into the store",
	Long:  "Fetches boundary datasets from their providers and replaces the corresponding store tables.",
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// storePool creates the pgx pool for the configured store.
func storePool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("sync: no database_url configured (set store.database_url or GEOSYNC_STORE_DATABASE_URL)")
	}

	return db.NewPool(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// syncFetcher builds the HTTP fetcher wrapped with the ETag cache. Callers
// must close the returned cache.
func syncFetcher() (fetcher.Fetcher, *fetcher.ETagCache, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	cache, err := fetcher.OpenETagCache(cfg.Sources.ETagCachePath)
	if err != nil {
		return nil, nil, err
	}

	return fetcher.WithCache(f, cache), cache, nil
}
