package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/fetcher"
	"github.com/mark-mcdougall/data-analytics/internal/geosync"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
	"github.com/mark-mcdougall/data-analytics/internal/source"
)

var syncBoundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Sync the boundary shapefile archive",
	Long: `Downloads the configured boundary archive (a ZIP of shapefile sets),
loads every contained shapefile into a canonical table, and replaces the
matching store tables. Table names derive from each file's archive path.

Use --force to ignore the ETag cache and re-download unconditionally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "sync.boundaries"))

		archiveURL, _ := cmd.Flags().GetString("url")
		if archiveURL == "" {
			archiveURL = cfg.Sources.BoundariesURL
		}
		if archiveURL == "" {
			return eris.New("sync boundaries: no archive URL (set sources.boundaries_url or --url)")
		}
		force, _ := cmd.Flags().GetBool("force")
		persistIndex, _ := cmd.Flags().GetBool("persist-index")

		if err := os.MkdirAll(cfg.Sources.TempDir, 0o755); err != nil {
			return eris.Wrapf(err, "sync boundaries: create temp dir %s", cfg.Sources.TempDir)
		}

		f, closer, err := boundariesFetcher(archiveURL, force)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer()
		}

		log.Info("loading boundary archive", zap.String("url", archiveURL))

		tables, err := source.LoadShapefileArchive(ctx, f, source.ShapefileOptions{
			URL:       archiveURL,
			TempDir:   cfg.Sources.TempDir,
			NameField: cfg.Sources.NameField,
		})
		if eris.Is(err, fetcher.ErrNotModified) {
			log.Info("archive unchanged, skipping", zap.String("url", archiveURL))
			fmt.Println("Boundaries unchanged")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "sync boundaries: load archive")
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		syncer := geosync.New(pool)
		defer syncer.Dispose()

		batch := make([]*geotable.Table, 0, len(tables))
		descs := make([]geosync.Descriptor, 0, len(tables))
		for name, tbl := range tables {
			batch = append(batch, tbl)
			descs = append(descs, geosync.Descriptor{
				TableName:        name,
				PrimaryAttribute: tbl.Primary,
				PersistIndex:     persistIndex,
			})
		}

		if err := syncer.Write(ctx, batch, descs); err != nil {
			return eris.Wrap(err, "sync boundaries: write")
		}

		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		log.Info("boundaries synced", zap.Strings("tables", names))
		fmt.Printf("Synced %d boundary tables\n", len(tables))
		return nil
	},
}

func init() {
	syncBoundariesCmd.Flags().String("url", "", "archive URL (default from config)")
	syncBoundariesCmd.Flags().Bool("force", false, "ignore the ETag cache")
	syncBoundariesCmd.Flags().Bool("persist-index", false, "store the row index as a visible column")
	syncCmd.AddCommand(syncBoundariesCmd)
}

// boundariesFetcher picks a fetcher for the archive URL. FTP mirrors get a
// plain FTP fetcher (no ETag support); HTTP sources go through the cache
// unless forced. Local paths need no fetcher at all.
func boundariesFetcher(rawURL string, force bool) (fetcher.Fetcher, func(), error) {
	u, err := url.Parse(rawURL)
	if err == nil && strings.EqualFold(u.Scheme, "ftp") {
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{}), nil, nil
	}

	if force {
		return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			RateLimiters: fetcher.DefaultRateLimiters(),
		}), nil, nil
	}

	f, cache, err := syncFetcher()
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = cache.Close() }, nil
}
