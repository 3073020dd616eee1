package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mark-mcdougall/data-analytics/internal/fetcher"
	"github.com/mark-mcdougall/data-analytics/internal/geosync"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
	"github.com/mark-mcdougall/data-analytics/internal/source"
)

var syncRegionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Sync region feature services",
	Long: `Downloads each configured feature-service endpoint (GeoJSON feature
collections), normalizes the features to canonical tables, and replaces the
matching store tables. Endpoints download in parallel up to
sources.concurrency.

Use --endpoints to restrict to specific endpoint names.
Use --lookup to cross-check area codes against an ONS code register workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "sync.regions"))

		endpoints, err := selectEndpoints(cmd)
		if err != nil {
			return err
		}
		if len(endpoints) == 0 {
			return eris.New("sync regions: no endpoints configured (set sources.endpoints)")
		}

		lookupPath, _ := cmd.Flags().GetString("lookup")
		var lookup map[string]string
		if lookupPath != "" {
			lookup, err = source.LoadLookup(lookupPath, source.LookupOptions{SkipRows: 1})
			if err != nil {
				return eris.Wrap(err, "sync regions: load code register")
			}
		}

		f, cache, err := syncFetcher()
		if err != nil {
			return err
		}
		defer cache.Close()

		tables := make([]*geotable.Table, len(endpoints))
		skipped := make([]bool, len(endpoints))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Sources.Concurrency)
		for i, ep := range endpoints {
			i, ep := i, ep
			g.Go(func() error {
				tbl, err := source.LoadFeatureService(gctx, f, ep)
				if eris.Is(err, fetcher.ErrNotModified) {
					log.Info("endpoint unchanged, skipping", zap.String("endpoint", ep.Name))
					skipped[i] = true
					return nil
				}
				if err != nil {
					return eris.Wrapf(err, "sync regions: endpoint %s", ep.Name)
				}
				tables[i] = tbl
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		batch := make([]*geotable.Table, 0, len(endpoints))
		descs := make([]geosync.Descriptor, 0, len(endpoints))
		for i, tbl := range tables {
			if skipped[i] || tbl == nil {
				continue
			}
			if lookup != nil {
				if err := checkCodes(tbl, lookup, log); err != nil {
					return err
				}
			}
			batch = append(batch, tbl)
			descs = append(descs, geosync.Descriptor{
				TableName:        endpoints[i].Name,
				PrimaryAttribute: tbl.Primary,
			})
		}

		if len(batch) == 0 {
			fmt.Println("Regions unchanged")
			return nil
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		syncer := geosync.New(pool)
		defer syncer.Dispose()

		if err := syncer.Write(ctx, batch, descs); err != nil {
			return eris.Wrap(err, "sync regions: write")
		}

		log.Info("regions synced", zap.Int("tables", len(batch)))
		fmt.Printf("Synced %d region tables\n", len(batch))
		return nil
	},
}

func init() {
	syncRegionsCmd.Flags().String("endpoints", "", "comma-separated endpoint names (default all)")
	syncRegionsCmd.Flags().String("lookup", "", "path to an ONS code register .xlsx for code validation")
	syncCmd.AddCommand(syncRegionsCmd)
}

// selectEndpoints applies the --endpoints filter to the configured list.
func selectEndpoints(cmd *cobra.Command) ([]source.FeatureEndpoint, error) {
	filter, _ := cmd.Flags().GetString("endpoints")
	if filter == "" {
		return cfg.Sources.Endpoints, nil
	}

	byName := make(map[string]source.FeatureEndpoint, len(cfg.Sources.Endpoints))
	for _, ep := range cfg.Sources.Endpoints {
		byName[ep.Name] = ep
	}

	var out []source.FeatureEndpoint
	for _, name := range strings.Split(filter, ",") {
		name = strings.TrimSpace(name)
		ep, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("sync regions: unknown endpoint %q", name)
		}
		out = append(out, ep)
	}
	return out, nil
}

// checkCodes verifies every area code in the table appears in the register.
// Unknown codes are logged, not fatal; a table with no code column is an error.
func checkCodes(tbl *geotable.Table, lookup map[string]string, log *zap.Logger) error {
	ci := tbl.ColumnIndex("code")
	if ci < 0 {
		return eris.Errorf("sync regions: table %s has no code column to validate", tbl.Name)
	}

	for _, row := range tbl.Rows {
		code, _ := row[ci].(string)
		if _, ok := lookup[code]; !ok {
			log.Warn("area code not in register",
				zap.String("table", tbl.Name),
				zap.String("code", code),
			)
		}
	}
	return nil
}
