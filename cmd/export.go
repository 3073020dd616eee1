package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/geosync"
	"github.com/mark-mcdougall/data-analytics/internal/server"
)

var exportCmd = &cobra.Command{
	Use:   "export <table>",
	Short: "Export a store table as GeoJSON",
	Long: `Reads a synced table back from the store, decodes its geometry, and
writes a GeoJSON FeatureCollection to --out (or stdout).

Use --index to name the attribute that keys the rows.
Use --types to coerce text columns, e.g. --types easting=integer,area=float.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "export"))

		tableName := args[0]
		outPath, _ := cmd.Flags().GetString("out")
		indexAttr, _ := cmd.Flags().GetString("index")
		typesStr, _ := cmd.Flags().GetString("types")

		typeMap, err := parseTypeMap(typesStr)
		if err != nil {
			return err
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		syncer := geosync.New(pool)
		defer syncer.Dispose()

		tbl, err := syncer.Read(ctx, tableName, typeMap, indexAttr)
		if err != nil {
			return eris.Wrapf(err, "export: read %s", tableName)
		}

		fc, err := server.FeatureCollection(tbl)
		if err != nil {
			return eris.Wrapf(err, "export: encode %s", tableName)
		}

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", outPath)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fc); err != nil {
			return eris.Wrapf(err, "export: write %s", tableName)
		}

		log.Info("table exported",
			zap.String("table", tableName),
			zap.Int("features", len(fc.Features)),
		)
		if outPath != "" {
			fmt.Printf("Exported %s to %s\n", tableName, outPath)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	exportCmd.Flags().String("index", "", "attribute to key rows by")
	exportCmd.Flags().String("types", "", "comma-separated column=type coercions")
	rootCmd.AddCommand(exportCmd)
}

// parseTypeMap parses "col=type,col=type" into a coercion map.
func parseTypeMap(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}

	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		col, typ, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || col == "" || typ == "" {
			return nil, eris.Errorf("export: malformed type coercion %q (want column=type)", pair)
		}
		m[col] = typ
	}
	return m, nil
}
