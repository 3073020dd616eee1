package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geosync",
	Short: "Boundary reference-data pipeline",
	Long:  "Acquires administrative boundary datasets (zipped shapefiles, ArcGIS feature services), normalizes them to canonical geospatial tables, and syncs them into Postgres.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
