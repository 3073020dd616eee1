package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-mcdougall/data-analytics/internal/config"
	"github.com/mark-mcdougall/data-analytics/internal/source"
)

func TestSelectEndpoints(t *testing.T) {
	prev := cfg
	defer func() { cfg = prev }()

	cfg = &config.Config{
		Sources: config.SourcesConfig{
			Endpoints: []source.FeatureEndpoint{
				{Name: "english_regions"},
				{Name: "welsh_regions"},
				{Name: "scottish_regions"},
			},
		},
	}

	t.Run("no filter returns all", func(t *testing.T) {
		require.NoError(t, syncRegionsCmd.Flags().Set("endpoints", ""))
		got, err := selectEndpoints(syncRegionsCmd)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("filter selects named endpoints in order", func(t *testing.T) {
		require.NoError(t, syncRegionsCmd.Flags().Set("endpoints", "scottish_regions, english_regions"))
		got, err := selectEndpoints(syncRegionsCmd)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "scottish_regions", got[0].Name)
		assert.Equal(t, "english_regions", got[1].Name)
	})

	t.Run("unknown name errors", func(t *testing.T) {
		require.NoError(t, syncRegionsCmd.Flags().Set("endpoints", "moon_regions"))
		_, err := selectEndpoints(syncRegionsCmd)
		require.Error(t, err)
	})
}
