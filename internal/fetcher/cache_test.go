package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETagCache_RoundTrip(t *testing.T) {
	cache, err := OpenETagCache(filepath.Join(t.TempDir(), "etags.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	etag, err := cache.Get("https://example.com/boundaries.zip")
	require.NoError(t, err)
	assert.Empty(t, etag, "unknown url has no etag")

	require.NoError(t, cache.Put("https://example.com/boundaries.zip", `"v1"`))
	etag, err = cache.Get("https://example.com/boundaries.zip")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)

	// Re-recording overwrites.
	require.NoError(t, cache.Put("https://example.com/boundaries.zip", `"v2"`))
	etag, err = cache.Get("https://example.com/boundaries.zip")
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, etag)
}

func TestETagCache_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etags.db")

	cache, err := OpenETagCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("https://example.com/a", `"x"`))
	require.NoError(t, cache.Close())

	cache, err = OpenETagCache(path)
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	etag, err := cache.Get("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, `"x"`, etag)
}

func TestCachedFetcher_SkipsUnchangedDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("boundary payload"))
	}))
	defer srv.Close()

	cache, err := OpenETagCache(filepath.Join(t.TempDir(), "etags.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	f := WithCache(NewHTTPFetcher(HTTPOptions{}), cache)

	// First download: no cached etag, full fetch.
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "boundary payload", string(data))

	etag, err := cache.Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)

	// Second download: provider reports unchanged.
	_, err = f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotModified))
}
