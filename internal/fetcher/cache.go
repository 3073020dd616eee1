package fetcher

import (
	"context"
	"database/sql"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ETagCache records the last-seen ETag per source URL in a local SQLite file,
// so pipeline reruns skip downloads the provider reports unchanged.
type ETagCache struct {
	db *sql.DB
}

// OpenETagCache opens (creating if needed) the cache database at path.
func OpenETagCache(path string) (*ETagCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "etag cache: open")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS etags (
			url        TEXT PRIMARY KEY,
			etag       TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "etag cache: migrate")
	}

	return &ETagCache{db: db}, nil
}

// Get returns the cached ETag for a URL, or empty string if none is recorded.
func (c *ETagCache) Get(url string) (string, error) {
	var etag string
	err := c.db.QueryRow("SELECT etag FROM etags WHERE url = ?", url).Scan(&etag)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "etag cache: get")
	}
	return etag, nil
}

// Put records the ETag observed for a URL.
func (c *ETagCache) Put(url, etag string) error {
	_, err := c.db.Exec(`
		INSERT INTO etags (url, etag, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET etag = excluded.etag, fetched_at = excluded.fetched_at`,
		url, etag, time.Now().UTC(),
	)
	return eris.Wrap(err, "etag cache: put")
}

// Close releases the cache database.
func (c *ETagCache) Close() error {
	return c.db.Close()
}

// ErrNotModified indicates the provider reported the cached copy is current.
var ErrNotModified = eris.New("fetcher: not modified")

// CachedFetcher wraps a Fetcher with the ETag cache. Download returns
// ErrNotModified when the provider reports no change since the recorded ETag.
type CachedFetcher struct {
	inner Fetcher
	cache *ETagCache
}

// WithCache wraps f so its downloads consult and update the ETag cache.
func WithCache(f Fetcher, cache *ETagCache) *CachedFetcher {
	return &CachedFetcher{inner: f, cache: cache}
}

func (c *CachedFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	prev, err := c.cache.Get(url)
	if err != nil {
		return nil, err
	}

	body, etag, changed, err := c.inner.DownloadIfChanged(ctx, url, prev)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, eris.Wrapf(ErrNotModified, "%s", url)
	}

	if etag != "" {
		if err := c.cache.Put(url, etag); err != nil {
			_ = body.Close()
			return nil, err
		}
	}
	return body, nil
}

func (c *CachedFetcher) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	body, err := c.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: create %s", path)
	}
	defer out.Close()

	n, err := io.Copy(out, body)
	if err != nil {
		return n, eris.Wrapf(err, "fetcher: write %s", path)
	}
	return n, nil
}

func (c *CachedFetcher) DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error) {
	return c.inner.DownloadIfChanged(ctx, url, etag)
}
