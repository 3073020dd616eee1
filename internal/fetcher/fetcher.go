// Package fetcher downloads source payloads (boundary archives, feature
// collections) over HTTP or FTP, with retry, per-host rate limiting, and a
// local ETag cache so unchanged sources are not re-downloaded.
package fetcher

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// ErrFetch indicates the source was unreachable or responded non-success.
var ErrFetch = eris.New("fetcher: fetch failed")

// ErrMalformedArchive indicates a corrupt archive or unexpected layout.
var ErrMalformedArchive = eris.New("fetcher: malformed archive")

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
