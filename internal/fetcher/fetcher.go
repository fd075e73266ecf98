// Package fetcher localizes input sources (local files, HTTP, FTP and ZIP
// archives) and reads the tabular formats census tables ship in.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads a remote source.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
