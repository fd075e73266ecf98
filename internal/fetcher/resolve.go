package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/config"
)

// SupportedExts lists the formats a source may resolve to, in the order
// they are preferred when an archive holds several.
var SupportedExts = []string{".geojson", ".json", ".shp", ".csv", ".xlsx"}

// Resolver turns a source location into a local file path.
type Resolver struct {
	HTTP    Fetcher
	FTP     Fetcher
	TempDir string

	mu   sync.Mutex
	dirs []string
}

// NewResolver builds a Resolver with HTTP and FTP fetchers from config.
func NewResolver(cfg config.FetchConfig) *Resolver {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	return &Resolver{
		HTTP: NewHTTPFetcher(HTTPOptions{
			UserAgent:  cfg.UserAgent,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}),
		FTP:     NewFTPFetcher(FTPOptions{Timeout: timeout}),
		TempDir: cfg.TempDir,
	}
}

// Localize returns a local path for src. Local paths and file:// URLs pass
// through; http(s) and ftp URLs are downloaded into a temp directory. A
// .zip is extracted and the first file with a supported extension is
// returned.
func (r *Resolver) Localize(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", eris.New("fetcher: empty source")
	}

	local, err := r.fetch(ctx, src)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, nil
	}

	dir, err := r.tempDir("unzip-*")
	if err != nil {
		return "", err
	}
	files, err := ExtractZIP(local, dir)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: extract %s", src)
	}
	found, ok := FindByExt(files, SupportedExts...)
	if !ok {
		return "", eris.Errorf("fetcher: no supported file in archive %s", src)
	}
	zap.L().Debug("fetcher: extracted archive",
		zap.String("source", src),
		zap.String("file", filepath.Base(found)),
		zap.Int("entries", len(files)),
	)
	return found, nil
}

func (r *Resolver) fetch(ctx context.Context, src string) (string, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return statLocal(src)
	}

	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "file":
		return statLocal(u.Path)
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, src)
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}

	dir, err := r.tempDir("src-*")
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download"
	}
	dest := filepath.Join(dir, name)

	start := time.Now()
	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", src)
	}
	zap.L().Info("fetcher: downloaded source",
		zap.String("source", src),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dest, nil
}

func statLocal(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: stat %s", p)
	}
	if info.IsDir() {
		return "", eris.Errorf("fetcher: %s is a directory", p)
	}
	return p, nil
}

func (r *Resolver) tempDir(pattern string) (string, error) {
	base := r.TempDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", eris.Wrap(err, "fetcher: create temp dir")
		}
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	r.mu.Lock()
	r.dirs = append(r.dirs, dir)
	r.mu.Unlock()
	return dir, nil
}

// Close removes every temp directory the resolver created.
func (r *Resolver) Close() error {
	r.mu.Lock()
	dirs := r.dirs
	r.dirs = nil
	r.mu.Unlock()

	var first error
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil && first == nil {
			first = eris.Wrap(err, "fetcher: remove temp dir")
		}
	}
	return first
}
