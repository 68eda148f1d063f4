// Package popgrid retrieves and loads the national statistical population
// grid: a coarse quadrant index plus one cell shard archive per quadrant,
// published as zipped shapefiles on the census geo server.
package popgrid

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FetchOptions configures the grid archive fetcher.
type FetchOptions struct {
	// IndexURL is the quadrant index archive (the 500 km aggregated grid).
	IndexURL string
	// BaseURL is the directory holding the per-quadrant shard archives
	// (grade_id<N>.zip). http(s) and ftp schemes are supported.
	BaseURL string
	// CacheDir is where downloaded archives and extracted shapefiles live
	// across runs.
	CacheDir string
	// Timeout bounds a single download. Downloads are never retried within
	// a run; a failed shard degrades to "unavailable".
	Timeout time.Duration
	// RatePerSec throttles requests against the grid server.
	RatePerSec float64
}

// Fetcher downloads grid archives with an on-disk cache.
type Fetcher struct {
	opts    FetchOptions
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher with the given options.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 2
	}
	return &Fetcher{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// FetchIndex fetches the quadrant index archive and returns the path to its
// extracted .shp file.
func (f *Fetcher) FetchIndex(ctx context.Context) (string, error) {
	return f.fetchArchive(ctx, f.opts.IndexURL, filepath.Join(f.opts.CacheDir, "grade_500km"))
}

// FetchShard fetches one shard archive and returns the path to its extracted
// .shp file.
func (f *Fetcher) FetchShard(ctx context.Context, id int) (string, error) {
	archiveURL := fmt.Sprintf("%s/grade_id%d.zip", strings.TrimRight(f.opts.BaseURL, "/"), id)
	return f.fetchArchive(ctx, archiveURL, filepath.Join(f.opts.CacheDir, fmt.Sprintf("grade_id%d", id)))
}

// fetchArchive downloads a grid ZIP (unless already cached) and extracts it.
// Returns the path to the extracted .shp file.
func (f *Fetcher) fetchArchive(ctx context.Context, rawURL, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "popgrid.fetch"),
		zap.String("url", rawURL),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "popgrid: create dest dir")
	}

	parts := strings.Split(rawURL, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(destDir, zipName)

	// Skip download if the archive already exists with content.
	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("archive already cached", zap.String("path", zipPath))
	} else {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "popgrid: rate limit wait")
		}
		log.Info("downloading grid archive")
		if err := f.downloadFile(ctx, rawURL, zipPath); err != nil {
			// Leave no partial archive behind to poison the cache.
			_ = os.Remove(zipPath)
			return "", eris.Wrap(err, "popgrid: download archive")
		}
	}

	if err := extractZIP(zipPath, destDir); err != nil {
		return "", eris.Wrap(err, "popgrid: extract archive")
	}

	shpPath, err := findFileByExt(destDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "popgrid: find .shp file")
	}
	return shpPath, nil
}

// downloadFile downloads a URL to a local file, over HTTP or FTP.
func (f *Fetcher) downloadFile(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse url")
	}
	if u.Scheme == "ftp" {
		return f.downloadFTP(ctx, rawURL, dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}

	return nil
}

// extractZIP extracts a ZIP archive to the destination directory, flattening
// entry paths to base names.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(zf.Name)
		destPath := filepath.Join(destDir, name)
		if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return eris.Errorf("illegal path %q in archive", zf.Name)
		}

		rc, err := zf.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", zf.Name)
		}

		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}

		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", zf.Name)
		}
		_ = out.Close()
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
