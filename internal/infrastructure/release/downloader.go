// Package release downloads published binaries and checksum manifests from
// the versioned releases origin.
package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"boringcache.com/setup/internal/core/checksum"
)

const manifestAsset = "SHA256SUMS"

const userAgent = "boringcache-setup/1.0"

// Downloader fetches release assets over HTTP.
type Downloader struct {
	baseURL    string
	httpClient *http.Client
}

// NewDownloader creates a downloader against the given releases base URL,
// shaped `<base>/<version>/<asset>`.
func NewDownloader(baseURL string) *Downloader {
	return &Downloader{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // release binaries are tens of MB
		},
	}
}

// AssetURL returns the download URL for an asset of a release version.
func (d *Downloader) AssetURL(version, asset string) string {
	return fmt.Sprintf("%s/%s/%s", d.baseURL, version, asset)
}

func (d *Downloader) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download of %s failed: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download of %s failed with status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// DownloadAsset streams a release asset into destDir and returns the local
// path of the downloaded file.
func (d *Downloader) DownloadAsset(ctx context.Context, version, asset, destDir string) (string, error) {
	body, err := d.get(ctx, d.AssetURL(version, asset))
	if err != nil {
		return "", err
	}
	defer body.Close()

	destPath := filepath.Join(destDir, asset)
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("failed to finalize %s: %w", destPath, err)
	}
	return destPath, nil
}

// FetchManifest downloads and parses the SHA256SUMS manifest of a release.
// The manifest is fetched fresh per install attempt and never persisted.
func (d *Downloader) FetchManifest(ctx context.Context, version string) (checksum.Manifest, error) {
	body, err := d.get(ctx, d.AssetURL(version, manifestAsset))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	manifest, err := checksum.ParseManifest(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", manifestAsset, err)
	}
	return manifest, nil
}
