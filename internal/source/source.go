// Package source downloads and unpacks the upstream xz release tarball.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/goplus/xzpkg/internal/logging"
	"github.com/goplus/xzpkg/recipe"
)

// DefaultBaseURL is where upstream publishes release tarballs.
const DefaultBaseURL = "https://tukaani.org/xz"

// Format is the archive flavor to fetch.
type Format string

const (
	TarGz Format = "tar.gz"
	TarXz Format = "tar.xz"
)

// ParseFormat accepts "tar.gz", "gz", "tar.xz" and "xz".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "tar.gz", "gz", "tgz":
		return TarGz, nil
	case "tar.xz", "xz", "txz":
		return TarXz, nil
	}
	return "", recipe.Errorf(recipe.ErrConfig, "unsupported archive format %q", s)
}

// Fetcher acquires the source tree of one release.
type Fetcher struct {
	BaseURL string
	Format  Format
	Client  *http.Client
	// SHA256 is the expected hex digest of the archive. Verification is
	// skipped when empty.
	SHA256 string
	Log    logrus.FieldLogger
}

// New returns a Fetcher for the upstream tar.gz archives.
func New() *Fetcher {
	return &Fetcher{
		BaseURL: DefaultBaseURL,
		Format:  TarGz,
		Client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Dirname returns the top-level directory name of the release tarball.
func Dirname(version string) string {
	return "xz-" + version
}

// URL returns the download URL of version.
func (f *Fetcher) URL(version string) string {
	base := f.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	format := f.Format
	if format == "" {
		format = TarGz
	}
	return fmt.Sprintf("%s/%s.%s", strings.TrimSuffix(base, "/"), Dirname(version), format)
}

// Fetch downloads version into workDir and extracts it to
// workDir/xz-<version>, replacing whatever was there. The archive is
// always removed. It returns the extracted source directory.
func (f *Fetcher) Fetch(ctx context.Context, version, workDir string) (string, error) {
	if !recipe.ValidVersion(version) {
		return "", recipe.Errorf(recipe.ErrConfig, "invalid version %q", version)
	}
	log := logging.OrDiscard(f.Log).WithField("version", version)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "create work dir: %w", err)
	}

	archive, err := os.CreateTemp(workDir, ".download-*")
	if err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "create archive: %w", err)
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	url := f.URL(version)
	log.WithField("url", url).Info("downloading source")
	sum, n, err := f.download(ctx, url, archive)
	if err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "download %s: %w", url, err)
	}
	log.Debugf("downloaded %s", humanize.Bytes(uint64(n)))

	if f.SHA256 != "" && !strings.EqualFold(sum, f.SHA256) {
		return "", recipe.Errorf(recipe.ErrAcquire, "checksum mismatch for %s: got sha256 %s, want %s", url, sum, f.SHA256)
	}

	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "rewind archive: %w", err)
	}

	stage, err := os.MkdirTemp(workDir, ".extract-*")
	if err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	format := f.Format
	if format == "" {
		format = TarGz
	}
	if err := Extract(archive, format, stage); err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "extract %s: %w", url, err)
	}

	root := filepath.Join(stage, Dirname(version))
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return "", recipe.Errorf(recipe.ErrAcquire, "archive %s has no top-level %s directory", url, Dirname(version))
	}

	dest := filepath.Join(workDir, Dirname(version))
	if err := os.RemoveAll(dest); err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "remove stale source: %w", err)
	}
	if err := os.Rename(root, dest); err != nil {
		return "", recipe.Errorf(recipe.ErrAcquire, "install source: %w", err)
	}
	log.WithField("dir", dest).Info("source ready")
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, url string, w io.Writer) (sum string, n int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	h := sha256.New()
	n, err = io.Copy(io.MultiWriter(w, h), resp.Body)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
