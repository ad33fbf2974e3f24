package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/xzpkg/recipe"
)

// Workspace directory layout:
//
//	workspace/
//	  lzma/                        # package-level dir (cacheDir)
//	    .cache.json                # build cache: maps "version-key" → buildEntry
//	  lzma@<version>-<key>/        # per-configuration dir (workDir)
//	    src/xz-<version>/
//	    build/
//	    install/
//	    package/
const cacheFile = ".cache.json"

// buildEntry contains metadata about a single successful build.
type buildEntry struct {
	Metadata   string    `json:"metadata"`
	PackageDir string    `json:"package_dir"`
	BuildTime  time.Time `json:"build_time"`
}

// buildCache maps "version-key" strings to their build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func cacheKey(version, key string) string {
	return version + "-" + key
}

func (c *buildCache) get(version, key string) (*buildEntry, bool) {
	entry, ok := c.Cache[cacheKey(version, key)]
	return entry, ok
}

func (c *buildCache) set(version, key string, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[cacheKey(version, key)] = entry
}

// dirKey makes a config key usable as a path element on every OS.
func dirKey(key string) string {
	return strings.NewReplacer("|", "+", " ", "").Replace(key)
}

// cacheDir returns the package-level directory for cache storage.
func (p *Pipeline) cacheDir() string {
	return filepath.Join(p.Workspace, recipe.Name)
}

// workDir returns the per-configuration directory: workspace/lzma@<version>-<key>.
func (p *Pipeline) workDir(version, key string) string {
	return filepath.Join(p.Workspace, fmt.Sprintf("%s@%s-%s", recipe.Name, version, dirKey(key)))
}

// loadCache reads the cache file from the workspace. A missing file
// yields an empty cache.
func (p *Pipeline) loadCache() (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(p.cacheDir(), cacheFile))
	if os.IsNotExist(err) {
		return &buildCache{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes the cache file to the workspace.
func (p *Pipeline) saveCache(cache *buildCache) error {
	dir := p.cacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, cacheFile), data, 0o644)
}
