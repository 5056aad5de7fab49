package binary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// versionCacheTTL is the freshness window for a cached "latest version"
// lookup. Entries older than this are treated as absent.
const versionCacheTTL = time.Hour

// versionCache is the persisted result of a successful latest-version
// lookup. It exists so repeated invocations within the freshness window do
// not hit the release API every time.
type versionCache struct {
	LatestVersion string    `json:"latest_version"`
	CheckedAt     time.Time `json:"checked_at"`
}

// fresh reports whether the entry is still inside the freshness window.
func (c *versionCache) fresh(now time.Time) bool {
	if c == nil || c.LatestVersion == "" {
		return false
	}
	return now.Sub(c.CheckedAt) < versionCacheTTL
}

// loadVersionCache reads the cache file. A missing or malformed file is
// treated as no cache.
func loadVersionCache(path string) *versionCache {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cache versionCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil
	}
	return &cache
}

// saveVersionCache writes the cache file. Failures are the caller's to
// swallow: a cache that cannot be written only costs a future remote call.
func saveVersionCache(path string, cache *versionCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
