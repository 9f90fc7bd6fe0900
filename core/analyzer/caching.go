package analyzer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/huangsam/codeintel/schema"
)

// currentCacheVersion defines the version of the cached FileAnalysis schema
const currentCacheVersion = 1

// checkCacheHit attempts to retrieve and validate a cached result
func (a *Analyzer) checkCacheHit(key string) *schema.FileAnalysis {
	if a.cache == nil {
		return nil
	}
	data, version, ts, err := a.cache.Get(key)
	if err != nil {
		return nil // Cache miss
	}

	// Validate version and staleness
	if version != currentCacheVersion {
		return nil
	}
	if a.cfg.CacheTTL > 0 && time.Since(time.Unix(ts, 0)) > a.cfg.CacheTTL {
		return nil
	}
	var result schema.FileAnalysis
	if err := json.Unmarshal(data, &result); err != nil {
		a.logger.Debug("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &result
}

// storeResult stores the result in cache
func (a *Analyzer) storeResult(key string, fa *schema.FileAnalysis) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(fa)
	if err != nil {
		return
	}
	if err := a.cache.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
		a.logger.Warn("cache write failed", zap.String("file", fa.FilePath), zap.Error(err))
	}
}

// generateCacheKey creates a unique key from the file identity and modification time
func generateCacheKey(path, display string, modTime time.Time) string {
	key := fmt.Sprintf("%s|%s|%d", path, display, modTime.UnixNano())
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}
