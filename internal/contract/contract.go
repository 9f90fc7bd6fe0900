// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"time"

	"github.com/huangsam/codeintel/schema"
)

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetAnalysisCache() CacheStore
	GetHistoryStore() HistoryStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// HistoryStore defines the interface for tracking workspace runs and per-file metrics.
type HistoryStore interface {
	// BeginRun creates a new run for a workspace root and returns its unique ID
	BeginRun(root string, startTime time.Time, configParams map[string]any) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, totals RunTotals) error

	// RecordFileMetrics stores the structural metrics for a file
	RecordFileMetrics(runID int64, filePath string, metrics schema.FileRunMetrics) error

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// GetAllRuns returns every recorded run ordered by ID
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllFileMetrics returns every per-file row ordered by run and path
	GetAllFileMetrics() ([]schema.FileRunRecord, error)

	// Close closes the underlying connection
	Close() error
}

// RunTotals are the aggregate counters written when a run completes.
type RunTotals struct {
	Files           int
	Failures        int
	Snippets        int
	PrimaryLanguage string
}
