package iocache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// CacheStoreManager owns the analysis cache and the history store.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during close
	analysis     contract.CacheStore
	history      contract.HistoryStore
	closeOnce    sync.Once
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// Options selects the backends of a CacheStoreManager.
type Options struct {
	CacheBackend     schema.DatabaseBackend
	CacheConnStr     string
	HistoryBackend   schema.DatabaseBackend
	HistoryConnStr   string
	CompressAnalysis bool
}

// NewCacheStoreManager opens both stores. On failure nothing is left open.
func NewCacheStoreManager(opts Options) (*CacheStoreManager, error) {
	cacheStore, err := NewCacheStore(AnalysisCacheTable, opts.CacheBackend, opts.CacheConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis cache: %w", err)
	}
	var analysis contract.CacheStore = cacheStore
	if opts.CompressAnalysis && opts.CacheBackend != schema.NoneBackend {
		compressed, err := NewCompressedStore(cacheStore)
		if err != nil {
			_ = cacheStore.Close()
			return nil, err
		}
		analysis = compressed
	}

	history, err := NewHistoryStore(opts.HistoryBackend, opts.HistoryConnStr)
	if err != nil {
		_ = analysis.Close()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}
	return &CacheStoreManager{analysis: analysis, history: history}, nil
}

// GetAnalysisCache returns the analysis CacheStore.
func (mgr *CacheStoreManager) GetAnalysisCache() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.analysis
}

// GetHistoryStore returns the HistoryStore.
func (mgr *CacheStoreManager) GetHistoryStore() contract.HistoryStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.history
}

// Close closes both stores once.
func (mgr *CacheStoreManager) Close() error {
	var err error
	mgr.closeOnce.Do(func() {
		mgr.Lock()
		defer mgr.Unlock()
		if mgr.analysis != nil {
			err = errors.Join(err, mgr.analysis.Close())
		}
		if mgr.history != nil {
			err = errors.Join(err, mgr.history.Close())
		}
	})
	return err
}

// ClearCache removes every cached analysis entry.
func ClearCache(backend schema.DatabaseBackend, connStr string) error {
	if backend == schema.NoneBackend {
		return nil
	}
	store, err := NewCacheStore(AnalysisCacheTable, backend, connStr)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Clear()
}

// ClearHistory removes every recorded run.
func ClearHistory(backend schema.DatabaseBackend, connStr string) error {
	if backend == schema.NoneBackend {
		return nil
	}
	store, err := NewHistoryStore(backend, connStr)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Clear()
}
