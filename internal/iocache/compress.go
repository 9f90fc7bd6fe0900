package iocache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// CompressedStore wraps a CacheStore and zstd-compresses values at rest.
type CompressedStore struct {
	inner   contract.CacheStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ contract.CacheStore = &CompressedStore{} // Compile-time check

// NewCompressedStore wraps inner. Encoder and decoder are shared and used
// only through their stateless EncodeAll and DecodeAll methods.
func NewCompressedStore(inner contract.CacheStore) (*CompressedStore, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &CompressedStore{inner: inner, encoder: enc, decoder: dec}, nil
}

// Get decompresses the stored value.
func (c *CompressedStore) Get(key string) ([]byte, int, int64, error) {
	data, version, ts, err := c.inner.Get(key)
	if err != nil {
		return nil, 0, 0, err
	}
	plain, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decompress cache entry %s: %w", key, err)
	}
	return plain, version, ts, nil
}

// Set compresses value before storing it.
func (c *CompressedStore) Set(key string, value []byte, version int, timestamp int64) error {
	return c.inner.Set(key, c.encoder.EncodeAll(value, nil), version, timestamp)
}

// GetStatus delegates to the wrapped store.
func (c *CompressedStore) GetStatus() (schema.CacheStatus, error) {
	return c.inner.GetStatus()
}

// Close releases the codec and the wrapped store.
func (c *CompressedStore) Close() error {
	c.decoder.Close()
	_ = c.encoder.Close()
	return c.inner.Close()
}
