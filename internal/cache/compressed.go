package cache

import "github.com/klauspost/compress/zstd"

// zstd encoder and decoder are safe for concurrent use and reused across calls
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// blob is one stored payload. Incompressible payloads are kept raw.
type blob struct {
	data       []byte
	compressed bool
	size       int
}

// ByteCache is an LRU of byte payloads stored zstd-compressed when that saves space.
// TECHNICAL DISCOVERY: Synthesized audio dominates cache memory. Entries are bounded
// by count, so shrinking each entry is the only lever on footprint.
type ByteCache struct {
	lru *LRU[blob]
}

// NewByteCache creates a compressed byte cache with the given entry bound
func NewByteCache(name string, capacity int) *ByteCache {
	return &ByteCache{lru: NewLRU[blob](name, capacity)}
}

// Get returns a copy of the original bytes
func (c *ByteCache) Get(key string) ([]byte, bool) {
	b, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !b.compressed {
		out := make([]byte, len(b.data))
		copy(out, b.data)
		return out, true
	}
	out, err := zstdDecoder.DecodeAll(b.data, make([]byte, 0, b.size))
	if err != nil || len(out) != b.size {
		// A corrupt entry behaves like a miss; the caller falls through to the provider
		return nil, false
	}
	return out, true
}

// Put stores value, compressing it when the result is smaller
func (c *ByteCache) Put(key string, value []byte) {
	c.lru.Put(key, encodeBlob(value))
}

func encodeBlob(value []byte) blob {
	compressed := zstdEncoder.EncodeAll(value, nil)
	if len(compressed) < len(value) {
		return blob{data: compressed, compressed: true, size: len(value)}
	}
	raw := make([]byte, len(value))
	copy(raw, value)
	return blob{data: raw, size: len(value)}
}

// Len returns the current entry count
func (c *ByteCache) Len() int { return c.lru.Len() }

// Capacity returns the entry bound
func (c *ByteCache) Capacity() int { return c.lru.Capacity() }

// Stats returns size, bound and counters
func (c *ByteCache) Stats() Stats { return c.lru.Stats() }

