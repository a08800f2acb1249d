package stake

import (
	lru "github.com/hashicorp/golang-lru"
)

// epochCache remembers recently seen epochs' lock checkpoints, an LRU of
// recent snapshots avoiding recomputation for epochs already processed.
type epochCache struct {
	cache *lru.Cache
}

func newEpochCache(size int) *epochCache {
	c, err := lru.New(size)
	if err != nil {
		// Only returns an error for a non-positive size, which newEpochCache
		// callers never pass.
		panic(err)
	}
	return &epochCache{cache: c}
}

func (c *epochCache) put(epoch uint64, lockCheckpoint []byte) {
	c.cache.Add(epoch, lockCheckpoint)
}

func (c *epochCache) get(epoch uint64) ([]byte, bool) {
	v, ok := c.cache.Get(epoch)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}
