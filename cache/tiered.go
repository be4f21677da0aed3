package cache

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Stats counts the cache activity.
type Stats struct {
	MemoryHits      uint64
	MemoryMisses    uint64
	DiskHits        uint64
	DiskMisses      uint64
	DiskReads       uint64
	DiskWriteErrors uint64
}

// TileCache puts a memory tier in front of a disk tier.
type TileCache struct {
	memory Cache
	disk   Cache

	memoryHits      atomic.Uint64
	memoryMisses    atomic.Uint64
	diskHits        atomic.Uint64
	diskMisses      atomic.Uint64
	diskReads       atomic.Uint64
	diskWriteErrors atomic.Uint64
}

// New combines the two tiers.
func New(memory, disk Cache) *TileCache {
	return &TileCache{
		memory: memory,
		disk:   disk,
	}
}

// Get looks into memory then on disk. Disk hits are copied into memory.
func (c *TileCache) Get(key string) ([]byte, bool) {
	if body, err := c.memory.Get(key); err == nil {
		c.memoryHits.Add(1)
		return body, true
	}
	c.memoryMisses.Add(1)

	c.diskReads.Add(1)
	body, err := c.disk.Get(key)
	if err != nil {
		c.diskMisses.Add(1)
		return nil, false
	}
	c.diskHits.Add(1)

	if err := c.memory.Set(key, body); err != nil {
		zap.S().Warnw("cannot promote to memory", "key", key, "error", err)
	}

	return body, true
}

// Set writes to both tiers. A failing disk write is logged, the entry
// still lives in memory.
func (c *TileCache) Set(key string, body []byte) {
	if err := c.memory.Set(key, body); err != nil {
		zap.S().Warnw("cannot write to memory", "key", key, "error", err)
	}

	if err := c.disk.Set(key, body); err != nil {
		c.diskWriteErrors.Add(1)
		zap.S().Errorw("cannot write to disk", "key", key, "error", err)
	}
}

// Stats returns a snapshot of the counters.
func (c *TileCache) Stats() Stats {
	return Stats{
		MemoryHits:      c.memoryHits.Load(),
		MemoryMisses:    c.memoryMisses.Load(),
		DiskHits:        c.diskHits.Load(),
		DiskMisses:      c.diskMisses.Load(),
		DiskReads:       c.diskReads.Load(),
		DiskWriteErrors: c.diskWriteErrors.Load(),
	}
}
