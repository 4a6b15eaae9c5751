package fs

import (
	"sync"
	"unsafe"
)

const cacheCapacity = 16 /// resident-block budget (spec §4.1, "e.g., 16")

// cacheEntry is one resident block: its id, bytes, and dirty flag, guarded
// by its own mutex so the global cache's critical section need only be held
// long enough to find or insert the entry (spec §5 "Block cache entries").
type cacheEntry struct {
	mu       sync.Mutex
	blockID  int
	bytes    [BlockSize]byte
	modified bool
}

// BlockCache is a bounded, write-back cache of disk blocks, FIFO-with-
// replacement once full (spec §4.1). At most one entry exists per block id.
type BlockCache struct {
	mu      sync.Mutex
	dev     BlockDevice
	order   []int // FIFO order of resident block ids, oldest first
	entries map[int]*cacheEntry
}

/// NewBlockCache wraps dev with an empty cache.
func NewBlockCache(dev BlockDevice) *BlockCache {
	return &BlockCache{dev: dev, entries: make(map[int]*cacheEntry)}
}

// Get returns the resident entry for blockID, reading it from the device
// and evicting the oldest entry whose mutex no caller holds (writing it
// back first if modified) when the cache is already at capacity.
func (bc *BlockCache) get(blockID int) *cacheEntry {
	bc.mu.Lock()
	if e, ok := bc.entries[blockID]; ok {
		bc.mu.Unlock()
		return e
	}
	if len(bc.order) >= cacheCapacity {
		for i, victim := range bc.order {
			ve := bc.entries[victim]
			if !ve.mu.TryLock() {
				continue // held by a caller: not evictable
			}
			if ve.modified {
				bc.dev.WriteBlock(ve.blockID, ve.bytes[:])
				ve.modified = false
			}
			ve.mu.Unlock()
			bc.order = append(bc.order[:i:i], bc.order[i+1:]...)
			delete(bc.entries, victim)
			break
		}
	}
	e := &cacheEntry{blockID: blockID}
	bc.dev.ReadBlock(blockID, e.bytes[:])
	bc.entries[blockID] = e
	bc.order = append(bc.order, blockID)
	bc.mu.Unlock()
	return e
}

func (bc *BlockCache) writeBackLocked(e *cacheEntry) {
	e.mu.Lock()
	if e.modified {
		bc.dev.WriteBlock(e.blockID, e.bytes[:])
		e.modified = false
	}
	e.mu.Unlock()
}

/// SyncAll flushes every modified entry to the device (spec §4.1 sync_all).
func (bc *BlockCache) SyncAll() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, id := range bc.order {
		bc.writeBackLocked(bc.entries[id])
	}
}

func checkBounds(offset, size int) {
	if offset < 0 || offset+size > BlockSize {
		panic("fs: block cache access out of range")
	}
}

// Read obtains a byte-exact copy of a T-shaped value at offset within
// blockID, by invoking f with a pointer reinterpreting those bytes as *T
// (spec §4.1 read<T>). T must be a plain-data layout; do not store Go
// pointers in T.
func Read[T any](bc *BlockCache, blockID, offset int, f func(*T)) {
	var z T
	checkBounds(offset, int(unsafe.Sizeof(z)))
	e := bc.get(blockID)
	e.mu.Lock()
	defer e.mu.Unlock()
	f((*T)(unsafe.Pointer(&e.bytes[offset])))
}

// Modify is Read's mutable counterpart: it marks the entry dirty before
// invoking f (spec §4.1 modify<T>).
func Modify[T any](bc *BlockCache, blockID, offset int, f func(*T)) {
	var z T
	checkBounds(offset, int(unsafe.Sizeof(z)))
	e := bc.get(blockID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modified = true
	f((*T)(unsafe.Pointer(&e.bytes[offset])))
}
