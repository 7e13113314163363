// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"

	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// BinArraySize is the fixed number of bins packed into one discrete-bin
// array account.
const BinArraySize = 70

const minBinArrayRecordSize = BinArraySize * 16 // two u64 amounts per bin

// Bin holds the reserves of one discretised-bin bucket.
type Bin struct {
	AmountX uint64
	AmountY uint64
}

// Empty reports whether both sides of the bin are drained.
func (b Bin) Empty() bool { return b.AmountX == 0 && b.AmountY == 0 }

// BinArrayID identifies a bin array by (pool, array index) — the cache's
// primary key.
type BinArrayID struct {
	Pool       types.AccountKey
	ArrayIndex int32
}

// BinArray is the cached record for one bin-array account.
type BinArray struct {
	AccountKey types.AccountKey
	Pool       types.AccountKey
	ArrayIndex int32
	Bins       [BinArraySize]Bin
	Seq        types.SlotSeq
	Source     types.Source
	Virtual    bool
}

// SlotSeq implements Entry.
func (a BinArray) SlotSeq() types.SlotSeq { return a.Seq }

func virtualBinArray(pool types.AccountKey, index int32) BinArray {
	return BinArray{Pool: pool, ArrayIndex: index, Virtual: true}
}

// BinCache is structurally identical to TickCache with (pool, array-index)
// keys and a 70-bin virtual-zero array.
type BinCache struct {
	mu sync.RWMutex

	data         map[BinArrayID]BinArray
	secondary    map[types.AccountKey]BinArrayID
	nonExistent  map[BinArrayID]struct{}
	evictCeiling int
	lifecycle    types.LifecycleQuerier

	stats *Stats
}

// NewBinCache creates an empty bin cache.
func NewBinCache(registry prometheus.Registerer, evictCeiling int) *BinCache {
	return &BinCache{
		data:         make(map[BinArrayID]BinArray),
		secondary:    make(map[types.AccountKey]BinArrayID),
		nonExistent:  make(map[BinArrayID]struct{}),
		evictCeiling: evictCeiling,
		stats:        newStats(registry, "bin"),
	}
}

// SetLifecycleQuerier wires in the lifecycle registry's read-only state
// view (see TickCache.SetLifecycleQuerier).
func (c *BinCache) SetLifecycleQuerier(q types.LifecycleQuerier) {
	c.mu.Lock()
	c.lifecycle = q
	c.mu.Unlock()
}

// Get implements the shared get() contract (exact hit only).
func (c *BinCache) Get(id BinArrayID) (BinArray, bool) {
	c.mu.RLock()
	v, ok := c.data[id]
	c.mu.RUnlock()
	if ok {
		c.stats.recordHit()
	} else {
		c.stats.recordMiss()
	}
	return v, ok
}

// GetOrVirtual mirrors TickCache.GetOrVirtual for bin arrays.
func (c *BinCache) GetOrVirtual(pool types.AccountKey, index int32) (BinArray, bool) {
	id := BinArrayID{Pool: pool, ArrayIndex: index}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.data[id]; ok {
		c.stats.recordHit()
		return v, true
	}
	if _, ok := c.nonExistent[id]; ok {
		c.stats.recordHit()
		return virtualBinArray(pool, index), true
	}
	c.stats.recordMiss()
	return BinArray{}, false
}

// MarkNonExistent records that the bootstrap collaborator has confirmed no
// bin-array account exists at this index, implementing `mark_array_non_existent`.
func (c *BinCache) MarkNonExistent(pool types.AccountKey, index int32) {
	id := BinArrayID{Pool: pool, ArrayIndex: index}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[id]; exists {
		return
	}
	c.nonExistent[id] = struct{}{}
}

// Set applies a bin-array update under the monotonic invariant.
func (c *BinCache) Set(accountKey types.AccountKey, a BinArray, dataLength int) SetResult {
	if dataLength < minBinArrayRecordSize {
		c.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	a.AccountKey = accountKey
	id := BinArrayID{Pool: a.Pool, ArrayIndex: a.ArrayIndex}
	seq := a.Seq

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.data[id]
	if ok && !seq.NewerThan(existing.Seq) {
		c.stats.recordStale()
		return SetResult{Outcome: types.Stale}
	}

	wasNew := !ok
	c.data[id] = a
	c.secondary[accountKey] = id
	delete(c.nonExistent, id)
	c.stats.recordApplied(seq.Slot)

	if c.evictCeiling > 0 && len(c.data) > c.evictCeiling {
		c.evictOldestLocked()
	}
	return SetResult{Outcome: types.Applied, WasNew: wasNew}
}

func (c *BinCache) evictOldestLocked() {
	var (
		oldestID  BinArrayID
		oldestKey types.AccountKey
		oldestSeq types.SlotSeq
		found     bool
	)
	for id, entry := range c.data {
		if c.isProtectedLocked(entry.Pool) {
			continue
		}
		if !found || entry.Seq.Less(oldestSeq) {
			oldestID = id
			oldestKey = entry.AccountKey
			oldestSeq = entry.Seq
			found = true
		}
	}
	if !found {
		return
	}
	delete(c.data, oldestID)
	delete(c.secondary, oldestKey)
	c.stats.recordEviction()
}

func (c *BinCache) isProtectedLocked(pool types.AccountKey) bool {
	if c.lifecycle == nil {
		return false
	}
	state, ok := c.lifecycle.StateOf(pool)
	return ok && (state == types.Active || state == types.Refreshing)
}

// LookupByAccountKey is the secondary-index read for diagnostic lookup and
// eviction trace attribution.
func (c *BinCache) LookupByAccountKey(accountKey types.AccountKey) (BinArrayID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.secondary[accountKey]
	return id, ok
}

// Stats implements the shared stats() contract.
func (c *BinCache) Stats() StatsSnapshot {
	c.mu.RLock()
	size := len(c.data)
	c.mu.RUnlock()
	return c.stats.snapshot(size)
}
