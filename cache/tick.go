// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// TickArraySize is the fixed number of ticks packed into one concentrated-
// liquidity tick-array account.
const TickArraySize = 60

// minTickArrayRecordSize guards the fixed-size schema invariant: every
// tick-array entry's data length must be >= the venue's fixed array size.
const minTickArrayRecordSize = TickArraySize * 48 // conservative lower bound per packed tick

// Tick is one checkpoint inside a tick array: a signed net-liquidity delta
// applied when price crosses it, and an unsigned gross-liquidity total used
// only to derive whether the tick is initialised.
type Tick struct {
	NetLiquidityDelta    uint256.Int
	NetLiquidityNegative bool
	GrossLiquidity       uint256.Int
}

// Initialized reports whether this tick carries any liquidity: the
// initialised flag derives from gross != 0.
func (t Tick) Initialized() bool {
	return !t.GrossLiquidity.IsZero()
}

// TickArrayID identifies a tick array by (pool, start-tick index) — the
// cache's primary key.
type TickArrayID struct {
	Pool      types.AccountKey
	StartTick int32
}

// TickArray is the cached record for one tick-array account.
type TickArray struct {
	AccountKey types.AccountKey // the actual on-chain tick-array account key
	Pool       types.AccountKey
	StartTick  int32
	Ticks      [TickArraySize]Tick
	Seq        types.SlotSeq
	Source     types.Source
	Virtual    bool // true only for synthesized zero-liquidity arrays
}

// SlotSeq implements Entry.
func (a TickArray) SlotSeq() types.SlotSeq { return a.Seq }

// virtualTickArray builds the synthetic zero-liquidity array get_or_virtual
// returns for array indices the bootstrap has confirmed non-existent.
func virtualTickArray(pool types.AccountKey, startTick int32) TickArray {
	return TickArray{Pool: pool, StartTick: startTick, Virtual: true}
}

// TickCache is the keyed store of concentrated-liquidity tick arrays. Beyond
// the shared get/set/stats contract it adds a secondary index from the
// physical account key back to (pool, start-tick), a known-non-existent set
// that backs get_or_virtual, and topology-aware eviction.
type TickCache struct {
	mu sync.RWMutex

	data          map[TickArrayID]TickArray
	secondary     map[types.AccountKey]TickArrayID
	nonExistent   map[TickArrayID]struct{}
	evictCeiling  int
	lifecycle     types.LifecycleQuerier

	stats *Stats
}

// NewTickCache creates an empty tick cache. evictCeiling is the size at
// which Set begins attempting topology-aware eviction; pass 0 to
// disable eviction entirely.
func NewTickCache(registry prometheus.Registerer, evictCeiling int) *TickCache {
	return &TickCache{
		data:         make(map[TickArrayID]TickArray),
		secondary:    make(map[types.AccountKey]TickArrayID),
		nonExistent:  make(map[TickArrayID]struct{}),
		evictCeiling: evictCeiling,
		stats:        newStats(registry, "tick"),
	}
}

// SetLifecycleQuerier wires in the lifecycle registry's read-only state
// view, used only to decide which entries are safe to evict. The cache
// never holds the registry itself — ownership stays one-directional.
func (c *TickCache) SetLifecycleQuerier(q types.LifecycleQuerier) {
	c.mu.Lock()
	c.lifecycle = q
	c.mu.Unlock()
}

// Get implements the shared get() contract (exact hit only — no virtual
// materialisation; use GetOrVirtual for that).
func (c *TickCache) Get(id TickArrayID) (TickArray, bool) {
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

// GetOrVirtual implements the three-way get_or_virtual contract: a real
// cached entry, a synthesized zero-liquidity array for a
// confirmed-non-existent index, or missing.
func (c *TickCache) GetOrVirtual(pool types.AccountKey, startTick int32) (TickArray, bool) {
	id := TickArrayID{Pool: pool, StartTick: startTick}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.data[id]; ok {
		c.stats.recordHit()
		return v, true
	}
	if _, ok := c.nonExistent[id]; ok {
		c.stats.recordHit()
		return virtualTickArray(pool, startTick), true
	}
	c.stats.recordMiss()
	return TickArray{}, false
}

// MarkNonExistent records that the bootstrap collaborator has confirmed no
// tick-array account exists at this index, implementing `mark_array_non_existent`.
func (c *TickCache) MarkNonExistent(pool types.AccountKey, startTick int32) {
	id := TickArrayID{Pool: pool, StartTick: startTick}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.data[id]; exists {
		return
	}
	c.nonExistent[id] = struct{}{}
}

// Set applies a tick-array update under the monotonic invariant, enforces
// the fixed-array-size invariant, maintains the secondary index, clears any
// non-existent marker a real arrival supersedes, and evicts if the cache has
// grown past its ceiling.
func (c *TickCache) Set(accountKey types.AccountKey, a TickArray, dataLength int) SetResult {
	if dataLength < minTickArrayRecordSize {
		c.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	a.AccountKey = accountKey
	id := TickArrayID{Pool: a.Pool, StartTick: a.StartTick}
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

// evictOldestLocked scans for the oldest entry whose owning pool is not
// ACTIVE or REFRESHING and removes it. If every entry belongs to a protected
// pool, it does nothing — size is allowed to exceed the nominal ceiling
// rather than ever evict a live dependency. Caller must hold c.mu.
func (c *TickCache) evictOldestLocked() {
	var (
		oldestID  TickArrayID
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

func (c *TickCache) isProtectedLocked(pool types.AccountKey) bool {
	if c.lifecycle == nil {
		return false
	}
	state, ok := c.lifecycle.StateOf(pool)
	return ok && (state == types.Active || state == types.Refreshing)
}

// LookupByAccountKey is the secondary-index read used for diagnostic lookup
// and eviction trace attribution.
func (c *TickCache) LookupByAccountKey(accountKey types.AccountKey) (TickArrayID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.secondary[accountKey]
	return id, ok
}

// Stats implements the shared stats() contract.
func (c *TickCache) Stats() StatsSnapshot {
	c.mu.RLock()
	size := len(c.data)
	c.mu.RUnlock()
	return c.stats.snapshot(size)
}
