// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// minPoolRecordSize is the smallest payload the commit path will accept for
// any pool variant (venue tag + two mint keys + two vault keys). Concrete
// decoders validate their own venue-specific tail; this is only the
// under-size guard required before the record is even looked at.
const minPoolRecordSize = 1 + 32 + 32 + 32 + 32

// Pool is the venue-discriminated pool record. Fields below the dashed line
// are valid only for the venue named in Venue; pools are modeled as a tagged
// sum rather than a virtual-dispatch interface, so callers switch on Venue
// rather than type-asserting.
type Pool struct {
	Key        types.AccountKey
	Venue      types.Venue
	BaseMint   types.AccountKey
	QuoteMint  types.AccountKey
	BaseVault  types.AccountKey
	QuoteVault types.AccountKey
	Seq        types.SlotSeq
	Source     types.Source

	// --- CPMM (VenueCPMMExplicitFee) ---
	FeeNumerator   uint64
	FeeDenominator uint64

	// --- CPMM (VenueCPMMSharedFee) ---
	SharedFeeConfig types.AccountKey

	// --- CLMM ---
	TickSpacing      int32
	CurrentTick      int32
	SqrtPriceX64     [2]uint64 // little-endian 128-bit fixed point, word[0]=low
	ActiveLiquidity  [2]uint64 // 128-bit unsigned
	TickArrayBitmap  [16]uint64 // 1024 bits: which tick-array start indices exist
	CLMMFeeConfig    types.AccountKey

	// --- DLMM ---
	BinStep                uint16
	ActiveBinID             int32
	BaseFeeBps              uint32
	VolatilityAccumulator   uint32
	ProtocolShareBps        uint16
	BinArrayBitmap          [16]uint64 // 1024 bits: which bin-array indices exist
}

// SlotSeq implements Entry.
func (p Pool) SlotSeq() types.SlotSeq { return p.Seq }

// PoolCache holds every tracked pool, keyed by its account key. There is no
// eviction: a pool, once discovered, is cheap enough (a few hundred bytes)
// that the cache never needs to reclaim it.
type PoolCache struct {
	store *keyedStore[Pool]
}

// NewPoolCache creates an empty pool cache. registry may be nil to skip
// Prometheus registration (tests).
func NewPoolCache(registry prometheus.Registerer) *PoolCache {
	return &PoolCache{store: newKeyedStore[Pool](registry, "pool")}
}

// Get implements the shared get() contract.
func (c *PoolCache) Get(key types.AccountKey) (Pool, bool) {
	return c.store.Get(key)
}

// SetResult is returned by Set and tells the caller (the canonical commit
// function) whether this write discovered a previously-unknown pool, which
// drives the transition to DISCOVERED.
type SetResult struct {
	Outcome types.Outcome
	WasNew  bool
}

// Set applies a pool update under the monotonic-(slot, write_sequence)
// invariant. dataLength is the caller-observed size of the wire payload this
// record was decoded from; records shorter than the fixed minimum for any
// pool are rejected invalid without ever touching the map.
func (c *PoolCache) Set(key types.AccountKey, p Pool, dataLength int) SetResult {
	if dataLength < minPoolRecordSize {
		c.store.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	p.Key = key
	r := c.store.trySet(key, p)
	return SetResult{Outcome: r.outcome, WasNew: r.wasNew}
}

// Stats implements the shared stats() contract.
func (c *PoolCache) Stats() StatsSnapshot { return c.store.Stats() }
