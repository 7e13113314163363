// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package topology computes, per pool, the exact set of dependency keys and
// indices the simulator will need, and decides whether they are all present
// in the caches at sufficient freshness.
package topology

import (
	"github.com/luxfi/ammcore/cache"
	"github.com/luxfi/ammcore/types"
	"github.com/zeebo/blake3"
)

// DefaultCLMMArrayRadius is how many tick arrays on either side of
// the current tick the oracle requires, restricted to those whose bitmap bit
// is set.
const DefaultCLMMArrayRadius = 7

// DefaultDLMMArrayRadius is the default neighbour range for bin arrays
// around the active bin's home array.
const DefaultDLMMArrayRadius = 1

// Topology is the immutable snapshot captured at freeze time.
type Topology struct {
	PoolKey         types.AccountKey
	Venue           types.Venue
	BaseVault       types.AccountKey
	QuoteVault      types.AccountKey
	HasFeeConfig    bool
	FeeConfigKey    types.AccountKey
	TickArrayStarts []int32 // CLMM only
	BinArrayIndices []int32 // DLMM only
	FreezeSlot      uint64
	FreezeTimestamp int64
	Digest          [32]byte
}

// MissingDependency identifies one unresolved entry in a topology, as
// returned by `missing_dependencies`.
type MissingDependency struct {
	Kind      types.EventKind
	Pool      types.AccountKey
	Key       types.AccountKey // meaningful for EventVault / EventVenueConfig
	TickStart int32            // meaningful for EventTick
	BinIndex  int32            // meaningful for EventBin
}

// Oracle computes and evaluates topologies against the cache family. It
// never mutates a cache — it only reads.
type Oracle struct {
	caches          *cache.Family
	clmmArrayRadius int32
	dlmmArrayRadius int32
}

// NewOracle builds a topology oracle reading from caches, using the default
// array radii.
func NewOracle(caches *cache.Family) *Oracle {
	return &Oracle{
		caches:          caches,
		clmmArrayRadius: DefaultCLMMArrayRadius,
		dlmmArrayRadius: DefaultDLMMArrayRadius,
	}
}

// WithCLMMArrayRadius overrides the default ±R tick-array radius.
func (o *Oracle) WithCLMMArrayRadius(r int32) *Oracle {
	o.clmmArrayRadius = r
	return o
}

// WithDLMMArrayRadius overrides the default ±N bin-array radius.
func (o *Oracle) WithDLMMArrayRadius(r int32) *Oracle {
	o.dlmmArrayRadius = r
	return o
}

// tickArrayStart rounds tick down to the start of the tick array containing
// it, given a tick array spans TickArraySize*tickSpacing ticks.
func tickArrayStart(tick, tickSpacing int32) int32 {
	span := int32(cache.TickArraySize) * tickSpacing
	if span <= 0 {
		return 0
	}
	q := tick / span
	if tick%span != 0 && tick < 0 {
		q--
	}
	return q * span
}

// ComputeTopology computes the exact dependency set for pool, implementing
// `compute_topology`. It returns ok=false only if the pool account itself
// is not yet present in the pool cache.
func (o *Oracle) ComputeTopology(poolKey types.AccountKey, freezeSlot uint64, freezeTimestamp int64) (Topology, bool) {
	pool, ok := o.caches.Pool.Get(poolKey)
	if !ok {
		return Topology{}, false
	}

	t := Topology{
		PoolKey:         poolKey,
		Venue:           pool.Venue,
		BaseVault:       pool.BaseVault,
		QuoteVault:      pool.QuoteVault,
		FreezeSlot:      freezeSlot,
		FreezeTimestamp: freezeTimestamp,
	}

	switch pool.Venue {
	case types.VenueCPMMExplicitFee:
		// No shared fee-config dependency: fee lives on the pool record.
	case types.VenueCPMMSharedFee:
		t.HasFeeConfig = true
		t.FeeConfigKey = pool.SharedFeeConfig
	case types.VenueCLMM:
		t.HasFeeConfig = pool.CLMMFeeConfig != types.ZeroKey
		t.FeeConfigKey = pool.CLMMFeeConfig
		t.TickArrayStarts = o.clmmTickArrayStarts(pool)
	case types.VenueDLMM:
		t.BinArrayIndices = o.dlmmBinArrayIndices(pool)
	}

	t.Digest = digestTopology(t)
	return t, true
}

// clmmTickArrayStarts computes the ±R tick-array start indices reachable
// from the pool's current tick, restricted to bits set in the pool's
// occupancy bitmap.
func (o *Oracle) clmmTickArrayStarts(pool cache.Pool) []int32 {
	span := int32(cache.TickArraySize) * pool.TickSpacing
	if span <= 0 {
		return nil
	}
	centerArrayIdx := pool.CurrentTick / span
	if pool.CurrentTick%span != 0 && pool.CurrentTick < 0 {
		centerArrayIdx--
	}
	lo := centerArrayIdx - o.clmmArrayRadius
	hi := centerArrayIdx + o.clmmArrayRadius
	setIndices := types.BitmapSetIndices(pool.TickArrayBitmap, lo, hi)
	starts := make([]int32, 0, len(setIndices))
	for _, arrayIdx := range setIndices {
		starts = append(starts, arrayIdx*span)
	}
	return starts
}

// dlmmBinArrayIndices computes the home bin-array index for the active bin
// plus any set neighbours within the default radius.
func (o *Oracle) dlmmBinArrayIndices(pool cache.Pool) []int32 {
	homeArray := pool.ActiveBinID / int32(cache.BinArraySize)
	if pool.ActiveBinID%int32(cache.BinArraySize) != 0 && pool.ActiveBinID < 0 {
		homeArray--
	}
	lo := homeArray - o.dlmmArrayRadius
	hi := homeArray + o.dlmmArrayRadius
	indices := types.BitmapSetIndices(pool.BinArrayBitmap, lo, hi)
	// The home array is always required even if, degenerately, its bit were
	// unset (a freshly-initialised pool's first bin array).
	if !contains(indices, homeArray) {
		indices = append([]int32{homeArray}, indices...)
	}
	return indices
}

func contains(xs []int32, v int32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// IsTopologyComplete reports whether every dependency t lists resolves in
// its respective cache at slot >= the pool's freeze slot. Different keys
// have no cross-key ordering guarantee, so this must tolerate (and correctly
// report incomplete for) a partially-applied topology.
func (o *Oracle) IsTopologyComplete(t Topology) bool {
	return len(o.MissingDependencies(t)) == 0
}

// MissingDependencies returns the gap list so the bootstrap collaborator can
// fetch precisely what is needed.
func (o *Oracle) MissingDependencies(t Topology) []MissingDependency {
	var missing []MissingDependency

	if v, ok := o.caches.Vault.Get(t.BaseVault); !ok || v.Seq.Slot < t.FreezeSlot {
		missing = append(missing, MissingDependency{Kind: types.EventVault, Pool: t.PoolKey, Key: t.BaseVault})
	}
	if v, ok := o.caches.Vault.Get(t.QuoteVault); !ok || v.Seq.Slot < t.FreezeSlot {
		missing = append(missing, MissingDependency{Kind: types.EventVault, Pool: t.PoolKey, Key: t.QuoteVault})
	}
	if t.HasFeeConfig {
		complete := false
		if t.Venue == types.VenueCPMMSharedFee {
			if c, ok := o.caches.SingletonConfig.Get(t.FeeConfigKey); ok && c.Seq.Slot >= t.FreezeSlot {
				complete = true
			}
		} else {
			if c, ok := o.caches.VenueConfig.Get(t.FeeConfigKey); ok && c.Seq.Slot >= t.FreezeSlot {
				complete = true
			}
		}
		if !complete {
			missing = append(missing, MissingDependency{Kind: types.EventVenueConfig, Pool: t.PoolKey, Key: t.FeeConfigKey})
		}
	}
	for _, start := range t.TickArrayStarts {
		a, ok := o.caches.Tick.GetOrVirtual(t.PoolKey, start)
		if !ok || (!a.Virtual && a.Seq.Slot < t.FreezeSlot) {
			missing = append(missing, MissingDependency{Kind: types.EventTick, Pool: t.PoolKey, TickStart: start})
		}
	}
	for _, idx := range t.BinArrayIndices {
		a, ok := o.caches.Bin.GetOrVirtual(t.PoolKey, idx)
		if !ok || (!a.Virtual && a.Seq.Slot < t.FreezeSlot) {
			missing = append(missing, MissingDependency{Kind: types.EventBin, Pool: t.PoolKey, BinIndex: idx})
		}
	}
	return missing
}

// digestTopology fingerprints a topology's dependency set with blake3. The
// digest is stored on Topology; completeness checks do not use it and
// re-walk the dependency list through IsTopologyComplete instead.
func digestTopology(t Topology) [32]byte {
	h := blake3.New()
	h.Write(t.PoolKey[:])
	h.Write(t.BaseVault[:])
	h.Write(t.QuoteVault[:])
	if t.HasFeeConfig {
		h.Write(t.FeeConfigKey[:])
	}
	for _, s := range t.TickArrayStarts {
		h.Write(int32LE(s))
	}
	for _, b := range t.BinArrayIndices {
		h.Write(int32LE(b))
	}
	var out [32]byte
	h.Digest().Read(out[:])
	return out
}

func int32LE(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}
