// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package commit implements the single mutation entry point every account
// update — gossip or bootstrap — must pass through. It is the only
// place in the module that is allowed to call a cache's Set: it consults the
// lifecycle registry for bootstrap-sourced writes, delegates to the typed
// cache, informs the registry of newly-discovered pools and of dependency
// arrivals that might complete a frozen topology, and emits a trace event for
// every attempt regardless of outcome.
package commit

import (
	"sync"
	"time"

	"github.com/luxfi/ammcore/cache"
	"github.com/luxfi/ammcore/lifecycle"
	"github.com/luxfi/ammcore/trace"
	"github.com/luxfi/ammcore/types"
	log "github.com/luxfi/log"
)

// diagLogInterval bounds how often a rejected-by-lifecycle write logs at
// Warn level per account key — a misbehaving bootstrap collaborator retrying
// against a frozen pool should not be able to flood the log.
const diagLogInterval = 10 * time.Second

// Committer is the canonical commit function, bound to one cache family and
// one lifecycle registry.
type Committer struct {
	caches   *cache.Family
	registry *lifecycle.Registry
	sink     trace.Sink

	diagMu   sync.Mutex
	lastDiag map[types.AccountKey]time.Time
}

// New builds a Committer. sink may be trace.DiscardSink{}.
func New(caches *cache.Family, registry *lifecycle.Registry, sink trace.Sink) *Committer {
	return &Committer{
		caches:   caches,
		registry: registry,
		sink:     sink,
		lastDiag: make(map[types.AccountKey]time.Time),
	}
}

func (c *Committer) emit(e trace.Event) {
	if c.sink != nil {
		c.sink.Emit(e)
	}
}

// shouldLog reports whether key is due for a rate-limited diagnostic log,
// recording the attempt as a side effect when it returns true.
func (c *Committer) shouldLog(key types.AccountKey) bool {
	c.diagMu.Lock()
	defer c.diagMu.Unlock()
	now := time.Now()
	if last, ok := c.lastDiag[key]; ok && now.Sub(last) < diagLogInterval {
		return false
	}
	c.lastDiag[key] = now
	return true
}

func (c *Committer) rejectLifecycle(kind types.EventKind, key types.AccountKey, seq types.SlotSeq, source types.Source, reason string) types.Outcome {
	if c.shouldLog(key) {
		log.Warn("commit rejected by lifecycle", "kind", kind.String(), "key", key.String(), "reason", reason)
	}
	c.emit(trace.Event{
		Kind:    kind,
		Key:     key,
		Slot:    seq.Slot,
		WriteSeq: seq.WriteSeq,
		Source:  source,
		Outcome: types.RejectedByLifecycle,
		Reason:  reason,
	})
	return types.RejectedByLifecycle
}

func outcomeEvent(kind types.EventKind, key types.AccountKey, seq types.SlotSeq, source types.Source, r cache.SetResult) trace.Event {
	reason := ""
	if r.Outcome == types.RejectedInvalid {
		reason = "payload shorter than venue minimum"
	}
	return trace.Event{
		Kind:    kind,
		Key:     key,
		Slot:    seq.Slot,
		WriteSeq: seq.WriteSeq,
		Source:  source,
		Outcome: r.Outcome,
		Reason:  reason,
	}
}

// CommitPool applies a pool-account write. A bootstrap-sourced write is
// rejected while the pool itself protects its dependencies, exactly like a
// vault, tick, or bin write against the same pool.
func (c *Committer) CommitPool(key types.AccountKey, p cache.Pool, dataLength int, source types.Source) types.Outcome {
	if key == types.ZeroKey {
		panic("commit: CommitPool called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForPool(key) {
		return c.rejectLifecycle(types.EventPool, key, p.Seq, source, "pool protects dependencies")
	}
	p.Source = source
	r := c.caches.Pool.Set(key, p, dataLength)
	c.emit(outcomeEvent(types.EventPool, key, p.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.Discover(key, p.Seq.Slot)
	}
	return r.Outcome
}

// CommitVault applies a vault-balance write. Bootstrap writes are rejected
// while the owning pool protects its dependencies.
func (c *Committer) CommitVault(pool types.AccountKey, key types.AccountKey, v cache.Vault, dataLength int, source types.Source) types.Outcome {
	if key == types.ZeroKey {
		panic("commit: CommitVault called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForVault(key) {
		return c.rejectLifecycle(types.EventVault, key, v.Seq, source, "pool protects dependencies")
	}
	v.Source = source
	r := c.caches.Vault.Set(key, v, dataLength)
	c.emit(outcomeEvent(types.EventVault, key, v.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.NotifyDependencyApplied(pool, v.Seq.Slot)
	}
	return r.Outcome
}

// CommitTick applies a tick-array write. pool identifies the
// owning pool for lifecycle gating and promotion notification; it need not
// match a.Pool only if the caller made a mistake, in which case the cache's
// own (pool, start-tick) key still wins.
func (c *Committer) CommitTick(pool types.AccountKey, accountKey types.AccountKey, a cache.TickArray, dataLength int, source types.Source) types.Outcome {
	if accountKey == types.ZeroKey {
		panic("commit: CommitTick called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForPool(pool) {
		return c.rejectLifecycle(types.EventTick, accountKey, a.Seq, source, "pool protects dependencies")
	}
	a.Source = source
	r := c.caches.Tick.Set(accountKey, a, dataLength)
	c.emit(outcomeEvent(types.EventTick, accountKey, a.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.NotifyDependencyApplied(pool, a.Seq.Slot)
	}
	return r.Outcome
}

// CommitBin applies a bin-array write, mirroring CommitTick.
func (c *Committer) CommitBin(pool types.AccountKey, accountKey types.AccountKey, a cache.BinArray, dataLength int, source types.Source) types.Outcome {
	if accountKey == types.ZeroKey {
		panic("commit: CommitBin called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForPool(pool) {
		return c.rejectLifecycle(types.EventBin, accountKey, a.Seq, source, "pool protects dependencies")
	}
	a.Source = source
	r := c.caches.Bin.Set(accountKey, a, dataLength)
	c.emit(outcomeEvent(types.EventBin, accountKey, a.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.NotifyDependencyApplied(pool, a.Seq.Slot)
	}
	return r.Outcome
}

// CommitVenueConfig applies a per-venue fee-tier/fee-table write. Bootstrap
// writes are rejected if any pool sharing this account currently protects
// its dependencies.
func (c *Committer) CommitVenueConfig(key types.AccountKey, v cache.VenueConfig, dataLength int, source types.Source) types.Outcome {
	if key == types.ZeroKey {
		panic("commit: CommitVenueConfig called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForFeeConfig(key) {
		return c.rejectLifecycle(types.EventVenueConfig, key, v.Seq, source, "shared by a protected pool")
	}
	v.Source = source
	r := c.caches.VenueConfig.Set(key, v, dataLength)
	c.emit(outcomeEvent(types.EventVenueConfig, key, v.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.NotifyFeeConfigApplied(key, v.Seq.Slot)
	}
	return r.Outcome
}

// CommitSingletonConfig applies the shared CPMM fee-singleton write,
// mirroring CommitVenueConfig.
func (c *Committer) CommitSingletonConfig(key types.AccountKey, s cache.SingletonConfig, dataLength int, source types.Source) types.Outcome {
	if key == types.ZeroKey {
		panic("commit: CommitSingletonConfig called with zero account key")
	}
	if source == types.SourceBootstrap && !c.registry.RPCAllowedForFeeConfig(key) {
		return c.rejectLifecycle(types.EventSingletonConfig, key, s.Seq, source, "shared by a protected pool")
	}
	s.Source = source
	r := c.caches.SingletonConfig.Set(key, s, dataLength)
	c.emit(outcomeEvent(types.EventSingletonConfig, key, s.Seq, source, r))
	if r.Outcome == types.Applied {
		c.registry.NotifyFeeConfigApplied(key, s.Seq.Slot)
	}
	return r.Outcome
}

// MarkTickArrayNonExistent records a bootstrap-confirmed absence
// (`mark_array_non_existent`) and, since that can itself complete a
// topology (a venue whose ±R window legitimately has empty arrays at the
// edge), checks for promotion.
func (c *Committer) MarkTickArrayNonExistent(pool types.AccountKey, startTick int32, slot uint64) {
	c.caches.Tick.MarkNonExistent(pool, startTick)
	c.registry.NotifyDependencyApplied(pool, slot)
}

// MarkBinArrayNonExistent mirrors MarkTickArrayNonExistent for bin arrays.
func (c *Committer) MarkBinArrayNonExistent(pool types.AccountKey, index int32, slot uint64) {
	c.caches.Bin.MarkNonExistent(pool, index)
	c.registry.NotifyDependencyApplied(pool, slot)
}
