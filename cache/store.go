// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache implements the typed in-memory stores fed by the canonical
// commit function: pool, vault, tick-array, bin-array, venue-config and
// singleton-config. Every store here enforces the
// monotonic (slot, write_sequence) invariant itself; lifecycle gating of
// bootstrap writes happens one layer up, in the commit function. The only
// lifecycle query made from here is the tick and bin caches asking a
// types.LifecycleQuerier which entries are protected when choosing an
// eviction victim.
package cache

import (
	"sync"

	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Entry is the shared requirement for values held in a keyedStore: the
// ability to report the (slot, write_sequence) pair it was written at.
type Entry interface {
	SlotSeq() types.SlotSeq
}

// keyedStore is the staleness-checked, hit/miss-counted map that backs the
// pool, vault, venue-config and singleton-config caches — the four stores
// whose shared contract is exactly "get/set/stats, no eviction". The
// tick and bin caches need more (virtual-zero reads, topology-aware
// eviction, a secondary index) and are built directly on sync.RWMutex maps
// in tick.go / bin.go instead of on this type.
type keyedStore[V Entry] struct {
	mu      sync.RWMutex
	data    map[types.AccountKey]V
	stats   *Stats
	fetcher func(types.AccountKey) (V, bool)
}

func newKeyedStore[V Entry](registry prometheus.Registerer, name string) *keyedStore[V] {
	return &keyedStore[V]{
		data:  make(map[types.AccountKey]V),
		stats: newStats(registry, name),
	}
}

// SetFetcher installs a lazy-fetch callback for a lookup-table-style cache,
// implementing `set_fetcher`. A Get() miss tries the fetcher once before reporting
// missing; a value it returns is inserted as if it had arrived through the
// normal staleness-checked Set path.
func (s *keyedStore[V]) SetFetcher(fn func(types.AccountKey) (V, bool)) {
	s.mu.Lock()
	s.fetcher = fn
	s.mu.Unlock()
}

// Get implements the shared `get(key) -> entry | missing` contract.
func (s *keyedStore[V]) Get(key types.AccountKey) (V, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	fetch := s.fetcher
	s.mu.RUnlock()
	if ok {
		s.stats.recordHit()
		return v, true
	}
	if fetch != nil {
		if fetched, found := fetch(key); found {
			s.trySet(key, fetched)
			s.stats.recordHit()
			return fetched, true
		}
	}
	s.stats.recordMiss()
	return v, false
}

// setResult carries the outcome of a staleness-checked write plus whether
// the key was previously absent, which callers (pool.go) use to decide
// whether to tell the lifecycle registry "discover this pool".
type setResult struct {
	outcome  types.Outcome
	wasNew   bool
	existing types.SlotSeq
}

// trySet applies the monotonic-(slot, write_sequence) invariant: the
// incoming entry is stored only if it is strictly newer than whatever is
// currently present for key. Equality or an older pair is rejected as stale.
func (s *keyedStore[V]) trySet(key types.AccountKey, incoming V) setResult {
	seq := incoming.SlotSeq()
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[key]
	if ok {
		existingSeq := existing.SlotSeq()
		if !seq.NewerThan(existingSeq) {
			s.stats.recordStale()
			return setResult{outcome: types.Stale, existing: existingSeq}
		}
	}
	s.data[key] = incoming
	s.stats.recordApplied(seq.Slot)
	return setResult{outcome: types.Applied, wasNew: !ok}
}

func (s *keyedStore[V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *keyedStore[V]) Stats() StatsSnapshot {
	return s.stats.snapshot(s.len())
}
