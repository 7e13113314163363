// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the shared `stats()` contract every typed cache exposes: size,
// hits, misses, evictions, last-applied slot. Counters are atomic so
// `Get`/`Set` never need to take the write lock just to bump a counter.
type Stats struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	applied    atomic.Uint64
	stale      atomic.Uint64
	rejected   atomic.Uint64
	evictions  atomic.Uint64
	lastApplied atomic.Uint64

	promHits      prometheus.Counter
	promMisses    prometheus.Counter
	promApplied   prometheus.Counter
	promStale     prometheus.Counter
	promRejected  prometheus.Counter
	promEvictions prometheus.Counter
}

// StatsSnapshot is a point-in-time copy of Stats, safe to read without races.
type StatsSnapshot struct {
	Size        int
	Hits        uint64
	Misses      uint64
	Applied     uint64
	Stale       uint64
	Rejected    uint64
	Evictions   uint64
	LastApplied uint64
}

// newStats builds a Stats that also registers Prometheus counters under the
// given cache name. Registration failures (duplicate registration in tests)
// are tolerated: the in-process atomics remain authoritative regardless.
func newStats(registry prometheus.Registerer, cacheName string) *Stats {
	s := &Stats{}
	labels := prometheus.Labels{"cache": cacheName}
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ammcore",
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		if registry != nil {
			_ = registry.Register(c)
		}
		return c
	}
	s.promHits = mk("hits_total", "cache get() hits")
	s.promMisses = mk("misses_total", "cache get() misses")
	s.promApplied = mk("applied_total", "commits applied")
	s.promStale = mk("stale_total", "commits rejected as stale")
	s.promRejected = mk("rejected_total", "commits rejected (lifecycle or invalid)")
	s.promEvictions = mk("evictions_total", "entries evicted")
	return s
}

func (s *Stats) recordHit() {
	s.hits.Add(1)
	s.promHits.Inc()
}

func (s *Stats) recordMiss() {
	s.misses.Add(1)
	s.promMisses.Inc()
}

func (s *Stats) recordApplied(slot uint64) {
	s.applied.Add(1)
	s.promApplied.Inc()
	for {
		cur := s.lastApplied.Load()
		if slot <= cur || s.lastApplied.CompareAndSwap(cur, slot) {
			return
		}
	}
}

func (s *Stats) recordStale() {
	s.stale.Add(1)
	s.promStale.Inc()
}

func (s *Stats) recordRejected() {
	s.rejected.Add(1)
	s.promRejected.Inc()
}

func (s *Stats) recordEviction() {
	s.evictions.Add(1)
	s.promEvictions.Inc()
}

func (s *Stats) snapshot(size int) StatsSnapshot {
	return StatsSnapshot{
		Size:        size,
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Applied:     s.applied.Load(),
		Stale:       s.stale.Load(),
		Rejected:    s.rejected.Load(),
		Evictions:   s.evictions.Load(),
		LastApplied: s.lastApplied.Load(),
	}
}
