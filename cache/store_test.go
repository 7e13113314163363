// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/luxfi/ammcore/types"
)

// testKey builds a distinct 32-byte account key for tests; b seeds the first
// byte so different calls produce different keys.
func testKey(b byte) types.AccountKey {
	var k types.AccountKey
	k[0] = b
	return k
}

type stubEntry struct {
	seq types.SlotSeq
}

func (s stubEntry) SlotSeq() types.SlotSeq { return s.seq }

func TestKeyedStoreSetAndGet(t *testing.T) {
	s := newKeyedStore[stubEntry](nil, "stub")
	key := testKey(1)

	if _, ok := s.Get(key); ok {
		t.Fatal("expected miss on empty store")
	}

	r := s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 1, WriteSeq: 0}})
	if r.outcome != types.Applied || !r.wasNew {
		t.Fatalf("first write: outcome=%v wasNew=%v", r.outcome, r.wasNew)
	}

	got, ok := s.Get(key)
	if !ok || got.seq.Slot != 1 {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
}

func TestKeyedStoreRejectsStaleAndEqual(t *testing.T) {
	s := newKeyedStore[stubEntry](nil, "stub")
	key := testKey(2)

	s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 5, WriteSeq: 0}})

	// Equal (slot, write_seq) is a reject, never an overwrite.
	r := s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 5, WriteSeq: 0}})
	if r.outcome != types.Stale {
		t.Errorf("equal SlotSeq: outcome = %v, want Stale", r.outcome)
	}

	// Strictly older is also a reject.
	r = s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 4, WriteSeq: 999}})
	if r.outcome != types.Stale {
		t.Errorf("older SlotSeq: outcome = %v, want Stale", r.outcome)
	}

	// Strictly newer applies and is not reported as a new key.
	r = s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 6, WriteSeq: 0}})
	if r.outcome != types.Applied || r.wasNew {
		t.Errorf("newer SlotSeq: outcome=%v wasNew=%v, want Applied/false", r.outcome, r.wasNew)
	}
}

func TestKeyedStoreFetcherBacksfillsOnMiss(t *testing.T) {
	s := newKeyedStore[stubEntry](nil, "stub")
	key := testKey(3)
	fetchCalls := 0

	s.SetFetcher(func(k types.AccountKey) (stubEntry, bool) {
		fetchCalls++
		if k == key {
			return stubEntry{seq: types.SlotSeq{Slot: 1, WriteSeq: 0}}, true
		}
		return stubEntry{}, false
	})

	v, ok := s.Get(key)
	if !ok || v.seq.Slot != 1 {
		t.Fatalf("Get() with fetcher = %v, %v", v, ok)
	}
	if fetchCalls != 1 {
		t.Fatalf("fetcher called %d times, want 1", fetchCalls)
	}

	// Second Get is a direct hit; the fetcher should not be invoked again.
	s.Get(key)
	if fetchCalls != 1 {
		t.Errorf("fetcher called again on a cache hit: %d calls", fetchCalls)
	}
}

func TestKeyedStoreStats(t *testing.T) {
	s := newKeyedStore[stubEntry](nil, "stub")
	key := testKey(4)

	s.Get(key) // miss
	s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 1}})
	s.Get(key) // hit
	s.trySet(key, stubEntry{seq: types.SlotSeq{Slot: 0}}) // stale

	snap := s.Stats()
	if snap.Size != 1 {
		t.Errorf("Size = %d, want 1", snap.Size)
	}
	if snap.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snap.Misses)
	}
	if snap.Hits != 1 {
		t.Errorf("Hits = %d, want 1", snap.Hits)
	}
	if snap.Applied != 1 {
		t.Errorf("Applied = %d, want 1", snap.Applied)
	}
	if snap.Stale != 1 {
		t.Errorf("Stale = %d, want 1", snap.Stale)
	}
}
