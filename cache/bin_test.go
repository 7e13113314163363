// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/luxfi/ammcore/types"
)

func nonEmptyBinArray(pool types.AccountKey, index int32, seq types.SlotSeq) BinArray {
	a := BinArray{Pool: pool, ArrayIndex: index, Seq: seq}
	a.Bins[0] = Bin{AmountX: 100, AmountY: 200}
	return a
}

func TestBinCacheGetOrVirtual(t *testing.T) {
	c := NewBinCache(nil, 0)
	pool := testKey(1)

	if _, ok := c.GetOrVirtual(pool, 0); ok {
		t.Fatal("expected miss before anything is known about this bin array")
	}

	c.MarkNonExistent(pool, 0)
	a, ok := c.GetOrVirtual(pool, 0)
	if !ok || !a.Virtual {
		t.Fatalf("expected a virtual bin array, got %+v, %v", a, ok)
	}
	for i := range a.Bins {
		if !a.Bins[i].Empty() {
			t.Fatalf("virtual bin array index %d should be empty", i)
		}
	}
}

func TestBinCacheRealArraySupersedesNonExistentMarker(t *testing.T) {
	c := NewBinCache(nil, 0)
	pool := testKey(2)

	c.MarkNonExistent(pool, 0)
	c.Set(testKey(3), nonEmptyBinArray(pool, 0, types.SlotSeq{Slot: 1}), minBinArrayRecordSize)

	got, ok := c.GetOrVirtual(pool, 0)
	if !ok || got.Virtual {
		t.Fatalf("expected the real array to take over, got %+v, %v", got, ok)
	}
}

func TestBinCacheRejectsUndersizedPayload(t *testing.T) {
	c := NewBinCache(nil, 0)
	r := c.Set(testKey(4), nonEmptyBinArray(testKey(1), 0, types.SlotSeq{Slot: 1}), minBinArrayRecordSize-1)
	if r.Outcome != types.RejectedInvalid {
		t.Fatalf("Outcome = %v, want RejectedInvalid", r.Outcome)
	}
}

func TestBinCacheMonotonicOverwrite(t *testing.T) {
	c := NewBinCache(nil, 0)
	pool := testKey(5)
	accountKey := testKey(6)

	c.Set(accountKey, nonEmptyBinArray(pool, 0, types.SlotSeq{Slot: 5}), minBinArrayRecordSize)
	r := c.Set(accountKey, nonEmptyBinArray(pool, 0, types.SlotSeq{Slot: 5}), minBinArrayRecordSize)
	if r.Outcome != types.Stale {
		t.Fatalf("equal SlotSeq: outcome = %v, want Stale", r.Outcome)
	}
}

func TestBinCacheEvictionSkipsProtectedPools(t *testing.T) {
	c := NewBinCache(nil, 1)
	protectedPool := testKey(7)
	freePool := testKey(8)
	c.SetLifecycleQuerier(fakeLifecycle{protected: map[types.AccountKey]bool{protectedPool: true}})

	c.Set(testKey(10), nonEmptyBinArray(protectedPool, 0, types.SlotSeq{Slot: 1}), minBinArrayRecordSize)
	c.Set(testKey(11), nonEmptyBinArray(freePool, 0, types.SlotSeq{Slot: 2}), minBinArrayRecordSize)

	if _, ok := c.Get(BinArrayID{Pool: protectedPool, ArrayIndex: 0}); !ok {
		t.Error("eviction must never remove a protected pool's entry")
	}
	if _, ok := c.Get(BinArrayID{Pool: freePool, ArrayIndex: 0}); ok {
		t.Error("expected the unprotected pool's entry to have been evicted")
	}
}
