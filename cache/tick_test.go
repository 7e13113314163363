// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/ammcore/types"
)

func initializedTickArray(pool types.AccountKey, start int32, seq types.SlotSeq) TickArray {
	a := TickArray{Pool: pool, StartTick: start, Seq: seq}
	a.Ticks[0].GrossLiquidity = *uint256.NewInt(1)
	return a
}

func TestTickCacheGetOrVirtual(t *testing.T) {
	c := NewTickCache(nil, 0)
	pool := testKey(1)

	// Neither cached nor marked non-existent: a genuine miss.
	if _, ok := c.GetOrVirtual(pool, 0); ok {
		t.Fatal("expected miss before anything is known about this array")
	}

	c.MarkNonExistent(pool, 0)
	a, ok := c.GetOrVirtual(pool, 0)
	if !ok {
		t.Fatal("expected a synthesized virtual array after MarkNonExistent")
	}
	if !a.Virtual {
		t.Error("synthesized array should be marked Virtual")
	}
	for i := range a.Ticks {
		if a.Ticks[i].Initialized() {
			t.Fatalf("virtual array tick %d should be uninitialized", i)
		}
	}
}

func TestTickCacheRealArraySupersedesNonExistentMarker(t *testing.T) {
	c := NewTickCache(nil, 0)
	pool := testKey(2)
	accountKey := testKey(3)

	c.MarkNonExistent(pool, 0)
	c.Set(accountKey, initializedTickArray(pool, 0, types.SlotSeq{Slot: 1}), minTickArrayRecordSize)

	got, ok := c.GetOrVirtual(pool, 0)
	if !ok || got.Virtual {
		t.Fatalf("expected the real array to take over from the virtual one, got %+v, %v", got, ok)
	}
}

func TestTickCacheMarkNonExistentDoesNotClobberRealEntry(t *testing.T) {
	c := NewTickCache(nil, 0)
	pool := testKey(4)
	accountKey := testKey(5)

	c.Set(accountKey, initializedTickArray(pool, 0, types.SlotSeq{Slot: 1}), minTickArrayRecordSize)
	c.MarkNonExistent(pool, 0)

	got, ok := c.Get(TickArrayID{Pool: pool, StartTick: 0})
	if !ok || got.Virtual {
		t.Error("MarkNonExistent must not overwrite an already-cached real array")
	}
}

func TestTickCacheRejectsUndersizedPayload(t *testing.T) {
	c := NewTickCache(nil, 0)
	r := c.Set(testKey(6), initializedTickArray(testKey(1), 0, types.SlotSeq{Slot: 1}), minTickArrayRecordSize-1)
	if r.Outcome != types.RejectedInvalid {
		t.Fatalf("Outcome = %v, want RejectedInvalid", r.Outcome)
	}
}

func TestTickCacheLookupByAccountKey(t *testing.T) {
	c := NewTickCache(nil, 0)
	pool := testKey(7)
	accountKey := testKey(8)

	c.Set(accountKey, initializedTickArray(pool, 120, types.SlotSeq{Slot: 1}), minTickArrayRecordSize)

	id, ok := c.LookupByAccountKey(accountKey)
	if !ok || id.Pool != pool || id.StartTick != 120 {
		t.Fatalf("LookupByAccountKey() = %v, %v", id, ok)
	}
}

// fakeLifecycle lets eviction tests pin specific pools without wiring a real
// lifecycle.Registry (package cache never imports package lifecycle).
type fakeLifecycle struct {
	protected map[types.AccountKey]bool
}

func (f fakeLifecycle) StateOf(pool types.AccountKey) (types.LifecycleState, bool) {
	if f.protected[pool] {
		return types.Active, true
	}
	return types.Discovered, true
}

func TestTickCacheEvictionSkipsProtectedPools(t *testing.T) {
	c := NewTickCache(nil, 1) // ceiling of 1 forces eviction on the second insert
	protectedPool := testKey(1)
	freePool := testKey(2)

	c.SetLifecycleQuerier(fakeLifecycle{protected: map[types.AccountKey]bool{protectedPool: true}})

	c.Set(testKey(10), initializedTickArray(protectedPool, 0, types.SlotSeq{Slot: 1}), minTickArrayRecordSize)
	c.Set(testKey(11), initializedTickArray(freePool, 0, types.SlotSeq{Slot: 2}), minTickArrayRecordSize)

	if _, ok := c.Get(TickArrayID{Pool: protectedPool, StartTick: 0}); !ok {
		t.Error("eviction must never remove an entry belonging to a protected pool")
	}
	if _, ok := c.Get(TickArrayID{Pool: freePool, StartTick: 0}); ok {
		t.Error("expected the unprotected pool's entry to have been evicted")
	}
}

func TestTickCacheEvictionLeavesSizeOverCeilingWhenEverythingProtected(t *testing.T) {
	c := NewTickCache(nil, 1)
	pool := testKey(3)
	c.SetLifecycleQuerier(fakeLifecycle{protected: map[types.AccountKey]bool{pool: true}})

	c.Set(testKey(20), initializedTickArray(pool, 0, types.SlotSeq{Slot: 1}), minTickArrayRecordSize)
	c.Set(testKey(21), initializedTickArray(pool, 60, types.SlotSeq{Slot: 2}), minTickArrayRecordSize)

	if snap := c.Stats(); snap.Size != 2 {
		t.Errorf("Size = %d, want 2 (size may legitimately exceed the ceiling when every entry is protected)", snap.Size)
	}
}
