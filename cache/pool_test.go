// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/luxfi/ammcore/types"
)

func minimalPool(venue types.Venue, seq types.SlotSeq) Pool {
	return Pool{
		Venue:      venue,
		BaseMint:   testKey(10),
		QuoteMint:  testKey(11),
		BaseVault:  testKey(12),
		QuoteVault: testKey(13),
		Seq:        seq,
	}
}

func TestPoolCacheSetRejectsUndersizedPayload(t *testing.T) {
	c := NewPoolCache(nil)
	key := testKey(1)

	r := c.Set(key, minimalPool(types.VenueCPMMExplicitFee, types.SlotSeq{Slot: 1}), minPoolRecordSize-1)
	if r.Outcome != types.RejectedInvalid {
		t.Fatalf("Outcome = %v, want RejectedInvalid", r.Outcome)
	}
	if _, ok := c.Get(key); ok {
		t.Fatal("rejected write must never touch the map")
	}
}

func TestPoolCacheSetAppliesAndReportsNew(t *testing.T) {
	c := NewPoolCache(nil)
	key := testKey(2)

	r := c.Set(key, minimalPool(types.VenueCPMMExplicitFee, types.SlotSeq{Slot: 1}), minPoolRecordSize)
	if r.Outcome != types.Applied || !r.WasNew {
		t.Fatalf("first write: outcome=%v wasNew=%v", r.Outcome, r.WasNew)
	}

	got, ok := c.Get(key)
	if !ok || got.Key != key {
		t.Fatalf("Get() = %v, %v", got, ok)
	}

	// A second write at the same key is not new, even if applied.
	r = c.Set(key, minimalPool(types.VenueCPMMExplicitFee, types.SlotSeq{Slot: 2}), minPoolRecordSize)
	if r.Outcome != types.Applied || r.WasNew {
		t.Fatalf("second write: outcome=%v wasNew=%v, want Applied/false", r.Outcome, r.WasNew)
	}
}

func TestPoolCacheSetRejectsStale(t *testing.T) {
	c := NewPoolCache(nil)
	key := testKey(3)

	c.Set(key, minimalPool(types.VenueCPMMExplicitFee, types.SlotSeq{Slot: 10}), minPoolRecordSize)
	r := c.Set(key, minimalPool(types.VenueCPMMExplicitFee, types.SlotSeq{Slot: 5}), minPoolRecordSize)
	if r.Outcome != types.Stale {
		t.Fatalf("Outcome = %v, want Stale", r.Outcome)
	}
}

func TestPoolCacheStatsSize(t *testing.T) {
	c := NewPoolCache(nil)
	c.Set(testKey(4), minimalPool(types.VenueCLMM, types.SlotSeq{Slot: 1}), minPoolRecordSize)
	c.Set(testKey(5), minimalPool(types.VenueDLMM, types.SlotSeq{Slot: 1}), minPoolRecordSize)

	if snap := c.Stats(); snap.Size != 2 {
		t.Errorf("Stats().Size = %d, want 2", snap.Size)
	}
}
