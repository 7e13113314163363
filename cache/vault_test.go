// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/luxfi/ammcore/types"
)

func TestVaultCacheRejectsUndersizedPayload(t *testing.T) {
	c := NewVaultCache(nil)
	key := testKey(1)

	r := c.Set(key, Vault{Amount: 100, Seq: types.SlotSeq{Slot: 1}}, minVaultRecordSize-1)
	if r.Outcome != types.RejectedInvalid {
		t.Fatalf("Outcome = %v, want RejectedInvalid", r.Outcome)
	}
}

func TestVaultCacheSetAndGet(t *testing.T) {
	c := NewVaultCache(nil)
	key := testKey(2)

	r := c.Set(key, Vault{Amount: 500, Seq: types.SlotSeq{Slot: 1}}, minVaultRecordSize)
	if r.Outcome != types.Applied || !r.WasNew {
		t.Fatalf("Set() = %v", r)
	}

	got, ok := c.Get(key)
	if !ok || got.Amount != 500 {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
}

func TestVaultCacheMonotonicOverwrite(t *testing.T) {
	c := NewVaultCache(nil)
	key := testKey(3)

	c.Set(key, Vault{Amount: 100, Seq: types.SlotSeq{Slot: 1}}, minVaultRecordSize)
	r := c.Set(key, Vault{Amount: 50, Seq: types.SlotSeq{Slot: 0}}, minVaultRecordSize)
	if r.Outcome != types.Stale {
		t.Fatalf("stale write: outcome = %v, want Stale", r.Outcome)
	}
	got, _ := c.Get(key)
	if got.Amount != 100 {
		t.Error("stale write must not change the stored balance")
	}

	r = c.Set(key, Vault{Amount: 200, Seq: types.SlotSeq{Slot: 2}}, minVaultRecordSize)
	if r.Outcome != types.Applied {
		t.Fatalf("newer write: outcome = %v, want Applied", r.Outcome)
	}
	got, _ = c.Get(key)
	if got.Amount != 200 {
		t.Errorf("Amount = %d, want 200", got.Amount)
	}
}
