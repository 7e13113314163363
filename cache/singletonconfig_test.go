// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"testing"

	"github.com/luxfi/ammcore/types"
)

func TestSingletonConfigCacheSetAndGet(t *testing.T) {
	c := NewSingletonConfigCache(nil)
	key := testKey(1)

	r := c.Set(key, SingletonConfig{FeeNumerator: 25, FeeDenominator: 10000, Seq: types.SlotSeq{Slot: 1}}, minSingletonConfigRecordSize)
	if r.Outcome != types.Applied {
		t.Fatalf("Set() = %v", r)
	}

	got, ok := c.Get(key)
	if !ok || got.FeeNumerator != 25 || got.FeeDenominator != 10000 {
		t.Fatalf("Get() = %v, %v", got, ok)
	}
}

func TestSingletonConfigCacheRejectsStale(t *testing.T) {
	c := NewSingletonConfigCache(nil)
	key := testKey(2)

	c.Set(key, SingletonConfig{FeeNumerator: 25, FeeDenominator: 10000, Seq: types.SlotSeq{Slot: 5}}, minSingletonConfigRecordSize)
	r := c.Set(key, SingletonConfig{FeeNumerator: 30, FeeDenominator: 10000, Seq: types.SlotSeq{Slot: 1}}, minSingletonConfigRecordSize)
	if r.Outcome != types.Stale {
		t.Fatalf("Outcome = %v, want Stale", r.Outcome)
	}
	got, _ := c.Get(key)
	if got.FeeNumerator != 25 {
		t.Error("stale write must not change the stored fee")
	}
}
