// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import "testing"

func TestNewFamilyWiresAllSixCaches(t *testing.T) {
	f := NewFamily(nil)
	if f.Pool == nil || f.Vault == nil || f.Tick == nil || f.Bin == nil || f.VenueConfig == nil || f.SingletonConfig == nil {
		t.Fatalf("NewFamily() left a nil cache: %+v", f)
	}
}

func TestNewFamilyUsesDefaultEvictionCeilings(t *testing.T) {
	f := NewFamily(nil)
	if f.Tick.evictCeiling != DefaultTickEvictCeiling {
		t.Errorf("Tick.evictCeiling = %d, want %d", f.Tick.evictCeiling, DefaultTickEvictCeiling)
	}
	if f.Bin.evictCeiling != DefaultBinEvictCeiling {
		t.Errorf("Bin.evictCeiling = %d, want %d", f.Bin.evictCeiling, DefaultBinEvictCeiling)
	}
}
