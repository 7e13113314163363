// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "testing"

func TestSlotSeqOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b SlotSeq
		less bool
	}{
		{"same slot, lower write_seq", SlotSeq{Slot: 10, WriteSeq: 1}, SlotSeq{Slot: 10, WriteSeq: 2}, true},
		{"same slot, higher write_seq", SlotSeq{Slot: 10, WriteSeq: 2}, SlotSeq{Slot: 10, WriteSeq: 1}, false},
		{"lower slot wins regardless of write_seq", SlotSeq{Slot: 9, WriteSeq: 100}, SlotSeq{Slot: 10, WriteSeq: 0}, true},
		{"equal", SlotSeq{Slot: 5, WriteSeq: 5}, SlotSeq{Slot: 5, WriteSeq: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.less {
				t.Errorf("Less() = %v, want %v", got, tt.less)
			}
		})
	}
}

func TestSlotSeqNewerThan(t *testing.T) {
	older := SlotSeq{Slot: 1, WriteSeq: 0}
	newer := SlotSeq{Slot: 1, WriteSeq: 1}
	equal := SlotSeq{Slot: 1, WriteSeq: 0}

	if !newer.NewerThan(older) {
		t.Error("expected newer to be NewerThan(older)")
	}
	if older.NewerThan(newer) {
		t.Error("did not expect older to be NewerThan(newer)")
	}
	// Equality is a reject, never an overwrite.
	if equal.NewerThan(older) {
		t.Error("equal SlotSeq must not be NewerThan an identical one")
	}
}

func TestLifecycleStateProtectsDependencies(t *testing.T) {
	tests := []struct {
		state    LifecycleState
		protects bool
	}{
		{Discovered, false},
		{TopologyFrozen, true},
		{Active, true},
		{Refreshing, false},
	}
	for _, tt := range tests {
		if got := tt.state.ProtectsDependencies(); got != tt.protects {
			t.Errorf("%s.ProtectsDependencies() = %v, want %v", tt.state, got, tt.protects)
		}
	}
}

func TestVenueIsConstantProduct(t *testing.T) {
	tests := []struct {
		venue Venue
		want  bool
	}{
		{VenueCPMMExplicitFee, true},
		{VenueCPMMSharedFee, true},
		{VenueCLMM, false},
		{VenueDLMM, false},
	}
	for _, tt := range tests {
		if got := tt.venue.IsConstantProduct(); got != tt.want {
			t.Errorf("%s.IsConstantProduct() = %v, want %v", tt.venue, got, tt.want)
		}
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirAtoB.Opposite() != DirBtoA {
		t.Error("DirAtoB.Opposite() should be DirBtoA")
	}
	if DirBtoA.Opposite() != DirAtoB {
		t.Error("DirBtoA.Opposite() should be DirAtoB")
	}
	if DirAtoB.Opposite().Opposite() != DirAtoB {
		t.Error("Opposite() should be its own inverse")
	}
}

func TestStringersCoverUnknownValues(t *testing.T) {
	// Every Stringer should degrade gracefully for an out-of-range value
	// rather than panic, since a decode bug upstream could hand one in.
	if got := Venue(255).String(); got == "" {
		t.Error("Venue.String() should never return empty")
	}
	if got := EventKind(255).String(); got == "" {
		t.Error("EventKind.String() should never return empty")
	}
	if got := Outcome(255).String(); got == "" {
		t.Error("Outcome.String() should never return empty")
	}
	if got := LifecycleState(255).String(); got == "" {
		t.Error("LifecycleState.String() should never return empty")
	}
}
