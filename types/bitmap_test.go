// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "testing"

func TestBitmapSetAndTest(t *testing.T) {
	var bm Bitmap1024
	bm = BitmapSet(bm, 0)
	bm = BitmapSet(bm, -5)
	bm = BitmapSet(bm, 511)
	bm = BitmapSet(bm, -512)

	for _, idx := range []int32{0, -5, 511, -512} {
		if !BitmapTest(bm, idx) {
			t.Errorf("expected bit %d to be set", idx)
		}
	}
	for _, idx := range []int32{1, -6, 510, -511} {
		if BitmapTest(bm, idx) {
			t.Errorf("did not expect bit %d to be set", idx)
		}
	}
}

func TestBitmapOutOfRangeNeverDiverges(t *testing.T) {
	var bm Bitmap1024
	// Indices outside [-512, 511] report false rather than panicking or
	// wrapping into an adjacent bit.
	if BitmapTest(bm, 512) {
		t.Error("out-of-range index should report unset")
	}
	if BitmapTest(bm, -513) {
		t.Error("out-of-range index should report unset")
	}
	// BitmapSet on an out-of-range index is a silent no-op, not a panic.
	bm2 := BitmapSet(bm, 10000)
	if bm2 != bm {
		t.Error("BitmapSet on an out-of-range index must not mutate the bitmap")
	}
}

func TestBitmapIndexRange(t *testing.T) {
	lo, hi := BitmapIndexRange()
	if lo != -512 || hi != 511 {
		t.Errorf("BitmapIndexRange() = (%d, %d), want (-512, 511)", lo, hi)
	}
}

func TestBitmapSetIndices(t *testing.T) {
	var bm Bitmap1024
	bm = BitmapSet(bm, -3)
	bm = BitmapSet(bm, 0)
	bm = BitmapSet(bm, 4)
	bm = BitmapSet(bm, 100) // outside the queried range below

	got := BitmapSetIndices(bm, -10, 10)
	want := []int32{-3, 0, 4}
	if len(got) != len(want) {
		t.Fatalf("BitmapSetIndices() = %v, want %v", got, want)
	}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("BitmapSetIndices()[%d] = %d, want %d", i, got[i], v)
		}
	}
}

func TestBitmapSetIndicesClampsOutOfRangeBounds(t *testing.T) {
	var bm Bitmap1024
	bm = BitmapSet(bm, -512)
	bm = BitmapSet(bm, 511)

	// A caller scanning a huge ±R window should never need to bounds-check
	// itself first.
	got := BitmapSetIndices(bm, -100000, 100000)
	if len(got) != 2 || got[0] != -512 || got[1] != 511 {
		t.Errorf("BitmapSetIndices() with out-of-range bounds = %v", got)
	}
}

func TestBitmapSetIndicesEmptyRange(t *testing.T) {
	var bm Bitmap1024
	bm = BitmapSet(bm, 0)
	if got := BitmapSetIndices(bm, 5, 1); got != nil {
		t.Errorf("lo > hi should return nil, got %v", got)
	}
}
