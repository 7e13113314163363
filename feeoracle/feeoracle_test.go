// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package feeoracle

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ammcore/types"
)

func testPool() types.AccountKey {
	var k types.AccountKey
	k[0] = 7
	return k
}

func u256(v uint64) uint256.Int { return *uint256.NewInt(v) }

// TestObserveRecoversFeeWithinSanityWindow: a swap simulated with a known
// fee, fed back through Observe, recovers a rate within bps rounding of the
// original (the oracle's first-sample path takes
// the observed estimate directly, so there is no EMA smoothing to account
// for).
func TestObserveRecoversFeeWithinSanityWindow(t *testing.T) {
	o := New(25)
	pool := testPool()

	reserveIn := u256(1_000_000_000)
	reserveOut := u256(2_000_000_000)
	amountIn := u256(10_000_000)

	// Simulate a 30 bps swap by hand (mirrors sim/cpmm.SwapExactIn): fee on
	// the input side, then the constant-product curve.
	feeBps := uint64(30)
	afterFee := new(uint256.Int).Sub(&amountIn, new(uint256.Int).Div(
		new(uint256.Int).Mul(&amountIn, uint256.NewInt(feeBps)), uint256.NewInt(10000)))
	numerator := new(uint256.Int).Mul(&reserveOut, afterFee)
	denominator := new(uint256.Int).Add(&reserveIn, afterFee)
	amountOut := new(uint256.Int).Div(numerator, denominator)

	o.Observe(pool, types.DirAtoB, amountIn, *amountOut, reserveIn, reserveOut)

	got, samples := o.Lookup(pool, types.DirAtoB)
	require.Equal(t, uint64(1), samples)
	require.InDelta(t, float64(feeBps), float64(got), 2, "learned fee should recover the simulated rate within a couple of bps")
}

func TestLookupReturnsDefaultWithZeroSamples(t *testing.T) {
	o := New(42)
	bps, samples := o.Lookup(testPool(), types.DirAtoB)
	require.Equal(t, uint32(42), bps)
	require.Zero(t, samples)
}

// TestObserveRejectsOutOfWindowSample ensures a sample implying a fee above
// the configured sanity ceiling never perturbs the estimate.
func TestObserveRejectsOutOfWindowSample(t *testing.T) {
	o := New(10)
	pool := testPool()

	reserveIn := u256(1_000_000_000)
	reserveOut := u256(2_000_000_000)
	amountIn := u256(10_000_000)

	// An output far below even the no-fee curve implies a fee well outside
	// [0, 200] bps; Observe must discard it silently.
	bogusOut := u256(1)
	o.Observe(pool, types.DirAtoB, amountIn, bogusOut, reserveIn, reserveOut)

	bps, samples := o.Lookup(pool, types.DirAtoB)
	require.Equal(t, uint32(10), bps, "default untouched by a rejected sample")
	require.Zero(t, samples)
}

func TestObserveIgnoresZeroReserves(t *testing.T) {
	o := New(10)
	pool := testPool()
	o.Observe(pool, types.DirAtoB, u256(100), u256(50), u256(0), u256(0))
	_, samples := o.Lookup(pool, types.DirAtoB)
	require.Zero(t, samples)
}

func TestObserveKeepsDirectionsIndependent(t *testing.T) {
	o := New(0)
	pool := testPool()
	reserveIn := u256(1_000_000_000)
	reserveOut := u256(2_000_000_000)
	amountIn := u256(10_000_000)

	o.Observe(pool, types.DirAtoB, amountIn, u256(19_743_160), reserveIn, reserveOut)
	_, sampleA := o.Lookup(pool, types.DirAtoB)
	_, sampleB := o.Lookup(pool, types.DirBtoA)
	require.Equal(t, uint64(1), sampleA)
	require.Zero(t, sampleB, "observing one direction must not affect the other")
}
