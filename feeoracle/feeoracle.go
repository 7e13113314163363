// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package feeoracle infers a pool's effective fee rate from observed swaps
// rather than trusting a possibly-stale or venue-ambiguous fee-config field.
// It is an auxiliary signal: simulators default to the configured
// fee. The engine consults the oracle when a caller asks for the learned
// rate, and its CLMM quote path falls back to it when no fee-config record
// is cached.
package feeoracle

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ammcore/types"
)

// DefaultSanityMinBps and DefaultSanityMaxBps bound the window an observed
// sample must fall within to be trusted at all. Anything outside it is almost certainly a decoding or rounding artifact,
// not a real fee, and is discarded rather than folded into the estimate.
const (
	DefaultSanityMinBps uint32 = 0
	DefaultSanityMaxBps uint32 = 200
)

// DefaultSmoothing is the exponential-moving-average divisor: each new
// sample moves the estimate 1/DefaultSmoothing of the way from its current
// value to the observed value. Higher values smooth out per-swap noise at
// the cost of slower adaptation to an actual on-chain fee change.
const DefaultSmoothing uint32 = 8

const bpsDenominator = 10000

// key identifies one (pool, direction) learned-fee series.
type key struct {
	pool types.AccountKey
	dir  types.Direction
}

// entry holds the running estimate plus the sample count for diagnostics.
type entry struct {
	estimateBps uint32
	samples     uint64
}

// Oracle tracks one learned-fee estimate per (pool, direction).
type Oracle struct {
	mu   sync.RWMutex
	data map[key]*entry

	sanityMinBps uint32
	sanityMaxBps uint32
	smoothing    uint32
	defaultBps   uint32
}

// New builds an oracle with the default sanity window and smoothing factor.
// defaultBps is returned by Lookup for any (pool, direction) with no
// observations yet.
func New(defaultBps uint32) *Oracle {
	return &Oracle{
		data:         make(map[key]*entry),
		sanityMinBps: DefaultSanityMinBps,
		sanityMaxBps: DefaultSanityMaxBps,
		smoothing:    DefaultSmoothing,
		defaultBps:   defaultBps,
	}
}

// WithSanityWindow overrides the default [0, 200] bps acceptance window.
func (o *Oracle) WithSanityWindow(minBps, maxBps uint32) *Oracle {
	o.sanityMinBps = minBps
	o.sanityMaxBps = maxBps
	return o
}

// WithSmoothing overrides the default EMA divisor. Must be >= 1.
func (o *Oracle) WithSmoothing(divisor uint32) *Oracle {
	if divisor == 0 {
		divisor = 1
	}
	o.smoothing = divisor
	return o
}

// Observe folds one executed swap into the (pool, direction) estimate.
// reserveIn/reserveOut are the constant-product reserves
// immediately before the swap; amountIn/amountOut are the swap's actual
// input and output. The implied no-fee output is compared against the
// actual output to back out the fee rate the venue must have applied:
//
//	theoreticalOut = reserveOut - reserveIn*reserveOut / (reserveIn+amountIn)
//	observedBps    = (theoreticalOut - amountOut) * 10000 / theoreticalOut
//
// Samples outside the sanity window are dropped without affecting the
// estimate — a single bad decode should never move the oracle.
func (o *Oracle) Observe(pool types.AccountKey, dir types.Direction, amountIn, amountOut, reserveIn, reserveOut uint256.Int) {
	if reserveIn.IsZero() || reserveOut.IsZero() || amountIn.IsZero() {
		return
	}

	denom := new(uint256.Int).Add(&reserveIn, &amountIn)
	if denom.IsZero() {
		return
	}
	k := new(uint256.Int).Mul(&reserveIn, &reserveOut)
	quotient := new(uint256.Int).Div(k, denom)
	if quotient.Gt(&reserveOut) {
		return // pathological inputs; never happens for a consistent reserve pair
	}
	theoreticalOut := new(uint256.Int).Sub(&reserveOut, quotient)
	if theoreticalOut.IsZero() || theoreticalOut.Lt(&amountOut) {
		return // venue paid out more than the no-fee curve implies: not a fee, a decode error
	}

	shortfall := new(uint256.Int).Sub(theoreticalOut, &amountOut)
	scaled := new(uint256.Int).Mul(shortfall, uint256.NewInt(bpsDenominator))
	observed := new(uint256.Int).Div(scaled, theoreticalOut)
	if !observed.IsUint64() || observed.Uint64() > uint64(^uint32(0)) {
		return
	}
	observedBps := uint32(observed.Uint64())
	if observedBps < o.sanityMinBps || observedBps > o.sanityMaxBps {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	k2 := key{pool: pool, dir: dir}
	e, ok := o.data[k2]
	if !ok {
		o.data[k2] = &entry{estimateBps: observedBps, samples: 1}
		return
	}
	// EMA: estimate += (observed - estimate) / smoothing, done in integer
	// arithmetic that tolerates the delta being negative.
	if observedBps >= e.estimateBps {
		e.estimateBps += (observedBps - e.estimateBps) / o.smoothing
	} else {
		e.estimateBps -= (e.estimateBps - observedBps) / o.smoothing
	}
	e.samples++
}

// Lookup returns the learned fee rate for (pool, direction) in basis
// points, and the number of samples backing it. If no observation has ever
// been recorded it returns the oracle's configured default and zero samples.
func (o *Oracle) Lookup(pool types.AccountKey, dir types.Direction) (bps uint32, samples uint64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.data[key{pool: pool, dir: dir}]
	if !ok {
		return o.defaultBps, 0
	}
	return e.estimateBps, e.samples
}
