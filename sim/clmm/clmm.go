// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clmm simulates swaps against the concentrated-liquidity venue: a
// tick-by-tick walk that applies the fee on the input side,
// crosses initialized ticks updating active liquidity, and stops on input
// exhaustion, liquidity dropping to zero, or reaching the edge of the tick
// array it is reading. Input carries no caller-supplied price limit.
package clmm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/luxfi/ammcore/cache"
	"github.com/luxfi/ammcore/types"
)

// ErrNoLiquidity is returned when the walk cannot make any progress at all
// — the pool's active liquidity is already zero at the starting tick.
var ErrNoLiquidity = errors.New("clmm: zero liquidity at current tick")

const feeDenominator = 10000

// maxTicksWalked bounds one simulation regardless of how many ticks are
// initialized, so a pathological bitmap can never make a single quote loop
// unboundedly.
const maxTicksWalked = 4 * cache.TickArraySize

// TickArrayProvider is the read view the walker needs of the tick cache —
// narrowed so tests can supply a fixture without a full *cache.TickCache.
type TickArrayProvider interface {
	GetOrVirtual(pool types.AccountKey, startTick int32) (cache.TickArray, bool)
}

// Input describes one swap request against a CLMM pool.
type Input struct {
	Pool            types.AccountKey
	Direction       types.Direction
	AmountIn        uint256.Int
	CurrentTick     int32
	TickSpacing     int32
	SqrtPriceX64    uint256.Int
	Liquidity       uint256.Int
	FeeBps          uint32
	TickArrayBitmap types.Bitmap1024
}

// Result is the outcome of one simulated swap.
type Result struct {
	AmountIn     uint256.Int
	AmountOut    uint256.Int
	FeeAmount    uint256.Int
	ImpactBps    uint32
	EndTick      int32
	EndSqrtPrice uint256.Int
	TicksCrossed int
	Confidence   types.Confidence
}

// Simulate walks in.AmountIn through the tick structure starting at
// in.CurrentTick. Direction DirAtoB sells the base asset, decreasing
// price; DirBtoA buys it, increasing price.
func Simulate(ticks TickArrayProvider, in Input) (Result, error) {
	if in.Liquidity.IsZero() {
		return Result{}, ErrNoLiquidity
	}
	span := int32(cache.TickArraySize) * in.TickSpacing
	if span <= 0 {
		return Result{}, errors.New("clmm: non-positive tick spacing")
	}

	feeAmount := new(uint256.Int).Mul(&in.AmountIn, uint256.NewInt(uint64(in.FeeBps)))
	feeAmount.Div(feeAmount, uint256.NewInt(feeDenominator))
	remaining := new(uint256.Int).Sub(&in.AmountIn, feeAmount)

	increasing := in.Direction == types.DirBtoA

	tick := in.CurrentTick
	sqrtP := in.SqrtPriceX64
	L := in.Liquidity
	confidence := types.ConfidenceFull
	totalOut := new(uint256.Int)
	crossed := 0

	for steps := 0; steps < maxTicksWalked && !remaining.IsZero() && !L.IsZero(); steps++ {
		arrayStart := arrayStartForTick(tick, span)
		array, ok := ticks.GetOrVirtual(in.Pool, arrayStart)
		if !ok {
			// Missing dependency mid-walk: fall back to a single-range
			// quote across the remainder using the liquidity and price we
			// already have, rather than fail the whole simulation.
			out, sqrtEnd, used := virtualRangeSwap(sqrtP, L, *remaining, increasing, nil)
			totalOut.Add(totalOut, &out)
			remaining.Sub(remaining, &used)
			sqrtP = sqrtEnd
			confidence = types.ConfidenceReduced
			break
		}

		nextTick, hasNext := nextInitializedTick(array, tick, in.TickSpacing, increasing, in.TickArrayBitmap, arrayStart, span)
		var boundary *int32
		if hasNext {
			boundary = &nextTick
		}

		var sqrtTarget uint256.Int
		if boundary != nil {
			sqrtTarget = sqrtPriceAtTick(*boundary)
		} else {
			// No further initialized tick in this array: trade at most up to
			// the array's edge in the direction of travel.
			edgeTick := arrayStart
			if increasing {
				edgeTick = arrayStart + span
			}
			sqrtTarget = sqrtPriceAtTick(edgeTick)
			if (increasing && sqrtTarget.Cmp(&sqrtP) <= 0) || (!increasing && sqrtTarget.Cmp(&sqrtP) >= 0) {
				confidence = types.ConfidenceReduced
				break
			}
		}

		out, sqrtEnd, used := virtualRangeSwap(sqrtP, L, *remaining, increasing, &sqrtTarget)
		totalOut.Add(totalOut, &out)
		remaining.Sub(remaining, &used)
		sqrtP = sqrtEnd

		if sqrtEnd.Cmp(&sqrtTarget) != 0 {
			// Input exhausted before reaching the next initialized tick —
			// stay inside this range, do not cross.
			continue
		}
		if remaining.IsZero() {
			// Reached the boundary at exactly the moment input ran out.
			// Tie-break toward "just consumed, do not cross": the
			// tick's liquidity delta only applies once a swap actually
			// trades through it, and this one stopped precisely at the
			// edge.
			break
		}
		if boundary == nil {
			// Reached the array's edge and input remains: the walk has run
			// off the edge of the array it was reading.
			confidence = types.ConfidenceReduced
			break
		}
		// Reached the boundary with input still remaining: cross it and
		// fold in the liquidity delta recorded on that tick.
		tick = *boundary
		idx := tickIndexInArray(tick, arrayStart, in.TickSpacing)
		if idx >= 0 && idx < cache.TickArraySize && array.Ticks[idx].Initialized() {
			applyLiquidityDelta(&L, array.Ticks[idx], increasing)
			crossed++
		}
	}

	endSqrtPrice := sqrtP
	impact := priceImpactBps(in.SqrtPriceX64, endSqrtPrice, increasing)

	return Result{
		AmountIn:     in.AmountIn,
		AmountOut:    *totalOut,
		FeeAmount:    *feeAmount,
		ImpactBps:    impact,
		EndTick:      tick,
		EndSqrtPrice: endSqrtPrice,
		TicksCrossed: crossed,
		Confidence:   confidence,
	}, nil
}

func arrayStartForTick(tick, span int32) int32 {
	q := tick / span
	if tick%span != 0 && tick < 0 {
		q--
	}
	return q * span
}

func tickIndexInArray(tick, arrayStart, tickSpacing int32) int {
	if tickSpacing <= 0 {
		return -1
	}
	return int((tick - arrayStart) / tickSpacing)
}

// nextInitializedTick scans array for the next initialized tick strictly
// beyond the walk's current position, in the direction of travel, bounded
// to this array. When none is found it reports hasNext=false; Simulate then
// trades at most up to the array's edge and, if input remains there, stops
// with reduced confidence. The neighbouring array is not fetched.
func nextInitializedTick(array cache.TickArray, fromTick, tickSpacing int32, increasing bool, bitmap types.Bitmap1024, arrayStart, span int32) (int32, bool) {
	if tickSpacing <= 0 {
		return 0, false
	}
	startIdx := tickIndexInArray(fromTick, arrayStart, tickSpacing)
	if increasing {
		for i := startIdx + 1; i < cache.TickArraySize; i++ {
			if i >= 0 && array.Ticks[i].Initialized() {
				return arrayStart + int32(i)*tickSpacing, true
			}
		}
	} else {
		for i := startIdx - 1; i >= 0; i-- {
			if i < cache.TickArraySize && array.Ticks[i].Initialized() {
				return arrayStart + int32(i)*tickSpacing, true
			}
		}
	}
	return 0, false
}

// applyLiquidityDelta folds a crossed tick's signed net-liquidity delta
// into L, honoring the standard concentrated-liquidity crossing rule: when
// price increases through a tick the delta is added as recorded; when
// price decreases through it, the sign is reversed.
func applyLiquidityDelta(L *uint256.Int, t cache.Tick, increasing bool) {
	negative := t.NetLiquidityNegative
	if !increasing {
		negative = !negative
	}
	if negative {
		if L.Cmp(&t.NetLiquidityDelta) < 0 {
			L.Clear()
			return
		}
		L.Sub(L, &t.NetLiquidityDelta)
		return
	}
	L.Add(L, &t.NetLiquidityDelta)
}

// virtualRangeSwap swaps as much of amountAvailable as possible between
// sqrtPriceCurrent and an optional sqrtPriceTarget, using the standard
// concentrated-liquidity virtual-reserve identity (x = L/sqrtP, y =
// L*sqrtP) to reduce the range to an ordinary constant-product step. It
// returns the output produced, the ending sqrt price, and the amount of
// input actually consumed (less than amountAvailable only if the target
// boundary was reached first).
func virtualRangeSwap(sqrtPriceCurrent, L, amountAvailable uint256.Int, increasing bool, sqrtPriceTarget *uint256.Int) (amountOut, sqrtPriceEnd, amountUsed uint256.Int) {
	q64 := new(uint256.Int).Lsh(uint256.NewInt(1), 64)

	if increasing {
		// Selling quote for base: input is token1 (quote), output token0.
		// amount1ForFullRange = L*(sqrtTarget - sqrtCurrent)/Q64
		if sqrtPriceTarget != nil && sqrtPriceTarget.Cmp(&sqrtPriceCurrent) > 0 {
			diff := new(uint256.Int).Sub(sqrtPriceTarget, &sqrtPriceCurrent)
			full := new(uint256.Int).Mul(&L, diff)
			full.Div(full, q64)
			if full.Cmp(&amountAvailable) <= 0 {
				out := amount0Delta(sqrtPriceCurrent, *sqrtPriceTarget, L)
				return out, *sqrtPriceTarget, *full
			}
		}
		// Partial: solve sqrtNext = sqrtCurrent + amountAvailable*Q64/L
		delta := new(uint256.Int).Mul(&amountAvailable, q64)
		if L.IsZero() {
			return *new(uint256.Int), sqrtPriceCurrent, *new(uint256.Int)
		}
		delta.Div(delta, &L)
		sqrtNext := new(uint256.Int).Add(&sqrtPriceCurrent, delta)
		if sqrtPriceTarget != nil && sqrtNext.Cmp(sqrtPriceTarget) > 0 {
			sqrtNext = sqrtPriceTarget
		}
		out := amount0Delta(sqrtPriceCurrent, *sqrtNext, L)
		return out, *sqrtNext, amountAvailable
	}

	// Selling base for quote: input token0, output token1, price decreases.
	if sqrtPriceTarget != nil && sqrtPriceTarget.Cmp(&sqrtPriceCurrent) < 0 {
		full := amount0Delta(*sqrtPriceTarget, sqrtPriceCurrent, L)
		if full.Cmp(&amountAvailable) <= 0 {
			out := amount1Delta(*sqrtPriceTarget, sqrtPriceCurrent, L)
			return out, *sqrtPriceTarget, full
		}
	}
	// Partial: 1/sqrtNext = 1/sqrtCurrent + amountAvailable/L
	if L.IsZero() || sqrtPriceCurrent.IsZero() {
		return *new(uint256.Int), sqrtPriceCurrent, *new(uint256.Int)
	}
	lhs := new(uint256.Int).Mul(&L, &sqrtPriceCurrent) // L*sqrtCurrent, Q64
	rhs := new(uint256.Int).Mul(&amountAvailable, &sqrtPriceCurrent)
	denom := new(uint256.Int).Add(&L, new(uint256.Int).Div(rhs, q64))
	if denom.IsZero() {
		return *new(uint256.Int), sqrtPriceCurrent, *new(uint256.Int)
	}
	sqrtNext := new(uint256.Int).Div(lhs, denom)
	if sqrtPriceTarget != nil && sqrtNext.Cmp(sqrtPriceTarget) < 0 {
		sqrtNext = sqrtPriceTarget
	}
	out := amount1Delta(*sqrtNext, sqrtPriceCurrent, L)
	return out, *sqrtNext, amountAvailable
}

// amount0Delta = L*(sqrtB - sqrtA)*Q64 / (sqrtA*sqrtB), for sqrtB >= sqrtA.
func amount0Delta(sqrtA, sqrtB, L uint256.Int) uint256.Int {
	if sqrtB.Cmp(&sqrtA) <= 0 || sqrtA.IsZero() {
		return *new(uint256.Int)
	}
	q64 := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	diff := new(uint256.Int).Sub(&sqrtB, &sqrtA)
	numerator := new(uint256.Int).Mul(&L, diff)
	numerator.Mul(numerator, q64)
	denom := new(uint256.Int).Mul(&sqrtA, &sqrtB)
	if denom.IsZero() {
		return *new(uint256.Int)
	}
	result := new(uint256.Int).Div(numerator, denom)
	return *result
}

// amount1Delta = L*(sqrtB - sqrtA) / Q64, for sqrtB >= sqrtA.
func amount1Delta(sqrtA, sqrtB, L uint256.Int) uint256.Int {
	if sqrtB.Cmp(&sqrtA) <= 0 {
		return *new(uint256.Int)
	}
	q64 := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	diff := new(uint256.Int).Sub(&sqrtB, &sqrtA)
	result := new(uint256.Int).Mul(&L, diff)
	result.Div(result, q64)
	return *result
}

// priceImpactBps compares start and end sqrt price, floor-rounded to basis
// points of the sqrt-price ratio (larger over smaller, minus one). The
// ratio is taken on sqrt prices directly, not squared, and no logarithm is
// used.
func priceImpactBps(sqrtStart, sqrtEnd uint256.Int, increasing bool) uint32 {
	if sqrtStart.IsZero() {
		return 0
	}
	scale := uint256.NewInt(1_000_000)
	hi, lo := &sqrtEnd, &sqrtStart
	if !increasing {
		hi, lo = &sqrtStart, &sqrtEnd
	}
	if hi.Cmp(lo) <= 0 {
		return 0
	}
	ratio := new(uint256.Int).Mul(hi, scale)
	ratio.Div(ratio, lo)
	delta := new(uint256.Int).Sub(ratio, scale)
	bps := new(uint256.Int).Mul(delta, uint256.NewInt(feeDenominator))
	bps.Div(bps, scale)
	if !bps.IsUint64() || bps.Uint64() > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(bps.Uint64())
}
