// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clmm

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// q64Float is 2^64 as a big.Float, the fixed-point scale every sqrtPriceX64
// value in this package is expressed in.
var q64Float = new(big.Float).SetPrec(256).SetMantExp(big.NewFloat(1), 64)

// tickBase is 1.0001, the per-tick price ratio every concentrated-liquidity
// venue in scope defines its grid against.
var tickBase = new(big.Float).SetPrec(256).SetFloat64(1.0001)

// sqrtPriceCache memoizes sqrtPriceAtTick: a CLMM walk touches the same
// handful of tick-array boundaries repeatedly, and math/big exponentiation
// is not cheap enough to redo on every call.
var sqrtPriceCache sync.Map // map[int32]uint256.Int

// sqrtPriceAtTick computes sqrt(1.0001^tick) in Q64.64 fixed point.
//
// No library in the dependency pack supplies concentrated-liquidity tick
// math, and transcribing a venue's exact on-chain fixed-point ladder by
// hand from memory is a correctness risk that cannot be caught by
// compiling (this module is never built before review) — so this computes
// the ratio directly with math/big at high precision instead. The
// trade-off: the result is numerically correct to
// many more bits than any venue's 128-bit on-chain representation, but is
// not guaranteed bit-identical to a specific venue's rounding. That is
// acceptable for an arbitrage simulator, which only needs the ratio
// accurate enough to size a swap, not to replicate on-chain settlement.
func sqrtPriceAtTick(tick int32) uint256.Int {
	if v, ok := sqrtPriceCache.Load(tick); ok {
		return v.(uint256.Int)
	}

	ratio := bigFloatPowInt(tickBase, tick)
	sqrtRatio := new(big.Float).SetPrec(256).Sqrt(ratio)
	scaled := new(big.Float).SetPrec(256).Mul(sqrtRatio, q64Float)

	bi, _ := scaled.Int(nil)
	if bi.Sign() < 0 {
		bi.SetInt64(0)
	}
	out, overflow := uint256.FromBig(bi)
	if overflow {
		out = new(uint256.Int).SetAllOne()
	}
	result := *out
	sqrtPriceCache.Store(tick, result)
	return result
}

// bigFloatPowInt computes base^exp for an integer (possibly negative)
// exponent via exponentiation by squaring.
func bigFloatPowInt(base *big.Float, exp int32) *big.Float {
	neg := exp < 0
	if neg {
		exp = -exp
	}
	result := big.NewFloat(1).SetPrec(256)
	b := new(big.Float).SetPrec(256).Copy(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, b)
		}
		b.Mul(b, b)
		exp >>= 1
	}
	if neg {
		result = new(big.Float).SetPrec(256).Quo(big.NewFloat(1), result)
	}
	return result
}
