// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dlmm simulates swaps against the discretised-bin venue: each bin
// trades at a fixed price derived from its index and the pool's
// bin step, the walk moves bin-by-bin in the trade direction, and the fee
// is a base rate plus a variable component driven by the venue's
// volatility accumulator.
package dlmm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/luxfi/ammcore/cache"
	"github.com/luxfi/ammcore/types"
)

// ErrEmptyBin is returned when the starting bin has no liquidity on the
// side the swap needs.
var ErrEmptyBin = errors.New("dlmm: starting bin has no liquidity on the required side")

const bpsDenominator = 10000

// priceScale is the fixed-point scale bin prices are expressed in — chosen
// large enough that bin_step values down to 1 bp remain precise across the
// ±512 bin-index range the occupancy bitmap addresses.
var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// maxBinsWalked bounds a single simulation's work regardless of how sparse
// the bin occupancy is.
const maxBinsWalked = 4 * cache.BinArraySize

// BinArrayProvider is the read view the walker needs of the bin cache.
type BinArrayProvider interface {
	GetOrVirtual(pool types.AccountKey, index int32) (cache.BinArray, bool)
}

// Input describes one swap request against a DLMM pool.
type Input struct {
	Pool                  types.AccountKey
	Direction             types.Direction
	AmountIn              uint256.Int
	ActiveBinID           int32
	BinStep               uint16
	BaseFeeBps            uint32
	VolatilityAccumulator uint32
	ProtocolShareBps      uint16
	BinArrayBitmap        types.Bitmap1024
}

// BinLeg records the outcome of trading through one bin: its ID, the input
// consumed, the output produced, and the fee charged.
type BinLeg struct {
	BinID     int32
	AmountIn  uint256.Int
	AmountOut uint256.Int
	FeeAmount uint256.Int
}

// Result is the outcome of one simulated swap.
type Result struct {
	AmountIn     uint256.Int
	AmountOut    uint256.Int
	FeeAmount    uint256.Int
	ImpactBps    uint32
	EndBinID     int32
	BinsCrossed  int
	Legs         []BinLeg
	Confidence   types.Confidence
}

// binPrice computes (1 + bin_step/10000)^bin_id as a priceScale-fixed-point
// big.Int. Like the CLMM tick ladder, this is
// computed directly with math/big rather than transcribed from a specific
// venue's on-chain fixed-point table, for the same reason: a silently wrong
// magic constant cannot be caught without running the code.
func binPrice(binID int32, binStepBps uint16) *big.Int {
	ratio := new(big.Rat).SetFrac(int64(bpsDenominator+int64(binStepBps)), bpsDenominator)
	result := new(big.Rat).SetInt64(1)
	exp := binID
	neg := exp < 0
	if neg {
		exp = -exp
	}
	base := new(big.Rat).Set(ratio)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		exp >>= 1
	}
	if neg {
		result.Inv(result)
	}
	result.Mul(result, new(big.Rat).SetInt(priceScale))
	num := new(big.Int).Quo(result.Num(), result.Denom())
	return num
}

// effectiveFeeBps is the base fee plus a variable component proportional to
// the square of (volatility accumulator × bin step), divided by 1e9 and
// capped with the base fee at 10000 bps. Input.ProtocolShareBps does not
// enter the fee. The quadratic term is the standard DLMM shape: fee should rise
// faster than linearly as realised volatility spikes,
// so a quiet pool and a thrashing one are priced very differently.
func effectiveFeeBps(baseFeeBps uint32, volatilityAccumulator uint32, binStepBps uint16) uint32 {
	variable := uint64(volatilityAccumulator) * uint64(binStepBps)
	variable = (variable * variable) / 1_000_000_000
	total := uint64(baseFeeBps) + variable
	if total > bpsDenominator {
		total = bpsDenominator
	}
	return uint32(total)
}

// Simulate walks in.AmountIn bin-by-bin starting at in.ActiveBinID.
// DirAtoB sells the base asset (bin ID decreasing); DirBtoA buys it (bin ID
// increasing).
func Simulate(bins BinArrayProvider, in Input) (Result, error) {
	increasing := in.Direction == types.DirBtoA
	feeBps := effectiveFeeBps(in.BaseFeeBps, in.VolatilityAccumulator, in.BinStep)

	remaining := new(uint256.Int).Set(&in.AmountIn)
	totalOut := new(uint256.Int)
	totalFee := new(uint256.Int)
	binID := in.ActiveBinID
	var legs []BinLeg
	confidence := types.ConfidenceFull

	for steps := 0; steps < maxBinsWalked && !remaining.IsZero(); steps++ {
		arrayIdx := binID / int32(cache.BinArraySize)
		if binID%int32(cache.BinArraySize) != 0 && binID < 0 {
			arrayIdx--
		}
		array, ok := bins.GetOrVirtual(in.Pool, arrayIdx)
		if !ok {
			confidence = types.ConfidenceReduced
			break
		}

		localIdx := int(binID - arrayIdx*int32(cache.BinArraySize))
		if localIdx < 0 || localIdx >= cache.BinArraySize {
			confidence = types.ConfidenceReduced
			break
		}
		bin := array.Bins[localIdx]

		outSide := bin.AmountY // DirAtoB: paying in base(X), receiving quote(Y)
		if increasing {
			outSide = bin.AmountX
		}
		if outSide == 0 {
			if len(legs) == 0 {
				return Result{}, ErrEmptyBin
			}
			// This bin is drained; advance past it without a leg.
			if increasing {
				binID++
			} else {
				binID--
			}
			continue
		}

		price := binPrice(binID, in.BinStep) // Y per X, priceScale fixed point
		out, consumed := quoteBin(*remaining, outSide, price, increasing, feeBps)
		if out.IsZero() && consumed.IsZero() {
			break
		}

		legFee := feeFromGross(consumed, feeBps)
		legs = append(legs, BinLeg{BinID: binID, AmountIn: consumed, AmountOut: out, FeeAmount: legFee})
		totalOut.Add(totalOut, &out)
		totalFee.Add(totalFee, &legFee)
		remaining.Sub(remaining, &consumed)

		if out.Cmp(uint256.NewInt(outSide)) >= 0 {
			// This bin's reachable side fully drained by the quote; cross
			// to the next one.
			if increasing {
				binID++
			} else {
				binID--
			}
		} else {
			break // bin not fully drained: input exhausted inside this bin
		}
	}

	impact := impactBps(in.ActiveBinID, binID, in.BinStep)

	return Result{
		AmountIn:    in.AmountIn,
		AmountOut:   *totalOut,
		FeeAmount:   *totalFee,
		ImpactBps:   impact,
		EndBinID:    binID,
		BinsCrossed: len(legs),
		Legs:        legs,
		Confidence:  confidence,
	}, nil
}

// quoteBin computes how much of amountAvailable this bin can absorb against
// its reachable reserve (outSide, in output-token units) at the given
// price, fee taken on the input side. It never produces more than outSide.
func quoteBin(amountAvailable uint256.Int, outSide uint64, price *big.Int, increasing bool, feeBps uint32) (out, consumed uint256.Int) {
	feeAmount := new(uint256.Int).Mul(&amountAvailable, uint256.NewInt(uint64(feeBps)))
	feeAmount.Div(feeAmount, uint256.NewInt(bpsDenominator))
	afterFee := new(uint256.Int).Sub(&amountAvailable, feeAmount)

	afterFeeBig := afterFee.ToBig()
	var outBig *big.Int
	if increasing {
		// input is Y (quote), output is X (base): out = in / price
		outBig = new(big.Int).Mul(afterFeeBig, priceScale)
		outBig.Quo(outBig, price)
	} else {
		// input is X (base), output is Y (quote): out = in * price
		outBig = new(big.Int).Mul(afterFeeBig, price)
		outBig.Quo(outBig, priceScale)
	}

	maxOut := new(big.Int).SetUint64(outSide)
	if outBig.Cmp(maxOut) <= 0 {
		o, _ := uint256.FromBig(outBig)
		return *o, amountAvailable
	}

	// Cap to the bin's reachable reserve and back-solve the input consumed.
	var inBig *big.Int
	if increasing {
		inBig = new(big.Int).Mul(maxOut, price)
		inBig.Quo(inBig, priceScale)
	} else {
		inBig = new(big.Int).Mul(maxOut, priceScale)
		inBig.Quo(inBig, price)
	}
	// Gross up for the fee so "consumed" reflects the caller's input units.
	if feeBps < bpsDenominator {
		inBig.Mul(inBig, big.NewInt(bpsDenominator))
		inBig.Quo(inBig, big.NewInt(int64(bpsDenominator-feeBps)))
	}
	consumedOut, overflow := uint256.FromBig(inBig)
	if overflow || consumedOut.Cmp(&amountAvailable) > 0 {
		consumedOut = &amountAvailable
	}
	producedOut, _ := uint256.FromBig(maxOut)
	return *producedOut, *consumedOut
}

// feeFromGross recovers the fee embedded in a gross (fee-inclusive) input
// amount: fee = gross * feeBps / 10000.
func feeFromGross(consumed uint256.Int, feeBps uint32) uint256.Int {
	fee := new(uint256.Int).Mul(&consumed, uint256.NewInt(uint64(feeBps)))
	fee.Div(fee, uint256.NewInt(bpsDenominator))
	return *fee
}

// impactBps reports the move from startBin to endBin in basis points of
// price as bin_step bps times the number of bins between them. This is the
// linear sum of the per-bin steps; the compounding of the (1+bin_step)^n
// price ladder is not applied.
func impactBps(startBin, endBin int32, binStepBps uint16) uint32 {
	distance := endBin - startBin
	if distance < 0 {
		distance = -distance
	}
	total := uint64(distance) * uint64(binStepBps)
	if total > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(total)
}
