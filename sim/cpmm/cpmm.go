// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cpmm simulates swaps against the constant-product venues:
// exact integer math against the x*y=k curve, fee taken on the input side.
package cpmm

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrInsufficientLiquidity is returned when the requested output meets or
// exceeds the pool's available output-side reserve — the curve has no
// solution.
var ErrInsufficientLiquidity = errors.New("cpmm: requested output >= reserve")

const feeDenominator = 10000

// Quote is the result of simulating one exact-input swap.
type Quote struct {
	AmountIn      uint256.Int
	AmountOut     uint256.Int
	FeeAmount     uint256.Int // charged on the input side
	ImpactBps     uint32      // price impact in basis points, floor-rounded
	ReserveInAfter  uint256.Int
	ReserveOutAfter uint256.Int
}

// SwapExactIn computes the output of trading amountIn against reserves
// (reserveIn, reserveOut) at feeBps basis points, fee taken on the input
// side before the constant-product curve is applied:
//
//	feeAmount        = amountIn * feeBps / 10000
//	amountInAfterFee = amountIn - feeAmount
//	amountOut        = reserveOut * amountInAfterFee / (reserveIn + amountInAfterFee)
//
// Both divisions floor.
func SwapExactIn(amountIn, reserveIn, reserveOut uint256.Int, feeBps uint32) (Quote, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return Quote{}, ErrInsufficientLiquidity
	}
	if amountIn.IsZero() {
		return Quote{AmountIn: amountIn, ReserveInAfter: reserveIn, ReserveOutAfter: reserveOut}, nil
	}

	feeAmount := new(uint256.Int).Mul(&amountIn, uint256.NewInt(uint64(feeBps)))
	feeAmount.Div(feeAmount, uint256.NewInt(feeDenominator))

	amountInAfterFee := new(uint256.Int).Sub(&amountIn, feeAmount)

	numerator := new(uint256.Int).Mul(&reserveOut, amountInAfterFee)
	denominator := new(uint256.Int).Add(&reserveIn, amountInAfterFee)
	if denominator.IsZero() {
		return Quote{}, ErrInsufficientLiquidity
	}
	amountOut := new(uint256.Int).Div(numerator, denominator)

	if amountOut.Cmp(&reserveOut) >= 0 {
		return Quote{}, ErrInsufficientLiquidity
	}

	reserveInAfter := new(uint256.Int).Add(&reserveIn, &amountIn)
	reserveOutAfter := new(uint256.Int).Sub(&reserveOut, amountOut)

	return Quote{
		AmountIn:        amountIn,
		AmountOut:       *amountOut,
		FeeAmount:       *feeAmount,
		ImpactBps:       priceImpactBps(reserveIn, reserveOut, *reserveInAfter, *reserveOutAfter),
		ReserveInAfter:  *reserveInAfter,
		ReserveOutAfter: *reserveOutAfter,
	}, nil
}

// QuoteExactOut inverts SwapExactIn: given a desired output, finds the
// input required. Returns
// ErrInsufficientLiquidity if amountOut >= reserveOut, since the curve has
// no finite input that buys the entire reserve.
func QuoteExactOut(amountOut, reserveIn, reserveOut uint256.Int, feeBps uint32) (Quote, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() || amountOut.Cmp(&reserveOut) >= 0 {
		return Quote{}, ErrInsufficientLiquidity
	}
	if amountOut.IsZero() {
		return Quote{ReserveInAfter: reserveIn, ReserveOutAfter: reserveOut}, nil
	}

	// amountInAfterFee = reserveIn * amountOut / (reserveOut - amountOut), rounded up
	remaining := new(uint256.Int).Sub(&reserveOut, &amountOut)
	numerator := new(uint256.Int).Mul(&reserveIn, &amountOut)
	amountInAfterFee := ceilDiv(numerator, remaining)

	// amountIn = amountInAfterFee * 10000 / (10000 - feeBps), rounded up
	if feeBps >= feeDenominator {
		return Quote{}, ErrInsufficientLiquidity
	}
	scaled := new(uint256.Int).Mul(amountInAfterFee, uint256.NewInt(feeDenominator))
	amountIn := ceilDiv(scaled, uint256.NewInt(uint64(feeDenominator-feeBps)))

	feeAmount := new(uint256.Int).Sub(amountIn, amountInAfterFee)
	reserveInAfter := new(uint256.Int).Add(&reserveIn, amountIn)
	reserveOutAfter := new(uint256.Int).Sub(&reserveOut, &amountOut)

	return Quote{
		AmountIn:        *amountIn,
		AmountOut:       amountOut,
		FeeAmount:       *feeAmount,
		ImpactBps:       priceImpactBps(reserveIn, reserveOut, *reserveInAfter, *reserveOutAfter),
		ReserveInAfter:  *reserveInAfter,
		ReserveOutAfter: *reserveOutAfter,
	}, nil
}

func ceilDiv(num, den *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if r.IsZero() {
		return q
	}
	return q.AddUint64(q, 1)
}

// priceImpactBps compares the pre-trade and post-trade spot price
// reserveOut/reserveIn, floor-rounded to basis points. Each price is
// scaled by 1e6 before its integer division to preserve precision; the
// relative drop is then expressed in bps.
func priceImpactBps(reserveInBefore, reserveOutBefore, reserveInAfter, reserveOutAfter uint256.Int) uint32 {
	if reserveInBefore.IsZero() || reserveOutBefore.IsZero() || reserveInAfter.IsZero() {
		return 0
	}
	scale := uint256.NewInt(1_000_000)

	priceBefore := new(uint256.Int).Mul(&reserveOutBefore, scale)
	priceBefore.Div(priceBefore, &reserveInBefore)

	priceAfter := new(uint256.Int).Mul(&reserveOutAfter, scale)
	priceAfter.Div(priceAfter, &reserveInAfter)

	if priceBefore.IsZero() || priceAfter.Cmp(priceBefore) >= 0 {
		return 0
	}
	delta := new(uint256.Int).Sub(priceBefore, priceAfter)
	bps := new(uint256.Int).Mul(delta, uint256.NewInt(feeDenominator))
	bps.Div(bps, priceBefore)
	if !bps.IsUint64() || bps.Uint64() > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(bps.Uint64())
}
