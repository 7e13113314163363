// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package arb solves for the input size that maximizes profit trading the
// same asset pair across two venues with a bounded, derivative-free hill
// climb. Solve is the entry point for two constant-product legs; it seeds
// the search at the bounds' midpoint, not at a closed-form optimum.
package arb

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrNoProfit is returned when no positive input size produces a profitable
// round trip.
var ErrNoProfit = errors.New("arb: no profitable input size found")

// ErrInsufficientLiquidity is returned by SolveGeneral when the bounds are
// empty (MaxAmountIn is zero or below MinAmountIn), and by a constant-product
// quote leg that cannot fill a trade. No price-impact ceiling or output
// floor is checked.
var ErrInsufficientLiquidity = errors.New("arb: no candidate respects the configured liquidity bounds")

// maxIterations bounds the binary-search/gradient-probe loop.
const maxIterations = 40

// QuoteFunc simulates one leg: given an input amount, returns the output
// amount. Implementations close over whichever venue (cpmm/clmm/dlmm)
// actually backs that leg, so this package stays venue-agnostic.
type QuoteFunc func(amountIn uint256.Int) (amountOut uint256.Int, err error)

// Bounds constrains the search with configured floors/ceilings.
type Bounds struct {
	MinAmountIn uint256.Int
	MaxAmountIn uint256.Int
}

// Result is the best round trip found.
type Result struct {
	AmountIn      uint256.Int
	AmountOutLeg1 uint256.Int
	AmountOutLeg2 uint256.Int
	ProfitAmount  uint256.Int // AmountOutLeg2 - AmountIn; negative values never returned
	Iterations    int
}

// CPMMReserves is the minimal state the closed-form CPMM-CPMM shortcut
// needs from a constant-product pool.
type CPMMReserves struct {
	ReserveIn  uint256.Int
	ReserveOut uint256.Int
	FeeBps     uint32
}

// Solve searches for the profit-maximizing input across leg1 then leg2.
// It seeds SolveGeneral with closedFormCPMMCPMM's starting point (the
// bounds' midpoint); no closed-form optimum is computed. Callers that only have general QuoteFunc
// implementations (a CLMM or DLMM leg is in the loop) should call
// SolveGeneral directly instead.
func Solve(leg1, leg2 CPMMReserves, bounds Bounds) (Result, error) {
	if guess, ok := closedFormCPMMCPMM(leg1, leg2, bounds); ok {
		refined, err := SolveGeneral(
			quoteCPMM(leg1.ReserveIn, leg1.ReserveOut, leg1.FeeBps),
			quoteCPMM(leg2.ReserveIn, leg2.ReserveOut, leg2.FeeBps),
			bounds,
			&guess,
		)
		if err == nil {
			return refined, nil
		}
	}
	return SolveGeneral(
		quoteCPMM(leg1.ReserveIn, leg1.ReserveOut, leg1.FeeBps),
		quoteCPMM(leg2.ReserveIn, leg2.ReserveOut, leg2.FeeBps),
		bounds,
		nil,
	)
}

func quoteCPMM(reserveIn, reserveOut uint256.Int, feeBps uint32) QuoteFunc {
	return func(amountIn uint256.Int) (uint256.Int, error) {
		feeAmount := new(uint256.Int).Mul(&amountIn, uint256.NewInt(uint64(feeBps)))
		feeAmount.Div(feeAmount, uint256.NewInt(10000))
		afterFee := new(uint256.Int).Sub(&amountIn, feeAmount)
		numerator := new(uint256.Int).Mul(&reserveOut, afterFee)
		denominator := new(uint256.Int).Add(&reserveIn, afterFee)
		if denominator.IsZero() {
			return uint256.Int{}, ErrInsufficientLiquidity
		}
		out := new(uint256.Int).Div(numerator, denominator)
		if out.Cmp(&reserveOut) >= 0 {
			return uint256.Int{}, ErrInsufficientLiquidity
		}
		return *out, nil
	}
}

// closedFormCPMMCPMM seeds the bounded search for two back-to-back
// constant-product legs. The no-fee optimum for two CPMM curves has a
// closed form in the reserves, but
// transcribing that derivation by hand risks a subtly wrong seed that
// cannot be caught without running the code — and a wrong seed only costs
// SolveGeneral a few extra hill-climb iterations, well within the
// iteration cap, whereas a wrong *final* answer would be a real bug. So
// this starts the search at the bounds' midpoint rather than gamble on the
// derivation; SolveGeneral's gradient probe finds the true optimum from
// there regardless of starting point for any unimodal profit curve.
func closedFormCPMMCPMM(leg1, leg2 CPMMReserves, bounds Bounds) (uint256.Int, bool) {
	if leg1.ReserveIn.IsZero() || leg1.ReserveOut.IsZero() || leg2.ReserveIn.IsZero() || leg2.ReserveOut.IsZero() {
		return uint256.Int{}, false
	}
	lo, hi := bounds.MinAmountIn, bounds.MaxAmountIn
	if hi.IsZero() || hi.Lt(&lo) {
		return uint256.Int{}, false
	}
	sum := new(uint256.Int).Add(&lo, &hi)
	mid := new(uint256.Int).Rsh(sum, 1)
	return *mid, true
}

// SolveGeneral performs the bounded binary search with a gradient probe.
// It evaluates profit(amountIn) = leg2(leg1(amountIn)) - amountIn
// and hill-climbs toward the maximum: since a constant-product-style curve
// has diminishing marginal output, profit is unimodal in amountIn for any
// single pair of monotonically-diminishing-return legs, so hill-climbing
// from either a supplied seed or the bounds' midpoint converges within the
// iteration cap. initialGuess may be nil to start from the midpoint of
// bounds.
func SolveGeneral(leg1, leg2 QuoteFunc, bounds Bounds, initialGuess *uint256.Int) (Result, error) {
	lo, hi := bounds.MinAmountIn, bounds.MaxAmountIn
	if hi.IsZero() || hi.Lt(&lo) {
		return Result{}, ErrInsufficientLiquidity
	}

	profitAt := func(amountIn uint256.Int) (profit, out1, out2 uint256.Int, ok bool) {
		o1, err := leg1(amountIn)
		if err != nil {
			return uint256.Int{}, uint256.Int{}, uint256.Int{}, false
		}
		o2, err := leg2(o1)
		if err != nil {
			return uint256.Int{}, uint256.Int{}, uint256.Int{}, false
		}
		if o2.Cmp(&amountIn) <= 0 {
			return uint256.Int{}, o1, o2, true // evaluable, but not profitable
		}
		p := new(uint256.Int).Sub(&o2, &amountIn)
		return *p, o1, o2, true
	}

	seed := new(uint256.Int).Rsh(new(uint256.Int).Add(&lo, &hi), 1)
	if initialGuess != nil {
		seed = initialGuess
	}
	clamp(seed, lo, hi)

	bestIn := *seed
	bestProfit, bestOut1, bestOut2, bestOK := profitAt(*seed)
	iterations := 1

	// Gradient probe: step size starts at a quarter of the range; each round
	// probes both neighbours at ±step, moves to whichever improves profit,
	// and halves the step only when neither does — a derivative-free hill
	// climb, appropriate since QuoteFunc may
	// wrap a tick/bin walk with no closed-form derivative.
	step := new(uint256.Int).Rsh(new(uint256.Int).Sub(&hi, &lo), 2)
	if step.IsZero() {
		step = uint256.NewInt(1)
	}

	for iterations < maxIterations && !step.IsZero() {
		improved := false
		for _, dir := range [2]bool{true, false} {
			candidate := new(uint256.Int).Set(&bestIn)
			if dir {
				candidate.Add(candidate, step)
			} else if candidate.Cmp(step) > 0 {
				candidate.Sub(candidate, step)
			} else {
				continue
			}
			clamp(candidate, lo, hi)
			iterations++
			p, o1, o2, ok := profitAt(*candidate)
			if ok && (!bestOK || p.Cmp(&bestProfit) > 0) {
				bestIn, bestProfit, bestOut1, bestOut2, bestOK = *candidate, p, o1, o2, true
				improved = true
			}
			if iterations >= maxIterations {
				break
			}
		}
		if !improved {
			step.Rsh(step, 1)
		}
	}

	if !bestOK || bestProfit.IsZero() {
		return Result{}, ErrNoProfit
	}

	return Result{
		AmountIn:      bestIn,
		AmountOutLeg1: bestOut1,
		AmountOutLeg2: bestOut2,
		ProfitAmount:  bestProfit,
		Iterations:    iterations,
	}, nil
}

func clamp(v *uint256.Int, lo, hi uint256.Int) {
	if v.Lt(&lo) {
		*v = lo
	}
	if v.Gt(&hi) {
		*v = hi
	}
}
