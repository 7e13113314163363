// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine owns the single mutable context this module exposes to
// its host process: the cache family, the lifecycle registry, the topology
// oracle, the fee oracle, and the arbitrage solver, wired together behind
// the external operation surface.
package engine

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/ammcore/arb"
	"github.com/luxfi/ammcore/cache"
	"github.com/luxfi/ammcore/commit"
	"github.com/luxfi/ammcore/feeoracle"
	"github.com/luxfi/ammcore/lifecycle"
	"github.com/luxfi/ammcore/sim/clmm"
	"github.com/luxfi/ammcore/sim/cpmm"
	"github.com/luxfi/ammcore/sim/dlmm"
	"github.com/luxfi/ammcore/topology"
	"github.com/luxfi/ammcore/trace"
	"github.com/luxfi/ammcore/types"
)

// ErrUnknownVenue is returned by SimulateSwap when a pool's venue tag is
// outside the four tracked variants — a decoding bug upstream, never a
// legitimate state.
var ErrUnknownVenue = errors.New("engine: pool has unrecognised venue")

// ErrPoolNotCached is returned by any operation that needs a pool record
// the cache does not yet have.
var ErrPoolNotCached = errors.New("engine: pool not present in cache")

// Config bundles the tunables a host may want to override at construction
// time; the zero value selects every package default.
type Config struct {
	Registry          prometheus.Registerer
	CLMMArrayRadius   int32
	DLMMArrayRadius   int32
	DefaultFeeBps     uint32
	TraceQueueSize    int
	MinRefreshInterval int64 // milliseconds; 0 selects lifecycle.DefaultMinRefreshInterval
}

// Engine is the single owning context. All exported methods are safe
// for concurrent use; the underlying packages each hold their own locks.
type Engine struct {
	Caches    *cache.Family
	Lifecycle *lifecycle.Registry
	Topology  *topology.Oracle
	FeeOracle *feeoracle.Oracle
	Trace     *trace.BoundedQueue
	Commit    *commit.Committer

	minRefreshIntervalMs int64
}

// New wires a complete engine from cfg. Pass a zero Config for every
// default.
func New(cfg Config) *Engine {
	caches := cache.NewFamily(cfg.Registry)

	traceQueue := trace.NewBoundedQueue(cfg.TraceQueueSize)
	registry := lifecycle.NewRegistry(traceQueue)

	oracle := topology.NewOracle(caches)
	if cfg.CLMMArrayRadius > 0 {
		oracle.WithCLMMArrayRadius(cfg.CLMMArrayRadius)
	}
	if cfg.DLMMArrayRadius > 0 {
		oracle.WithDLMMArrayRadius(cfg.DLMMArrayRadius)
	}
	registry.SetTopologyChecker(oracle)

	caches.Tick.SetLifecycleQuerier(registry)
	caches.Bin.SetLifecycleQuerier(registry)

	committer := commit.New(caches, registry, traceQueue)

	return &Engine{
		Caches:               caches,
		Lifecycle:            registry,
		Topology:             oracle,
		FeeOracle:            feeoracle.New(cfg.DefaultFeeBps),
		Trace:                traceQueue,
		Commit:                committer,
		minRefreshIntervalMs: cfg.MinRefreshInterval,
	}
}

// --- commit surface: thin pass-throughs kept here so a host only needs
// one import to drive the whole module. ---

func (e *Engine) CommitPool(key types.AccountKey, p cache.Pool, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitPool(key, p, dataLength, source)
}

func (e *Engine) CommitVault(pool, key types.AccountKey, v cache.Vault, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitVault(pool, key, v, dataLength, source)
}

func (e *Engine) CommitTick(pool, accountKey types.AccountKey, a cache.TickArray, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitTick(pool, accountKey, a, dataLength, source)
}

func (e *Engine) CommitBin(pool, accountKey types.AccountKey, a cache.BinArray, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitBin(pool, accountKey, a, dataLength, source)
}

func (e *Engine) CommitVenueConfig(key types.AccountKey, v cache.VenueConfig, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitVenueConfig(key, v, dataLength, source)
}

func (e *Engine) CommitSingletonConfig(key types.AccountKey, s cache.SingletonConfig, dataLength int, source types.Source) types.Outcome {
	return e.Commit.CommitSingletonConfig(key, s, dataLength, source)
}

// MarkTickArrayNonExistent and MarkBinArrayNonExistent implement
// `mark_array_non_existent` for the two array kinds; callers identify which by whether they pass a tick start or a bin
// index, so this package exposes the two concretely instead of one
// kind-tagged call.
func (e *Engine) MarkTickArrayNonExistent(pool types.AccountKey, startTick int32, slot uint64) {
	e.Commit.MarkTickArrayNonExistent(pool, startTick, slot)
}

func (e *Engine) MarkBinArrayNonExistent(pool types.AccountKey, index int32, slot uint64) {
	e.Commit.MarkBinArrayNonExistent(pool, index, slot)
}

// SetVenueConfigFetcher installs the lazy-fetch callback for `set_fetcher`
// on the venue-config cache.
func (e *Engine) SetVenueConfigFetcher(fn func(types.AccountKey) (cache.VenueConfig, bool)) {
	e.Caches.VenueConfig.SetFetcher(fn)
}

// SetSingletonConfigFetcher is the singleton-config analogue.
func (e *Engine) SetSingletonConfigFetcher(fn func(types.AccountKey) (cache.SingletonConfig, bool)) {
	e.Caches.SingletonConfig.SetFetcher(fn)
}

// --- lifecycle surface ---

func (e *Engine) DiscoverPool(pool types.AccountKey, slot uint64) {
	e.Lifecycle.Discover(pool, slot)
}

// FreezeTopology computes the current topology for pool and freezes it. It
// is the one lifecycle transition the engine computes internally rather
// than taking the payload from the caller,
// since the topology must be derived from the cache at the moment of
// freezing, not supplied externally.
func (e *Engine) FreezeTopology(pool types.AccountKey, freezeSlot uint64, freezeTimestamp int64) (topology.Topology, error) {
	t, ok := e.Topology.ComputeTopology(pool, freezeSlot, freezeTimestamp)
	if !ok {
		return topology.Topology{}, ErrPoolNotCached
	}
	if err := e.Lifecycle.FreezeTopology(pool, t, freezeSlot); err != nil {
		return topology.Topology{}, err
	}
	return t, nil
}

func (e *Engine) Activate(pool types.AccountKey, slot uint64) error {
	return e.Lifecycle.Activate(pool, slot)
}

func (e *Engine) MarkIncomplete(pool types.AccountKey, reason string) error {
	return e.Lifecycle.MarkIncomplete(pool, reason)
}

func (e *Engine) StartRefresh(pool types.AccountKey, slot uint64, reason string) error {
	return e.Lifecycle.StartRefresh(pool, slot, reason, e.minRefreshIntervalMs)
}

func (e *Engine) AbortRefresh(pool types.AccountKey, slot uint64) error {
	return e.Lifecycle.AbortRefresh(pool, slot)
}

func (e *Engine) Deactivate(pool types.AccountKey, slot uint64, reason string) error {
	return e.Lifecycle.Deactivate(pool, slot, reason)
}

// GetTopology returns the frozen topology currently recorded for pool, if
// any. Implements `get_topology`.
func (e *Engine) GetTopology(pool types.AccountKey) (topology.Topology, bool) {
	entry, ok := e.Lifecycle.Entry(pool)
	if !ok || entry.Topology == nil {
		return topology.Topology{}, false
	}
	return *entry.Topology, true
}

// MissingDependencies implements `missing_dependencies` against the pool's
// currently frozen topology.
func (e *Engine) MissingDependencies(pool types.AccountKey) ([]topology.MissingDependency, error) {
	t, ok := e.GetTopology(pool)
	if !ok {
		return nil, ErrPoolNotCached
	}
	return e.Topology.MissingDependencies(t), nil
}

// --- fee-learning surface ---

// LearnFee folds one observed swap into the fee oracle. Implements
// `learn_fee`.
func (e *Engine) LearnFee(pool types.AccountKey, dir types.Direction, amountIn, amountOut, reserveIn, reserveOut uint256.Int) {
	e.FeeOracle.Observe(pool, dir, amountIn, amountOut, reserveIn, reserveOut)
}

// LearnedFeeBps returns the oracle's current estimate for (pool, dir),
// falling back to the engine's configured default if unobserved.
func (e *Engine) LearnedFeeBps(pool types.AccountKey, dir types.Direction) uint32 {
	bps, _ := e.FeeOracle.Lookup(pool, dir)
	return bps
}

// --- simulation surface ---

// SimulateSwapResult is the venue-agnostic envelope SimulateSwap returns;
// exactly one of the three payload fields is populated, matching the pool's
// venue.
type SimulateSwapResult struct {
	Venue types.Venue
	CPMM  *cpmm.Quote
	CLMM  *clmm.Result
	DLMM  *dlmm.Result
}

// SimulateSwap dispatches to the appropriate venue simulator for pool's
// current cached state. Implements `simulate_swap`. feeBpsOverride
// of 0 selects the pool's configured fee; pass a nonzero value (e.g. from
// LearnedFeeBps) to simulate against a learned rate instead.
func (e *Engine) SimulateSwap(pool types.AccountKey, dir types.Direction, amountIn uint256.Int, feeBpsOverride uint32) (SimulateSwapResult, error) {
	p, ok := e.Caches.Pool.Get(pool)
	if !ok {
		return SimulateSwapResult{}, ErrPoolNotCached
	}

	switch p.Venue {
	case types.VenueCPMMExplicitFee, types.VenueCPMMSharedFee:
		reserveIn, reserveOut, err := e.cpmmReserves(p, dir)
		if err != nil {
			return SimulateSwapResult{}, err
		}
		feeBps := feeBpsOverride
		if feeBps == 0 {
			feeBps, err = e.cpmmFeeBps(p)
			if err != nil {
				return SimulateSwapResult{}, err
			}
		}
		q, err := cpmm.SwapExactIn(amountIn, reserveIn, reserveOut, feeBps)
		if err != nil {
			return SimulateSwapResult{}, err
		}
		return SimulateSwapResult{Venue: p.Venue, CPMM: &q}, nil

	case types.VenueCLMM:
		feeBps := feeBpsOverride
		if feeBps == 0 {
			if cfg, ok := e.Caches.VenueConfig.Get(p.CLMMFeeConfig); ok {
				feeBps = cfg.FeeBps
			} else {
				feeBps, _ = e.FeeOracle.Lookup(pool, dir)
			}
		}
		sqrtPrice := wordsToUint256(p.SqrtPriceX64)
		liquidity := wordsToUint256(p.ActiveLiquidity)
		result, err := clmm.Simulate(e.Caches.Tick, clmm.Input{
			Pool:            pool,
			Direction:       dir,
			AmountIn:        amountIn,
			CurrentTick:     p.CurrentTick,
			TickSpacing:     p.TickSpacing,
			SqrtPriceX64:    sqrtPrice,
			Liquidity:       liquidity,
			FeeBps:          feeBps,
			TickArrayBitmap: p.TickArrayBitmap,
		})
		if err != nil {
			return SimulateSwapResult{}, err
		}
		return SimulateSwapResult{Venue: p.Venue, CLMM: &result}, nil

	case types.VenueDLMM:
		result, err := dlmm.Simulate(e.Caches.Bin, dlmm.Input{
			Pool:                  pool,
			Direction:             dir,
			AmountIn:              amountIn,
			ActiveBinID:           p.ActiveBinID,
			BinStep:               p.BinStep,
			BaseFeeBps:            derefOr(feeBpsOverride, p.BaseFeeBps),
			VolatilityAccumulator: p.VolatilityAccumulator,
			ProtocolShareBps:      p.ProtocolShareBps,
			BinArrayBitmap:        p.BinArrayBitmap,
		})
		if err != nil {
			return SimulateSwapResult{}, err
		}
		return SimulateSwapResult{Venue: p.Venue, DLMM: &result}, nil

	default:
		return SimulateSwapResult{}, ErrUnknownVenue
	}
}

func derefOr(v, fallback uint32) uint32 {
	if v != 0 {
		return v
	}
	return fallback
}

func (e *Engine) cpmmReserves(p cache.Pool, dir types.Direction) (reserveIn, reserveOut uint256.Int, err error) {
	base, ok := e.Caches.Vault.Get(p.BaseVault)
	if !ok {
		return uint256.Int{}, uint256.Int{}, ErrPoolNotCached
	}
	quote, ok := e.Caches.Vault.Get(p.QuoteVault)
	if !ok {
		return uint256.Int{}, uint256.Int{}, ErrPoolNotCached
	}
	if dir == types.DirAtoB {
		return *uint256.NewInt(base.Amount), *uint256.NewInt(quote.Amount), nil
	}
	return *uint256.NewInt(quote.Amount), *uint256.NewInt(base.Amount), nil
}

func (e *Engine) cpmmFeeBps(p cache.Pool) (uint32, error) {
	if p.Venue == types.VenueCPMMExplicitFee {
		if p.FeeDenominator == 0 {
			return 0, errors.New("engine: pool has zero fee denominator")
		}
		return uint32(p.FeeNumerator * 10000 / p.FeeDenominator), nil
	}
	cfg, ok := e.Caches.SingletonConfig.Get(p.SharedFeeConfig)
	if !ok {
		return 0, ErrPoolNotCached
	}
	if cfg.FeeDenominator == 0 {
		return 0, errors.New("engine: shared fee config has zero denominator")
	}
	return uint32(cfg.FeeNumerator * 10000 / cfg.FeeDenominator), nil
}

func wordsToUint256(words [2]uint64) uint256.Int {
	var v uint256.Int
	v.SetUint64(words[1])
	v.Lsh(&v, 64)
	lo := uint256.NewInt(words[0])
	v.Add(&v, lo)
	return v
}

// --- arbitrage surface ---

// SimulateArbitrage searches for the profit-maximizing round trip selling
// the base asset into poolA (A->B) and buying it back from poolB (B->A).
// Only that one route is evaluated; the reverse route is evaluated by
// passing the two pools in the opposite order. Implements
// `simulate_arbitrage`. Only constant-product legs are supported through
// this convenience method; CLMM/DLMM legs require building a
// arb.QuoteFunc from SimulateSwap and calling arb.SolveGeneral directly.
func (e *Engine) SimulateArbitrage(poolA, poolB types.AccountKey, bounds arb.Bounds) (arb.Result, error) {
	pa, ok := e.Caches.Pool.Get(poolA)
	if !ok || !pa.Venue.IsConstantProduct() {
		return arb.Result{}, ErrPoolNotCached
	}
	pb, ok := e.Caches.Pool.Get(poolB)
	if !ok || !pb.Venue.IsConstantProduct() {
		return arb.Result{}, ErrPoolNotCached
	}

	aIn, aOut, err := e.cpmmReserves(pa, types.DirAtoB)
	if err != nil {
		return arb.Result{}, err
	}
	aFee, err := e.cpmmFeeBps(pa)
	if err != nil {
		return arb.Result{}, err
	}
	bIn, bOut, err := e.cpmmReserves(pb, types.DirBtoA)
	if err != nil {
		return arb.Result{}, err
	}
	bFee, err := e.cpmmFeeBps(pb)
	if err != nil {
		return arb.Result{}, err
	}

	return arb.Solve(
		arb.CPMMReserves{ReserveIn: aIn, ReserveOut: aOut, FeeBps: aFee},
		arb.CPMMReserves{ReserveIn: bIn, ReserveOut: bOut, FeeBps: bFee},
		bounds,
	)
}

// Stats implements `stats()`: per-cache hit/miss/eviction counters plus
// the trace queue's drop count.
type Stats struct {
	Pool            cache.StatsSnapshot
	Vault           cache.StatsSnapshot
	Tick            cache.StatsSnapshot
	Bin             cache.StatsSnapshot
	VenueConfig     cache.StatsSnapshot
	SingletonConfig cache.StatsSnapshot
	TraceDrops      uint64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Pool:            e.Caches.Pool.Stats(),
		Vault:           e.Caches.Vault.Stats(),
		Tick:            e.Caches.Tick.Stats(),
		Bin:             e.Caches.Bin.Stats(),
		VenueConfig:     e.Caches.VenueConfig.Stats(),
		SingletonConfig: e.Caches.SingletonConfig.Stats(),
		TraceDrops:      e.Trace.Drops(),
	}
}
