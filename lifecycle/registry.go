// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lifecycle implements the pool lifecycle state machine: the four
// states DISCOVERED / TOPOLOGY_FROZEN / ACTIVE / REFRESHING, their
// transitions, the reverse dependency mappings that gate bootstrap writes,
// and the start_refresh rate limiter.
package lifecycle

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/ammcore/topology"
	"github.com/luxfi/ammcore/trace"
	"github.com/luxfi/ammcore/types"
)

// DefaultMinRefreshInterval is the minimum time between refreshes of the
// same pool.
const DefaultMinRefreshInterval = 5 * time.Second

var (
	ErrUnknownPool       = errors.New("lifecycle: unknown pool")
	ErrWrongState        = errors.New("lifecycle: transition not valid from current state")
	ErrRefreshTooSoon     = errors.New("lifecycle: refresh attempted before minimum interval elapsed")
	ErrNilTopology       = errors.New("lifecycle: freeze_topology requires a non-nil topology")
)

// Entry is one pool's lifecycle record.
type Entry struct {
	Pool             types.AccountKey
	State            types.LifecycleState
	DiscoverySlot    uint64
	DiscoveredAt     time.Time
	Topology         *topology.Topology
	ActivationSlot   uint64
	IncompleteReason string
	Epoch            uint64
	LastRefreshAt    time.Time
}

// snapshot is an immutable copy returned to callers that must not be able to
// mutate registry-owned state through what looks like a read.
func (e *Entry) snapshot() Entry {
	cp := *e
	return cp
}

// reverseView is the atomically-swapped read view of the back-reference
// tables recorded at freeze time. Modeled on the
// RWMutex-for-writes / atomic.Pointer-for-reads pattern used by the pack's
// token-pool registry (see SPEC_FULL.md ambient stack). A vault belongs to
// exactly one pool, but a fee-config account (a CPMM singleton, or a CLMM
// fee-tier shared by every pool at that tick spacing) can back many pools at
// once, so that side of the mapping is one-to-many.
type reverseView struct {
	vaultToPool     map[types.AccountKey]types.AccountKey
	feeConfigToPool map[types.AccountKey][]types.AccountKey
}

func emptyReverseView() *reverseView {
	return &reverseView{
		vaultToPool:     make(map[types.AccountKey]types.AccountKey),
		feeConfigToPool: make(map[types.AccountKey][]types.AccountKey),
	}
}

func (v *reverseView) clone() *reverseView {
	n := emptyReverseView()
	for k, p := range v.vaultToPool {
		n.vaultToPool[k] = p
	}
	for k, ps := range v.feeConfigToPool {
		cp := make([]types.AccountKey, len(ps))
		copy(cp, ps)
		n.feeConfigToPool[k] = cp
	}
	return n
}

func addPoolIfAbsent(pools []types.AccountKey, pool types.AccountKey) []types.AccountKey {
	for _, p := range pools {
		if p == pool {
			return pools
		}
	}
	return append(pools, pool)
}

func removePool(pools []types.AccountKey, pool types.AccountKey) []types.AccountKey {
	out := pools[:0]
	for _, p := range pools {
		if p != pool {
			out = append(out, p)
		}
	}
	return out
}

// TopologyChecker is the narrow view of the topology oracle the registry
// needs to auto-promote a pool out of TOPOLOGY_FROZEN once its dependencies
// arrive. Implemented by *topology.Oracle.
type TopologyChecker interface {
	IsTopologyComplete(t topology.Topology) bool
}

// Registry is the lifecycle state machine for every tracked pool.
type Registry struct {
	mu      sync.RWMutex
	entries map[types.AccountKey]*Entry
	reverse atomic.Pointer[reverseView]

	minRefreshInterval time.Duration
	checker            TopologyChecker
	sink               trace.Sink
}

// NewRegistry builds an empty registry. sink may be trace.DiscardSink{}.
func NewRegistry(sink trace.Sink) *Registry {
	r := &Registry{
		entries:            make(map[types.AccountKey]*Entry),
		minRefreshInterval: DefaultMinRefreshInterval,
		sink:               sink,
	}
	r.reverse.Store(emptyReverseView())
	return r
}

// SetTopologyChecker wires in the topology oracle used for auto-promotion
// out of TOPOLOGY_FROZEN.
func (r *Registry) SetTopologyChecker(c TopologyChecker) {
	r.mu.Lock()
	r.checker = c
	r.mu.Unlock()
}

func (r *Registry) emit(reason string, pool types.AccountKey, slot uint64) {
	if r.sink == nil {
		return
	}
	r.sink.Emit(trace.Event{
		Kind:    types.EventPool,
		Key:     pool,
		Slot:    slot,
		Source:  types.SourceGossip,
		Outcome: types.Applied,
		Reason:  reason,
	})
}

// StateOf implements types.LifecycleQuerier.
func (r *Registry) StateOf(pool types.AccountKey) (types.LifecycleState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pool]
	if !ok {
		return 0, false
	}
	return e.State, true
}

// Entry returns a snapshot of a pool's lifecycle entry.
func (r *Registry) Entry(pool types.AccountKey) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pool]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Discover transitions an unknown pool into DISCOVERED. It is a no-op (not an error) if the pool is already known — the canonical
// commit function calls this unconditionally on every applied pool write.
func (r *Registry) Discover(pool types.AccountKey, slot uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[pool]; ok {
		return
	}
	r.entries[pool] = &Entry{
		Pool:          pool,
		State:         types.Discovered,
		DiscoverySlot: slot,
		DiscoveredAt:  time.Now(),
	}
	r.emit("discovered", pool, slot)
}

// FreezeTopology transitions DISCOVERED -> TOPOLOGY_FROZEN, or REFRESHING ->
// TOPOLOGY_FROZEN (incrementing epoch). It records the reverse
// mappings the commit function uses to gate bootstrap writes.
func (r *Registry) FreezeTopology(pool types.AccountKey, t topology.Topology, slot uint64) error {
	if t.PoolKey == types.ZeroKey {
		return ErrNilTopology
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	switch e.State {
	case types.Discovered:
		// epoch stays at its initial value (0)
	case types.Refreshing:
		e.Epoch++
	default:
		return ErrWrongState
	}

	e.State = types.TopologyFrozen
	e.Topology = &t
	e.IncompleteReason = ""
	r.installReverseMappingsLocked(t)
	r.emit("topology_frozen", pool, slot)
	return nil
}

// installReverseMappingsLocked adds t's dependency keys to the reverse
// tables under a freshly cloned view, then swaps it in atomically. Caller
// must hold r.mu (for entry-map consistency); the atomic swap itself needs
// no external lock since reads never touch r.mu.
func (r *Registry) installReverseMappingsLocked(t topology.Topology) {
	cur := r.reverse.Load()
	next := cur.clone()
	next.vaultToPool[t.BaseVault] = t.PoolKey
	next.vaultToPool[t.QuoteVault] = t.PoolKey
	if t.HasFeeConfig {
		next.feeConfigToPool[t.FeeConfigKey] = addPoolIfAbsent(next.feeConfigToPool[t.FeeConfigKey], t.PoolKey)
	}
	r.reverse.Store(next)
}

// removeReverseMappingsLocked drops every reverse entry pointing at pool.
func (r *Registry) removeReverseMappingsLocked(pool types.AccountKey) {
	cur := r.reverse.Load()
	next := cur.clone()
	for k, p := range next.vaultToPool {
		if p == pool {
			delete(next.vaultToPool, k)
		}
	}
	for k, ps := range next.feeConfigToPool {
		remaining := removePool(ps, pool)
		if len(remaining) == 0 {
			delete(next.feeConfigToPool, k)
		} else {
			next.feeConfigToPool[k] = remaining
		}
	}
	r.reverse.Store(next)
}

// Activate transitions TOPOLOGY_FROZEN -> ACTIVE.
func (r *Registry) Activate(pool types.AccountKey, slot uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateLocked(pool, slot)
}

func (r *Registry) activateLocked(pool types.AccountKey, slot uint64) error {
	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	if e.State != types.TopologyFrozen {
		return ErrWrongState
	}
	e.State = types.Active
	e.ActivationSlot = slot
	e.IncompleteReason = ""
	r.emit("activated", pool, slot)
	return nil
}

// MarkIncomplete annotates a TOPOLOGY_FROZEN pool with a reason string; it
// does not change state. Implements `mark_incomplete`.
func (r *Registry) MarkIncomplete(pool types.AccountKey, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	if e.State != types.TopologyFrozen {
		return ErrWrongState
	}
	e.IncompleteReason = reason
	return nil
}

// StartRefresh transitions ACTIVE -> REFRESHING, refusing if the previous
// refresh happened less than minIntervalMs ago. minIntervalMs <= 0 selects
// DefaultMinRefreshInterval.
func (r *Registry) StartRefresh(pool types.AccountKey, slot uint64, reason string, minIntervalMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	if e.State != types.Active {
		return ErrWrongState
	}
	interval := r.minRefreshInterval
	if minIntervalMs > 0 {
		interval = time.Duration(minIntervalMs) * time.Millisecond
	}
	if !e.LastRefreshAt.IsZero() && time.Since(e.LastRefreshAt) < interval {
		return ErrRefreshTooSoon
	}
	e.State = types.Refreshing
	e.LastRefreshAt = time.Now()
	r.emit("refresh_started:"+reason, pool, slot)
	return nil
}

// AbortRefresh returns a pool to ACTIVE with its existing topology intact.
// Used when a bootstrap fetch fails mid-refresh so the pool keeps serving
// simulations off its previous window.
func (r *Registry) AbortRefresh(pool types.AccountKey, slot uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	if e.State != types.Refreshing {
		return ErrWrongState
	}
	e.State = types.Active
	r.emit("refresh_aborted", pool, slot)
	return nil
}

// Deactivate is allowed from ACTIVE or TOPOLOGY_FROZEN only. It clears the
// topology and reverse mappings, returns the pool to DISCOVERED and
// preserves the epoch counter. Implements `deactivate`.
func (r *Registry) Deactivate(pool types.AccountKey, slot uint64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pool]
	if !ok {
		return ErrUnknownPool
	}
	if e.State != types.Active && e.State != types.TopologyFrozen {
		return ErrWrongState
	}
	r.removeReverseMappingsLocked(pool)
	e.State = types.Discovered
	e.Topology = nil
	e.IncompleteReason = ""
	r.emit("deactivated:"+reason, pool, slot)
	return nil
}

// NotifyDependencyApplied is called by the canonical commit function after
// any vault/tick/bin write lands for pool: if the pool is in TOPOLOGY_FROZEN
// (first freeze, or re-frozen by a refresh's freeze_topology call) and the
// topology checker reports its frozen topology complete, the pool is
// promoted to ACTIVE. A pool still in REFRESHING is not promoted by this
// call.
func (r *Registry) NotifyDependencyApplied(pool types.AccountKey, slot uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maybePromoteLocked(pool, slot)
}

// NotifyFeeConfigApplied is the fee-config analogue of
// NotifyDependencyApplied: a single fee-config write can complete the
// topology of every pool that shares it, so it fans out to each owning pool
// recorded in the reverse mapping.
func (r *Registry) NotifyFeeConfigApplied(feeConfig types.AccountKey, slot uint64) {
	pools := r.OwningPoolsForFeeConfig(feeConfig)
	if len(pools) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pool := range pools {
		r.maybePromoteLocked(pool, slot)
	}
}

func (r *Registry) maybePromoteLocked(pool types.AccountKey, slot uint64) {
	e, ok := r.entries[pool]
	if !ok || e.State != types.TopologyFrozen || e.Topology == nil || r.checker == nil {
		return
	}
	if r.checker.IsTopologyComplete(*e.Topology) {
		_ = r.activateLocked(pool, slot)
	}
}

// rpcAllowedForPool implements the shared predicate behind rpc_allowed_for_pool,
// rpc_allowed_for_vault and rpc_allowed_for_fee_config: true for
// unknown keys (bootstrap may discover freely) and for DISCOVERED /
// REFRESHING pools; false for TOPOLOGY_FROZEN / ACTIVE.
func (r *Registry) rpcAllowedForPool(pool types.AccountKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pool]
	if !ok {
		return true
	}
	return !e.State.ProtectsDependencies()
}

// RPCAllowedForPool implements `rpc_allowed_for_pool(key)`.
func (r *Registry) RPCAllowedForPool(pool types.AccountKey) bool {
	return r.rpcAllowedForPool(pool)
}

// RPCAllowedForVault implements `rpc_allowed_for_vault(key)`.
func (r *Registry) RPCAllowedForVault(vault types.AccountKey) bool {
	pool, ok := r.OwningPoolForVault(vault)
	if !ok {
		return true
	}
	return r.rpcAllowedForPool(pool)
}

// RPCAllowedForFeeConfig implements `rpc_allowed_for_fee_config(key)`: a
// bootstrap write is blocked if ANY pool sharing this fee-config account
// currently protects its dependencies, since a stale bootstrap write to a
// shared account would corrupt every pool reading it, not just one.
func (r *Registry) RPCAllowedForFeeConfig(feeConfig types.AccountKey) bool {
	pools := r.OwningPoolsForFeeConfig(feeConfig)
	if len(pools) == 0 {
		return true
	}
	for _, pool := range pools {
		if !r.rpcAllowedForPool(pool) {
			return false
		}
	}
	return true
}

// OwningPoolForVault resolves the reverse mapping recorded at freeze time.
func (r *Registry) OwningPoolForVault(vault types.AccountKey) (types.AccountKey, bool) {
	v := r.reverse.Load()
	p, ok := v.vaultToPool[vault]
	return p, ok
}

// OwningPoolsForFeeConfig resolves every pool sharing feeConfig as of the
// last freeze/deactivate. The returned slice is a private copy.
func (r *Registry) OwningPoolsForFeeConfig(feeConfig types.AccountKey) []types.AccountKey {
	v := r.reverse.Load()
	ps := v.feeConfigToPool[feeConfig]
	if len(ps) == 0 {
		return nil
	}
	out := make([]types.AccountKey, len(ps))
	copy(out, ps)
	return out
}
