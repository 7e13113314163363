// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the identifiers and small value types shared by the
// cache, lifecycle, topology, fee-oracle and simulation packages. Nothing in
// here owns state; it is the vocabulary the rest of the module speaks.
package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountKey addresses every on-chain object this module tracks: pools,
// vaults, tick arrays, bin arrays and fee-config accounts all share the same
// 32-byte key space.
type AccountKey = solana.PublicKey

// ZeroKey is the invalid, never-allocated account key. The canonical commit
// path treats it as a fatal contract violation rather than a normal miss.
var ZeroKey AccountKey

// Venue is the closed enumeration of tracked AMM families.
type Venue uint8

const (
	// VenueCPMMExplicitFee is the constant-product variant that stores its
	// fee numerator/denominator directly on the pool account.
	VenueCPMMExplicitFee Venue = iota
	// VenueCPMMSharedFee is the constant-product variant that reads its fee
	// from a shared singleton config account.
	VenueCPMMSharedFee
	// VenueCLMM is the concentrated-liquidity venue.
	VenueCLMM
	// VenueDLMM is the discretised-bin venue.
	VenueDLMM
)

func (v Venue) String() string {
	switch v {
	case VenueCPMMExplicitFee:
		return "cpmm-explicit-fee"
	case VenueCPMMSharedFee:
		return "cpmm-shared-fee"
	case VenueCLMM:
		return "clmm"
	case VenueDLMM:
		return "dlmm"
	default:
		return fmt.Sprintf("venue(%d)", uint8(v))
	}
}

// IsConstantProduct reports whether v is one of the two CPMM variants.
func (v Venue) IsConstantProduct() bool {
	return v == VenueCPMMExplicitFee || v == VenueCPMMSharedFee
}

// Direction is the two-valued swap-direction tag, normalised so the "quote"
// side is always the native gas token.
type Direction uint8

const (
	// DirAtoB swaps base for quote.
	DirAtoB Direction = iota
	// DirBtoA swaps quote for base.
	DirBtoA
)

func (d Direction) String() string {
	if d == DirAtoB {
		return "A->B"
	}
	return "B->A"
}

// Opposite returns the reverse of d.
func (d Direction) Opposite() Direction {
	if d == DirAtoB {
		return DirBtoA
	}
	return DirAtoB
}

// Source distinguishes the canonical streaming feed from best-effort
// bootstrap fetches.
type Source uint8

const (
	// SourceGossip is the canonical, confirmed streaming feed. It may write
	// in any lifecycle state.
	SourceGossip Source = iota
	// SourceBootstrap is a best-effort point-in-time RPC fetch, gated by
	// lifecycle state.
	SourceBootstrap
)

func (s Source) String() string {
	if s == SourceGossip {
		return "gossip"
	}
	return "bootstrap"
}

// SlotSeq is the (slot, write_sequence) pair every cached entry and every
// commit event carries. Entries are totally ordered per key by this pair;
// equality is a reject, never an overwrite.
type SlotSeq struct {
	Slot     uint64
	WriteSeq uint64
}

// Less reports whether s sorts strictly before o.
func (s SlotSeq) Less(o SlotSeq) bool {
	if s.Slot != o.Slot {
		return s.Slot < o.Slot
	}
	return s.WriteSeq < o.WriteSeq
}

// NewerThan reports whether s is lexicographically strictly greater than o —
// the only condition under which a commit may apply.
func (s SlotSeq) NewerThan(o SlotSeq) bool {
	return o.Less(s)
}

// EventKind tags the payload carried by a commit event.
type EventKind uint8

const (
	EventPool EventKind = iota
	EventVault
	EventTick
	EventBin
	EventVenueConfig
	EventSingletonConfig
)

func (k EventKind) String() string {
	switch k {
	case EventPool:
		return "pool"
	case EventVault:
		return "vault"
	case EventTick:
		return "tick"
	case EventBin:
		return "bin"
	case EventVenueConfig:
		return "venue_config"
	case EventSingletonConfig:
		return "singleton_config"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Outcome is the result of a single commit attempt.
type Outcome uint8

const (
	Applied Outcome = iota
	Stale
	RejectedByLifecycle
	RejectedInvalid
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case RejectedByLifecycle:
		return "rejected-by-lifecycle"
	case RejectedInvalid:
		return "rejected-invalid"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// LifecycleState is the pool lifecycle state machine's four states.
type LifecycleState uint8

const (
	Discovered LifecycleState = iota
	TopologyFrozen
	Active
	Refreshing
)

func (s LifecycleState) String() string {
	switch s {
	case Discovered:
		return "DISCOVERED"
	case TopologyFrozen:
		return "TOPOLOGY_FROZEN"
	case Active:
		return "ACTIVE"
	case Refreshing:
		return "REFRESHING"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ProtectsDependencies reports whether a pool in state s protects its
// dependencies from bootstrap-sourced writes (TOPOLOGY_FROZEN and ACTIVE).
// Eviction protection is a different set, ACTIVE and REFRESHING, checked
// by the tick and bin caches themselves.
func (s LifecycleState) ProtectsDependencies() bool {
	return s == TopologyFrozen || s == Active
}

// LifecycleQuerier is the narrow read-only view the cache family needs of
// the lifecycle registry: "is this pool's state one that pins its
// dependencies". Implemented by *lifecycle.Registry; kept here (rather than
// imported from package lifecycle) so package cache never has to import
// package lifecycle — only the engine wires the two together.
type LifecycleQuerier interface {
	// StateOf returns the current state of pool, and ok=false if the pool is
	// unknown to the registry.
	StateOf(pool AccountKey) (state LifecycleState, ok bool)
}

// Confidence annotates a simulation result with how much the simulator had
// to approximate.
type Confidence uint8

const (
	// ConfidenceFull means every dependency needed was present and the swap
	// was walked exactly.
	ConfidenceFull Confidence = iota
	// ConfidenceReduced means the simulator fell back to an approximation
	// because some dependency (e.g. a tick array) was missing.
	ConfidenceReduced
)

func (c Confidence) String() string {
	if c == ConfidenceFull {
		return "full"
	}
	return "reduced"
}
