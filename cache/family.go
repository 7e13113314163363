// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import "github.com/prometheus/client_golang/prometheus"

// Family bundles the six typed caches the canonical commit function mutates.
// It owns no lifecycle knowledge of its own — eviction protection is wired
// in separately via SetLifecycleQuerier on the tick and bin caches, keeping
// cache ownership one-directional (no pool-to-vault-to-pool cycle).
type Family struct {
	Pool            *PoolCache
	Vault           *VaultCache
	Tick            *TickCache
	Bin             *BinCache
	VenueConfig     *VenueConfigCache
	SingletonConfig *SingletonConfigCache
}

// DefaultTickEvictCeiling and DefaultBinEvictCeiling are the sizes at which
// the tick/bin caches begin attempting topology-aware eviction. Chosen to
// comfortably hold the working set of a few dozen actively-arbed pools (each
// needing on the order of 2*R+1 tick arrays, with R defaulting to 7) with
// headroom for discovered-but-not-yet-active pools before eviction kicks in.
const (
	DefaultTickEvictCeiling = 20000
	DefaultBinEvictCeiling  = 20000
)

// NewFamily builds a complete cache family with default eviction ceilings.
// registry may be nil to skip Prometheus registration.
func NewFamily(registry prometheus.Registerer) *Family {
	return &Family{
		Pool:            NewPoolCache(registry),
		Vault:           NewVaultCache(registry),
		Tick:            NewTickCache(registry, DefaultTickEvictCeiling),
		Bin:             NewBinCache(registry, DefaultBinEvictCeiling),
		VenueConfig:     NewVenueConfigCache(registry),
		SingletonConfig: NewSingletonConfigCache(registry),
	}
}
