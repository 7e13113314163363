// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// minVenueConfigRecordSize is deliberately small: the exact layout of a
// venue's fee-config account is decided by the decoder collaborator, and
// at least one venue's byte offsets remain unresolved across comparable
// implementations. The cache only guards against an obviously truncated
// account.
const minVenueConfigRecordSize = 1

// VenueConfig is a per-venue shared fee-config entity: concentrated-liquidity
// fee tiers, or a discrete-bin fee preset table. FeeBps/ProtocolShareBps are
// populated by whichever venue
// uses this record; a venue that ignores one leaves it zero.
type VenueConfig struct {
	Key             types.AccountKey
	Venue           types.Venue
	FeeBps          uint32
	ProtocolShareBps uint16
	TickSpacing     int32 // CLMM fee tiers only
	Seq             types.SlotSeq
	Source          types.Source
}

// SlotSeq implements Entry.
func (v VenueConfig) SlotSeq() types.SlotSeq { return v.Seq }

// VenueConfigCache holds per-venue shared fee-tier/fee-table accounts,
// staleness-checked only — no eviction.
type VenueConfigCache struct {
	store *keyedStore[VenueConfig]
}

// NewVenueConfigCache creates an empty venue-config cache.
func NewVenueConfigCache(registry prometheus.Registerer) *VenueConfigCache {
	return &VenueConfigCache{store: newKeyedStore[VenueConfig](registry, "venue_config")}
}

// Get implements the shared get() contract.
func (c *VenueConfigCache) Get(key types.AccountKey) (VenueConfig, bool) {
	return c.store.Get(key)
}

// SetFetcher installs a lazy-fetch callback, implementing `set_fetcher`.
func (c *VenueConfigCache) SetFetcher(fn func(types.AccountKey) (VenueConfig, bool)) {
	c.store.SetFetcher(fn)
}

// Set applies a venue-config update under the monotonic invariant.
func (c *VenueConfigCache) Set(key types.AccountKey, v VenueConfig, dataLength int) SetResult {
	if dataLength < minVenueConfigRecordSize {
		c.store.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	v.Key = key
	r := c.store.trySet(key, v)
	return SetResult{Outcome: r.outcome, WasNew: r.wasNew}
}

// Stats implements the shared stats() contract.
func (c *VenueConfigCache) Stats() StatsSnapshot { return c.store.Stats() }
