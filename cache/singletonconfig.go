// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

const minSingletonConfigRecordSize = 1

// SingletonConfig is the constant-product fee singleton: one account,
// shared across every VenueCPMMSharedFee pool, holding the fee numerator and
// denominator those pools read instead of storing their own.
type SingletonConfig struct {
	Key            types.AccountKey
	FeeNumerator   uint64
	FeeDenominator uint64
	Seq            types.SlotSeq
	Source         types.Source
}

// SlotSeq implements Entry.
func (s SingletonConfig) SlotSeq() types.SlotSeq { return s.Seq }

// SingletonConfigCache holds the (typically single) shared fee config
// account(s). Staleness-checked only, no eviction.
type SingletonConfigCache struct {
	store *keyedStore[SingletonConfig]
}

// NewSingletonConfigCache creates an empty singleton-config cache.
func NewSingletonConfigCache(registry prometheus.Registerer) *SingletonConfigCache {
	return &SingletonConfigCache{store: newKeyedStore[SingletonConfig](registry, "singleton_config")}
}

// Get implements the shared get() contract.
func (c *SingletonConfigCache) Get(key types.AccountKey) (SingletonConfig, bool) {
	return c.store.Get(key)
}

// SetFetcher installs a lazy-fetch callback, implementing `set_fetcher`.
func (c *SingletonConfigCache) SetFetcher(fn func(types.AccountKey) (SingletonConfig, bool)) {
	c.store.SetFetcher(fn)
}

// Set applies a singleton-config update under the monotonic invariant.
func (c *SingletonConfigCache) Set(key types.AccountKey, s SingletonConfig, dataLength int) SetResult {
	if dataLength < minSingletonConfigRecordSize {
		c.store.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	s.Key = key
	r := c.store.trySet(key, s)
	return SetResult{Outcome: r.outcome, WasNew: r.wasNew}
}

// Stats implements the shared stats() contract.
func (c *SingletonConfigCache) Stats() StatsSnapshot { return c.store.Stats() }
