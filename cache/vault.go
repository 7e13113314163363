// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"github.com/luxfi/ammcore/types"
	"github.com/prometheus/client_golang/prometheus"
)

// minVaultRecordSize is the on-wire size of an SPL-token-account balance
// field (a u64 amount); the commit path rejects anything shorter.
const minVaultRecordSize = 8

// Vault is a token-account balance. The pool's effective reserves are
// computed from vault balances at read time by the simulators; vaults are
// never aggregated or interpreted by the cache itself.
type Vault struct {
	Key    types.AccountKey
	Amount uint64
	Seq    types.SlotSeq
	Source types.Source
}

// SlotSeq implements Entry.
func (v Vault) SlotSeq() types.SlotSeq { return v.Seq }

// VaultCache holds token-account balances. No eviction.
type VaultCache struct {
	store *keyedStore[Vault]
}

// NewVaultCache creates an empty vault cache.
func NewVaultCache(registry prometheus.Registerer) *VaultCache {
	return &VaultCache{store: newKeyedStore[Vault](registry, "vault")}
}

// Get implements the shared get() contract.
func (c *VaultCache) Get(key types.AccountKey) (Vault, bool) {
	return c.store.Get(key)
}

// Set applies a vault balance update under the monotonic invariant.
func (c *VaultCache) Set(key types.AccountKey, v Vault, dataLength int) SetResult {
	if dataLength < minVaultRecordSize {
		c.store.stats.recordRejected()
		return SetResult{Outcome: types.RejectedInvalid}
	}
	v.Key = key
	r := c.store.trySet(key, v)
	return SetResult{Outcome: r.outcome, WasNew: r.wasNew}
}

// Stats implements the shared stats() contract.
func (c *VaultCache) Stats() StatsSnapshot { return c.store.Stats() }
