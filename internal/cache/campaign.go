// Package cache keeps the fetched campaign collection in memory so the
// viewer and server avoid a backend round trip per lookup.
package cache

import (
	"sort"
	"sync"

	"github.com/markercast/engine/pkg/core"
)

// CampaignCache holds campaigns keyed by id and lists them newest first.
type CampaignCache struct {
	mu        sync.RWMutex
	campaigns map[string]core.Campaign
}

// NewCampaignCache creates an empty CampaignCache
func NewCampaignCache() *CampaignCache {
	return &CampaignCache{
		campaigns: make(map[string]core.Campaign),
	}
}

// Replace swaps the whole collection, as after a fresh fetch.
func (c *CampaignCache) Replace(list []core.Campaign) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.campaigns = make(map[string]core.Campaign, len(list))
	for _, cp := range list {
		c.campaigns[cp.ID] = cp
	}
}

// Get retrieves a campaign by id
func (c *CampaignCache) Get(id string) (core.Campaign, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp, ok := c.campaigns[id]
	return cp, ok
}

// Put inserts or replaces a campaign
func (c *CampaignCache) Put(cp core.Campaign) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.campaigns[cp.ID] = cp
}

// Delete removes a campaign by id
func (c *CampaignCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.campaigns, id)
}

// Len returns the number of cached campaigns
func (c *CampaignCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.campaigns)
}

// List returns the campaigns ordered by creation time descending.
func (c *CampaignCache) List() []core.Campaign {
	c.mu.RLock()
	out := make([]core.Campaign, 0, len(c.campaigns))
	for _, cp := range c.campaigns {
		out = append(out, cp)
	}
	c.mu.RUnlock()

	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders list by creation time descending. Ties are broken
// by id so the order is stable.
func SortNewestFirst(list []core.Campaign) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// Reset clears all campaigns from the cache
func (c *CampaignCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.campaigns = make(map[string]core.Campaign)
}
