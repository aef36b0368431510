// Package tier maps actors to queue-capacity quotas.
package tier

import "sort"

// Default tier labels and capacities. The table can be replaced via config.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierDiamond = "diamond"
)

// Capacity is the queue budget granted to a tier.
type Capacity struct {
	Unlimited bool
	Limit     int
}

// Remaining returns how many more tracks fit given the current queue size.
// Unlimited capacity reports a remaining budget large enough for any playlist.
func (c Capacity) Remaining(size int) int {
	if c.Unlimited {
		return int(^uint(0) >> 1)
	}
	r := c.Limit - size
	if r < 0 {
		return 0
	}
	return r
}

// Policy resolves an actor to a tier and a tier to its capacity.
// The concrete tier source (subscription system) lives behind this seam;
// PlaybackSession never depends on how tiers are assigned.
type Policy interface {
	ResolveTier(actorID string) string
	CapacityFor(tierLabel string) Capacity
}

// StaticPolicy resolves every actor to a single default tier using a fixed
// label->capacity table. This mirrors the committed behavior of the upstream
// subscription stub.
type StaticPolicy struct {
	defaultTier string
	table       map[string]Capacity
}

// NewStaticPolicy creates a policy from a capacity table.
// Every actor resolves to defaultTier.
func NewStaticPolicy(defaultTier string, table map[string]Capacity) *StaticPolicy {
	cp := make(map[string]Capacity, len(table))
	for label, c := range table {
		cp[label] = c
	}
	return &StaticPolicy{defaultTier: defaultTier, table: cp}
}

// DefaultTable returns the stock three-tier table.
func DefaultTable() map[string]Capacity {
	return map[string]Capacity{
		TierFree:    {Limit: 500},
		TierPremium: {Limit: 5000},
		TierDiamond: {Unlimited: true},
	}
}

// ResolveTier returns the default tier for any actor.
func (p *StaticPolicy) ResolveTier(actorID string) string {
	return p.defaultTier
}

// CapacityFor returns the capacity for a tier label.
// Unknown labels fall back to the lowest finite capacity in the table,
// never to unlimited.
func (p *StaticPolicy) CapacityFor(tierLabel string) Capacity {
	if c, ok := p.table[tierLabel]; ok {
		return c
	}
	return p.lowestCapacity()
}

func (p *StaticPolicy) lowestCapacity() Capacity {
	limits := make([]int, 0, len(p.table))
	for _, c := range p.table {
		if !c.Unlimited {
			limits = append(limits, c.Limit)
		}
	}
	if len(limits) == 0 {
		// Table holds only unlimited tiers; a zero budget keeps the
		// fallback closed.
		return Capacity{Limit: 0}
	}
	sort.Ints(limits)
	return Capacity{Limit: limits[0]}
}
