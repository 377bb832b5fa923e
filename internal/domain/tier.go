package domain

import (
	"fmt"
	"strings"
)

// Tier is the coarse risk bucket an asset belongs to.
type Tier string

const (
	TierFoundation  Tier = "foundation"  // BTC, ETH, SOL
	TierGrowth      Tier = "growth"      // top 20-100 alts
	TierOpportunity Tier = "opportunity" // memecoins
)

// Tiers lists every tier in ascending risk order.
var Tiers = []Tier{TierFoundation, TierGrowth, TierOpportunity}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFoundation, TierGrowth, TierOpportunity:
		return true
	}
	return false
}

func (t Tier) String() string { return string(t) }

// ParseTier accepts the tier name in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
