package node

import (
	"math/rand"

	"aetherlib.ai/internal/sim/aspects"
)

const (
	minAmount  = 50
	amountSpan = 100

	purePrimalBias   = 0.95
	hungryPrimalBias = 0.90
	normalPrimalBias = 0.80
	hungryExtra      = 0.50
	maxSlots         = 4
)

// Spawn odds for RollType.
const (
	hungryOdds   = 0.0056
	pureOdds     = 0.0157
	unstableOdds = 0.20
)

// Initialize replaces the pool with a freshly rolled one for the node's type.
func (n *Node) Initialize(rng *rand.Rand, tiers aspects.TierTable) {
	n.aspects = map[aspects.ID]*AspectState{}
	n.regen = map[aspects.ID]float64{}

	put := func(id aspects.ID) {
		if id.IsZero() {
			return
		}
		amt := rng.Intn(amountSpan) + minAmount
		n.aspects[id] = &AspectState{Original: amt, Current: amt}
	}

	switch n.typ {
	case Pure:
		put(pickAspect(rng, tiers, purePrimalBias))
	case Hungry:
		put(n.cfg.HungerAspect)
		if rng.Float64() < hungryExtra {
			put(pickAspect(rng, tiers, hungryPrimalBias))
		}
	default:
		count := rng.Intn(maxSlots) + 1
		for range count {
			put(pickAspect(rng, tiers, normalPrimalBias))
		}
	}
}

// pickAspect draws a primal aspect with the given bias, otherwise a
// secondary (60%), tertiary (30%) or quaternary (10%) one. Empty tiers fall
// through to the next candidate.
func pickAspect(rng *rand.Rand, tiers aspects.TierTable, primalBias float64) aspects.ID {
	primal := tiers.Get(aspects.TierPrimal)
	if rng.Float64() < primalBias && len(primal) > 0 {
		return primal[rng.Intn(len(primal))]
	}
	roll := rng.Float64()
	secondary := tiers.Get(aspects.TierSecondary)
	tertiary := tiers.Get(aspects.TierTertiary)
	quaternary := tiers.Get(aspects.TierQuaternary)
	switch {
	case roll < 0.6 && len(secondary) > 0:
		return secondary[rng.Intn(len(secondary))]
	case roll < 0.9 && len(tertiary) > 0:
		return tertiary[rng.Intn(len(tertiary))]
	case len(quaternary) > 0:
		return quaternary[rng.Intn(len(quaternary))]
	case len(primal) > 0:
		return primal[rng.Intn(len(primal))]
	}
	return aspects.ID{}
}

// RollType draws the type of a naturally spawned node. Sinister nodes are
// only created explicitly.
func RollType(rng *rand.Rand) Type {
	r := rng.Float64()
	switch {
	case r < hungryOdds:
		return Hungry
	case r < pureOdds:
		return Pure
	case rng.Float64() < unstableOdds:
		return Unstable
	default:
		return Normal
	}
}
