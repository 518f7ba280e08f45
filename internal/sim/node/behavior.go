package node

import (
	"fmt"
	"math"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/resonance"
)

type behavior interface {
	regenMultiplier(n *Node, id aspects.ID) float64
	step(n *Node, env Env) Reason
}

func behaviorFor(t Type) (behavior, error) {
	switch t {
	case Normal, Pure:
		return baseline{}, nil
	case Sinister:
		return sinister{}, nil
	case Unstable:
		return unstable{}, nil
	case Hungry:
		return hungry{}, nil
	}
	return nil, fmt.Errorf("node: unknown type %d", t)
}

type baseline struct{}

func (baseline) regenMultiplier(*Node, aspects.ID) float64 { return 1 }
func (baseline) step(*Node, Env) Reason                    { return ReasonNone }

// sinister seeds its region with the corruption aspect.
type sinister struct{}

func (sinister) regenMultiplier(n *Node, id aspects.ID) float64 {
	if id == n.cfg.CorruptionAspect {
		return n.cfg.CorruptionRegenMultiple
	}
	return 1
}

func (sinister) step(n *Node, env Env) Reason {
	if n.age%int64(n.cfg.SinisterInterval) != 0 {
		return ReasonNone
	}
	if region, ok := env.Region(); ok {
		env.AddModification(region, n.cfg.CorruptionAspect, n.cfg.SinisterAmount)
	}
	return ReasonNone
}

// unstable accumulates opposing resonance until it explodes.
type unstable struct{}

func (unstable) regenMultiplier(*Node, aspects.ID) float64 { return 1 }

func (unstable) step(n *Node, env Env) Reason {
	if n.age%int64(n.cfg.UnstableInterval) != 0 {
		return ReasonNone
	}
	res := resonance.Calculate(env.Resonance(), n.Levels())
	if res.BarrierCost <= 0 {
		return ReasonNone
	}
	n.instability += int(math.Ceil(res.BarrierCost))
	if n.instability >= n.cfg.InstabilityThreshold {
		env.Explode(n.pos, n.cfg.ExplosionPower)
		return ReasonExploded
	}
	return ReasonNone
}

// hungry feeds its hunger aspect from the rest of its pool, then from the
// region, then from itself.
type hungry struct{}

func (hungry) regenMultiplier(*Node, aspects.ID) float64 { return 0 }

func (hungry) step(n *Node, env Env) Reason {
	n.hunger++
	if n.hunger < n.cfg.HungerInterval {
		return ReasonNone
	}
	n.hunger = 0

	hunger, ok := n.aspects[n.cfg.HungerAspect]
	if !ok {
		return ReasonConsumed
	}

	if others := n.sortedOthers(n.cfg.HungerAspect); len(others) > 0 {
		consumed := 0
		for _, id := range others {
			st := n.aspects[id]
			take := max(1, int(float64(st.Current)*n.cfg.HungerRatio))
			take = min(take, st.Current)
			st.Current -= take
			consumed += take
		}
		if !n.aggressive && hunger.Current < hunger.Original {
			hunger.Current = min(hunger.Original, hunger.Current+consumed)
			return ReasonNone
		}
		n.aggressive = true
		hunger.Original += consumed
		hunger.Current += consumed
		return ReasonNone
	}

	if region, ok := env.Region(); ok {
		env.DrainAll(region, n.cfg.HungerDrain)
	}
	hunger.Current = max(0, hunger.Current-n.cfg.HungerSelfDamage)
	if hunger.Current == 0 {
		delete(n.aspects, n.cfg.HungerAspect)
		return ReasonConsumed
	}
	return ReasonNone
}
