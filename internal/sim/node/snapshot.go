package node

import (
	"fmt"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/geom"
)

// State is the persisted form of a live node.
type State struct {
	Type        Type
	Aspects     []AspectRecord
	Instability int
	Hunger      int
	Age         int64
	Aggressive  bool
	Regen       []RegenCarry
}

type RegenCarry struct {
	ID    aspects.ID
	Carry float64
}

func (n *Node) Snapshot() State {
	st := State{
		Type:        n.typ,
		Aspects:     n.Aspects(),
		Instability: n.instability,
		Hunger:      n.hunger,
		Age:         n.age,
		Aggressive:  n.aggressive,
	}
	for _, a := range st.Aspects {
		if c, ok := n.regen[a.ID]; ok {
			st.Regen = append(st.Regen, RegenCarry{ID: a.ID, Carry: c})
		}
	}
	return st
}

func FromSnapshot(id string, pos geom.Vec3i, cfg Config, st State) (*Node, error) {
	n, err := New(id, st.Type, pos, cfg)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	for _, a := range st.Aspects {
		if a.ID.IsZero() {
			return nil, fmt.Errorf("node %s: aspect with empty id", id)
		}
		n.aspects[a.ID] = &AspectState{Original: a.Original, Current: a.Current}
	}
	for _, r := range st.Regen {
		if _, ok := n.aspects[r.ID]; ok {
			n.regen[r.ID] = r.Carry
		}
	}
	n.instability = st.Instability
	n.hunger = st.Hunger
	n.age = st.Age
	n.aggressive = st.Aggressive
	return n, nil
}
