// Package node simulates aura nodes: entities with a private aspect pool and
// a type-specific tick behavior fixed at creation.
package node

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/resonance"
)

type Type uint8

const (
	Normal Type = iota
	Pure
	Sinister
	Unstable
	Hungry
)

var typeNames = [...]string{"normal", "pure", "sinister", "unstable", "hungry"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("node: unknown type %q", s)
}

func Types() []Type { return []Type{Normal, Pure, Sinister, Unstable, Hungry} }

// EmptyPolicy decides what happens to a node whose aspect pool is empty.
type EmptyPolicy uint8

const (
	KeepEmpty EmptyPolicy = iota
	TerminateEmpty
)

func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepEmpty, nil
	case "terminate":
		return TerminateEmpty, nil
	}
	return KeepEmpty, fmt.Errorf("node: unknown empty policy %q", s)
}

type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonExploded
	ReasonConsumed
	ReasonEmpty
)

func (r Reason) String() string {
	switch r {
	case ReasonExploded:
		return "exploded"
	case ReasonConsumed:
		return "consumed"
	case ReasonEmpty:
		return "empty"
	default:
		return "none"
	}
}

type Config struct {
	RegenRate               float64
	CorruptionRegenMultiple float64
	CorruptionAspect        aspects.ID
	HungerAspect            aspects.ID

	SinisterInterval int
	SinisterAmount   float64

	HungerInterval   int
	HungerRatio      float64
	HungerDrain      float64
	HungerSelfDamage int

	UnstableInterval     int
	InstabilityThreshold int
	ExplosionPower       float64

	EmptyPolicy EmptyPolicy
}

func DefaultConfig() Config {
	return Config{
		RegenRate:               0.001,
		CorruptionRegenMultiple: 1.5,
		CorruptionAspect:        aspects.Vitium,
		HungerAspect:            aspects.Fames,
		SinisterInterval:        100,
		SinisterAmount:          10,
		HungerInterval:          200,
		HungerRatio:             0.10,
		HungerDrain:             5,
		HungerSelfDamage:        10,
		UnstableInterval:        100,
		InstabilityThreshold:    100,
		ExplosionPower:          3,
		EmptyPolicy:             KeepEmpty,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RegenRate <= 0 {
		c.RegenRate = d.RegenRate
	}
	if c.CorruptionRegenMultiple <= 0 {
		c.CorruptionRegenMultiple = d.CorruptionRegenMultiple
	}
	if c.CorruptionAspect.IsZero() {
		c.CorruptionAspect = d.CorruptionAspect
	}
	if c.HungerAspect.IsZero() {
		c.HungerAspect = d.HungerAspect
	}
	if c.SinisterInterval <= 0 {
		c.SinisterInterval = d.SinisterInterval
	}
	if c.SinisterAmount <= 0 {
		c.SinisterAmount = d.SinisterAmount
	}
	if c.HungerInterval <= 0 {
		c.HungerInterval = d.HungerInterval
	}
	if c.HungerRatio <= 0 {
		c.HungerRatio = d.HungerRatio
	}
	if c.HungerDrain <= 0 {
		c.HungerDrain = d.HungerDrain
	}
	if c.HungerSelfDamage <= 0 {
		c.HungerSelfDamage = d.HungerSelfDamage
	}
	if c.UnstableInterval <= 0 {
		c.UnstableInterval = d.UnstableInterval
	}
	if c.InstabilityThreshold <= 0 {
		c.InstabilityThreshold = d.InstabilityThreshold
	}
	if c.ExplosionPower <= 0 {
		c.ExplosionPower = d.ExplosionPower
	}
	return c
}

// Env is the world as seen by one node during its tick.
type Env interface {
	// Region returns the region at the node's position, if any.
	Region() (aspects.ID, bool)
	AddModification(region, aspect aspects.ID, amount float64)
	DrainAll(region aspects.ID, amount float64)
	Resonance() *resonance.Table
	Explode(pos geom.Vec3i, power float64)
}

type AspectState struct {
	Original int
	Current  int
}

type Outcome struct {
	Alive  bool
	Reason Reason
}

// Node is owned by a single goroutine at a time; it is not safe for
// concurrent use.
type Node struct {
	id  string
	typ Type
	pos geom.Vec3i
	cfg Config
	beh behavior

	aspects map[aspects.ID]*AspectState
	regen   map[aspects.ID]float64

	instability int
	hunger      int
	age         int64
	aggressive  bool

	dead   bool
	reason Reason
}

func New(id string, typ Type, pos geom.Vec3i, cfg Config) (*Node, error) {
	beh, err := behaviorFor(typ)
	if err != nil {
		return nil, err
	}
	return &Node{
		id:      id,
		typ:     typ,
		pos:     pos,
		cfg:     cfg.withDefaults(),
		beh:     beh,
		aspects: map[aspects.ID]*AspectState{},
		regen:   map[aspects.ID]float64{},
	}, nil
}

func (n *Node) ID() string         { return n.id }
func (n *Node) Type() Type         { return n.typ }
func (n *Node) Pos() geom.Vec3i    { return n.pos }
func (n *Node) Alive() bool        { return !n.dead }
func (n *Node) Reason() Reason     { return n.reason }
func (n *Node) Instability() int   { return n.instability }
func (n *Node) HungerCounter() int { return n.hunger }
func (n *Node) Age() int64         { return n.age }
func (n *Node) Aggressive() bool   { return n.aggressive }

// SetAspect replaces one aspect of the pool. Non-positive current removes it.
func (n *Node) SetAspect(id aspects.ID, original, current int) {
	if current <= 0 {
		delete(n.aspects, id)
		delete(n.regen, id)
		return
	}
	n.aspects[id] = &AspectState{Original: original, Current: current}
}

func (n *Node) Aspect(id aspects.ID) (AspectState, bool) {
	st, ok := n.aspects[id]
	if !ok {
		return AspectState{}, false
	}
	return *st, true
}

// AspectRecord is one pool entry in id order.
type AspectRecord struct {
	ID       aspects.ID
	Original int
	Current  int
}

func (n *Node) Aspects() []AspectRecord {
	out := make([]AspectRecord, 0, len(n.aspects))
	for id, st := range n.aspects {
		out = append(out, AspectRecord{ID: id, Original: st.Original, Current: st.Current})
	}
	sort.Slice(out, func(i, j int) bool { return aspects.Less(out[i].ID, out[j].ID) })
	return out
}

// Levels returns the current amounts as an aspect vector.
func (n *Node) Levels() aspects.Levels {
	v := aspects.NewVector[int](len(n.aspects))
	for id, st := range n.aspects {
		v.Put(id, st.Current)
	}
	return v
}

// Tick advances the node by one global tick.
func (n *Node) Tick(env Env) Outcome {
	if n.dead {
		return Outcome{Reason: n.reason}
	}
	n.age++
	n.regenerate()
	n.dropDepleted()

	if r := n.beh.step(n, env); r != ReasonNone {
		n.terminate(r)
		return Outcome{Reason: r}
	}
	n.dropDepleted()

	if len(n.aspects) == 0 && n.cfg.EmptyPolicy == TerminateEmpty {
		n.terminate(ReasonEmpty)
		return Outcome{Reason: ReasonEmpty}
	}
	return Outcome{Alive: true}
}

func (n *Node) terminate(r Reason) {
	n.dead = true
	n.reason = r
}

// regenerate moves each aspect's current toward its original. Fractional
// progress is carried between ticks.
func (n *Node) regenerate() {
	for id, st := range n.aspects {
		if st.Current >= st.Original {
			delete(n.regen, id)
			continue
		}
		mult := n.beh.regenMultiplier(n, id)
		if mult <= 0 {
			continue
		}
		acc := n.regen[id] + n.cfg.RegenRate*mult*float64(st.Original)
		whole := math.Floor(acc + 1e-9)
		acc -= whole
		st.Current += int(whole)
		if st.Current >= st.Original {
			st.Current = st.Original
			delete(n.regen, id)
			continue
		}
		n.regen[id] = acc
	}
}

func (n *Node) dropDepleted() {
	for id, st := range n.aspects {
		if st.Current <= 0 {
			delete(n.aspects, id)
			delete(n.regen, id)
		}
	}
}

// sortedOthers returns every pool aspect except skip, in id order.
func (n *Node) sortedOthers(skip aspects.ID) []aspects.ID {
	out := make([]aspects.ID, 0, len(n.aspects))
	for id := range n.aspects {
		if id != skip {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return aspects.Less(out[i], out[j]) })
	return out
}
