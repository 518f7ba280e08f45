// Package resonance evaluates declared pairwise interactions between aspects.
package resonance

import (
	"fmt"
	"strings"
	"sync/atomic"

	"aetherlib.ai/internal/sim/aspects"
)

// DefaultFactor applies when a rule omits its factor.
const DefaultFactor = 1.5

type Kind int

const (
	Amplifying Kind = iota
	Opposing
)

func (k Kind) String() string {
	if k == Opposing {
		return "opposing"
	}
	return "amplifying"
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amplifying":
		return Amplifying, nil
	case "opposing":
		return Opposing, nil
	}
	return Amplifying, fmt.Errorf("resonance: unknown type %q", s)
}

type Rule struct {
	A, B   aspects.ID
	Kind   Kind
	Factor float64
}

// Matches is symmetric: {a,b} must equal {A,B}.
func (r Rule) Matches(a, b aspects.ID) bool {
	return (r.A == a && r.B == b) || (r.A == b && r.B == a)
}

// Other returns the partner of id within the rule.
func (r Rule) Other(id aspects.ID) aspects.ID {
	if r.A == id {
		return r.B
	}
	return r.A
}

// Table indexes each rule under both of its aspects. A rule pairing an aspect
// with itself is therefore listed twice under it. Immutable once built.
type Table struct {
	byAspect map[aspects.ID][]Rule
	rules    []Rule
}

func NewTable(rules []Rule) *Table {
	t := &Table{byAspect: map[aspects.ID][]Rule{}, rules: append([]Rule(nil), rules...)}
	for _, r := range t.rules {
		t.byAspect[r.A] = append(t.byAspect[r.A], r)
		t.byAspect[r.B] = append(t.byAspect[r.B], r)
	}
	return t
}

func (t *Table) For(id aspects.ID) []Rule {
	if t == nil {
		return nil
	}
	return t.byAspect[id]
}

func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return append([]Rule(nil), t.rules...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Result is derived on demand and never persisted.
type Result struct {
	TotalUnits          float64
	AmplificationFactor float64
	BarrierCost         float64
}

// Calculate walks every present aspect and every rule that references it.
// Because both members of a pair are visited, a symmetric rule contributes
// once per direction.
func Calculate[N aspects.Number](t *Table, v aspects.Vector[N]) Result {
	res := Result{AmplificationFactor: 1.0}
	if t == nil {
		return res
	}
	v.Range(func(id aspects.ID, n N) bool {
		amount := float64(n)
		for _, r := range t.byAspect[id] {
			other := r.Other(id)
			if !v.Has(other) {
				continue
			}
			o := float64(v.Get(other))
			switch r.Kind {
			case Amplifying:
				boost := ((amount + o) / 2.0) * r.Factor
				res.AmplificationFactor += boost
				res.TotalUnits += boost
			case Opposing:
				barrier := min(amount, o) * r.Factor
				res.BarrierCost += barrier
				res.TotalUnits -= barrier
			}
		}
		return true
	})
	return res
}

// TableStore publishes resonance tables atomically.
type TableStore struct {
	cur atomic.Pointer[Table]
}

func NewTableStore() *TableStore { return &TableStore{} }

func (s *TableStore) Publish(t *Table) {
	if t == nil {
		t = NewTable(nil)
	}
	s.cur.Store(t)
}

func (s *TableStore) Current() *Table {
	return s.cur.Load()
}
