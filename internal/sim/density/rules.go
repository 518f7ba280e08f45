package density

import (
	"fmt"
	"strings"
	"sync/atomic"

	"aetherlib.ai/internal/sim/aspects"
)

type (
	RegionID    = aspects.ID
	StructureID = aspects.ID
)

type Operation int

const (
	OpAdd Operation = iota
	OpMultiply
)

func (o Operation) String() string {
	if o == OpMultiply {
		return "multiply"
	}
	return "add"
}

func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "add":
		return OpAdd, nil
	case "multiply":
		return OpMultiply, nil
	}
	return OpAdd, fmt.Errorf("density: unknown operation %q", s)
}

type Modifier struct {
	Operation Operation
	Values    aspects.Density
}

// Table maps regions to their base density.
type Table map[RegionID]aspects.Density

// ModifierTable maps structures to the modifier they overlay.
type ModifierTable map[StructureID]Modifier

// Rules is one immutable generation of the static rule tables. Callers must
// not mutate a Rules value after it has been published.
type Rules struct {
	Densities Table
	Modifiers ModifierTable
	Version   uint64
	Digest    string
}

var emptyRules = &Rules{Densities: Table{}, Modifiers: ModifierTable{}}

// RuleStore publishes Rules snapshots. Readers see either the previous or
// the new generation in full.
type RuleStore struct {
	cur     atomic.Pointer[Rules]
	version atomic.Uint64
}

func NewRuleStore() *RuleStore { return &RuleStore{} }

// Publish swaps in a copy of r stamped with the next version number.
func (s *RuleStore) Publish(r *Rules) uint64 {
	var next Rules
	if r != nil {
		next = *r
	}
	if next.Densities == nil {
		next.Densities = Table{}
	}
	if next.Modifiers == nil {
		next.Modifiers = ModifierTable{}
	}
	next.Version = s.version.Add(1)
	s.cur.Store(&next)
	return next.Version
}

func (s *RuleStore) Current() *Rules {
	if r := s.cur.Load(); r != nil {
		return r
	}
	return emptyRules
}
