package aspects

import (
	"fmt"
	"strings"
)

type Tier int

const (
	TierNone Tier = iota
	TierPrimal
	TierSecondary
	TierTertiary
	TierQuaternary
)

func (t Tier) String() string {
	switch t {
	case TierPrimal:
		return "primal"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	case TierQuaternary:
		return "quaternary"
	default:
		return ""
	}
}

func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TierNone, nil
	case "primal":
		return TierPrimal, nil
	case "secondary":
		return TierSecondary, nil
	case "tertiary":
		return TierTertiary, nil
	case "quaternary":
		return TierQuaternary, nil
	}
	return TierNone, fmt.Errorf("aspects: unknown tier %q", s)
}

// TierTable lists aspect ids per tier, primal first.
type TierTable [4][]ID

func (t TierTable) Get(tier Tier) []ID {
	if tier < TierPrimal || tier > TierQuaternary {
		return nil
	}
	return t[tier-1]
}

// Complete reports whether every tier has at least one aspect.
func (t TierTable) Complete() bool {
	for _, ids := range t {
		if len(ids) == 0 {
			return false
		}
	}
	return true
}

// Well-known aspects.
var (
	Vitium = MustID("aetherlib:vitium")
	Fames  = MustID("aetherlib:fames")
)

func ids(paths ...string) []ID {
	out := make([]ID, len(paths))
	for i, p := range paths {
		out[i] = MustID(DefaultNamespace + ":" + p)
	}
	return out
}

// DefaultTiers is the built-in tier table used when the catalog does not
// declare tiers.
func DefaultTiers() TierTable {
	return TierTable{
		ids("aer", "aqua", "ignis", "ordo", "perditio", "terra"),
		ids("gelum", "lux", "metallum", "mortuus", "motus", "permutatio", "potentia", "vacuos", "victus", "vitreus"),
		ids("bestia", "fames", "exanimis", "herba", "instrumentum", "praecantatio", "spiritus", "tenebrae", "vinculum", "volatus"),
		ids("alienis", "alkimia", "auram", "aversion", "cognitio", "desiderium", "fabrico", "humanus", "machina", "praemunio", "sensus", "vitium"),
	}
}
