package density

import "aetherlib.ai/internal/sim/aspects"

// DeltaSource supplies the runtime deltas for a region.
type DeltaSource interface {
	Modifications(region aspects.ID) (aspects.Density, bool)
}

// Resolve layers base density, structure modifiers and dynamic deltas for a
// region. The order (additive, then multiplicative, then dynamic) is fixed.
// Multiplicative factors only scale aspects that are already present, and no
// floor is applied to the result.
func Resolve(rules *Rules, deltas DeltaSource, region RegionID, structures []StructureID) aspects.Density {
	if rules == nil {
		rules = emptyRules
	}
	final := rules.Densities[region].Clone()

	var add, mul aspects.Density
	for _, sid := range structures {
		mod, ok := rules.Modifiers[sid]
		if !ok {
			continue
		}
		mod.Values.Range(func(id aspects.ID, v float64) bool {
			switch mod.Operation {
			case OpMultiply:
				if !mul.Has(id) {
					mul.Put(id, 1.0)
				}
				mul.Merge(id, v, aspects.Product[float64])
			default:
				add.Merge(id, v, aspects.Sum[float64])
			}
			return true
		})
	}

	add.Range(func(id aspects.ID, v float64) bool {
		final.Merge(id, v, aspects.Sum[float64])
		return true
	})
	mul.Range(func(id aspects.ID, f float64) bool {
		final.Update(id, func(cur float64) float64 { return cur * f })
		return true
	})

	if deltas != nil {
		if dyn, ok := deltas.Modifications(region); ok {
			dyn.Range(func(id aspects.ID, v float64) bool {
				final.Merge(id, v, aspects.Sum[float64])
				return true
			})
		}
	}
	return final
}

type Options struct {
	// ClampNegative drops non-positive aspects from resolved output. Stored
	// deltas are never altered.
	ClampNegative bool
}

// Resolver binds the current rule generation to a delta source.
type Resolver struct {
	rules  *RuleStore
	deltas DeltaSource
	opts   Options
}

func NewResolver(rules *RuleStore, deltas DeltaSource, opts Options) *Resolver {
	return &Resolver{rules: rules, deltas: deltas, opts: opts}
}

func (r *Resolver) Rules() *Rules { return r.rules.Current() }

func (r *Resolver) Resolve(region RegionID, structures []StructureID) aspects.Density {
	out := Resolve(r.rules.Current(), r.deltas, region, structures)
	if r.opts.ClampNegative {
		out.Prune()
	}
	return out
}

// Base returns the unmodified table entry for region.
func (r *Resolver) Base(region RegionID) (aspects.Density, bool) {
	v, ok := r.rules.Current().Densities[region]
	return v.Clone(), ok
}

// Location is what a spatial query reports for one position.
type Location struct {
	Region     RegionID
	Structures []StructureID
	// DeadZone marks permanently empty chunks.
	DeadZone bool
}

// ResolveAt resolves a located position. Dead zones and positions without a
// region resolve empty.
func (r *Resolver) ResolveAt(loc Location) aspects.Density {
	if loc.DeadZone || loc.Region.IsZero() {
		return aspects.Density{}
	}
	return r.Resolve(loc.Region, loc.Structures)
}
