package aether

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/geom"
)

// Diagnostic status codes.
const (
	StatusFailure = 0
	StatusSuccess = 1
)

const (
	DefaultInjectAmount  = 10.0
	injectSourceStrength = 5
)

type DensityReport struct {
	Pos        geom.Vec3i
	Region     aspects.ID
	Structures []aspects.ID
	DeadZone   bool

	HasBase bool
	Base    aspects.Density
	Final   aspects.Density
	Deltas  aspects.Density

	Corruption    float64
	OtherTotal    float64
	Corrupted     bool
	LoadedRegions int
}

// ReportDensity explains the resolved density at pos. It fails when pos has
// no region.
func (r *Runtime) ReportDensity(pos geom.Vec3i) (DensityReport, int) {
	loc := r.world.RegionAt(pos)
	rep := DensityReport{
		Pos:           pos,
		Region:        loc.Region,
		Structures:    loc.Structures,
		DeadZone:      loc.DeadZone,
		LoadedRegions: len(r.rules.Current().Densities),
	}
	if loc.Region.IsZero() {
		return rep, StatusFailure
	}
	rep.Base, rep.HasBase = r.resolver.Base(loc.Region)
	rep.Final = r.resolver.ResolveAt(loc)
	rep.Deltas, _ = r.deltas.Modifications(loc.Region)

	corruptionAspect := r.engine.Config().Aspect
	rep.Final.Range(func(id aspects.ID, v float64) bool {
		if id == corruptionAspect {
			rep.Corruption = v
		} else {
			rep.OtherTotal += v
		}
		return true
	})
	rep.Corrupted = rep.Corruption > rep.OtherTotal
	return rep, StatusSuccess
}

type RegionDensity struct {
	Region  aspects.ID
	Density aspects.Density
}

// ListDensities returns every loaded region's base density in id order.
func (r *Runtime) ListDensities() ([]RegionDensity, int) {
	table := r.rules.Current().Densities
	out := make([]RegionDensity, 0, len(table))
	for id, d := range table {
		out = append(out, RegionDensity{Region: id, Density: d.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return aspects.Less(out[i].Region, out[j].Region) })
	return out, StatusSuccess
}

// InjectCorruption adds amount of the corruption aspect to the region at pos
// and registers a corruption source there. Negative and non-finite amounts
// are rejected.
func (r *Runtime) InjectCorruption(pos geom.Vec3i, amount float64) int {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return StatusFailure
	}
	loc := r.world.RegionAt(pos)
	if loc.Region.IsZero() {
		return StatusFailure
	}
	aspect := r.engine.Config().Aspect
	r.deltas.AddModification(loc.Region, aspect, amount)
	r.engine.AddSource(loc.Region, pos, injectSourceStrength)

	r.log.Info("corruption injected",
		zap.Stringer("region", loc.Region),
		zap.Float64("amount", amount),
		zap.Ints("pos", posInts(pos)),
	)
	r.audit(AuditEntry{
		Tick:   r.tick.Load(),
		Actor:  "ADMIN",
		Action: "INJECT_CORRUPTION",
		Pos:    pos.ToArray(),
		Region: loc.Region.String(),
		Amount: amount,
	})
	return StatusSuccess
}
