// Package corruption runs the conversion process that lets a dominant
// corruption aspect eat the other dynamic deltas of a region.
package corruption

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/deltas"
	"aetherlib.ai/internal/sim/geom"
)

type Source struct {
	Pos      geom.Vec3i
	Strength int
}

// Mutator applies a bounded environmental mutation at a position.
type Mutator interface {
	Corrupt(ctx context.Context, pos geom.Vec3i) error
}

type Config struct {
	Aspect         aspects.ID
	ConversionRate float64
	MutationChance float64
	// Mutation targets are drawn from [-RadiusXZ, RadiusXZ) horizontally and
	// [-RadiusY, RadiusY) vertically around the source.
	RadiusXZ int
	RadiusY  int
}

func DefaultConfig() Config {
	return Config{
		Aspect:         aspects.Vitium,
		ConversionRate: 0.10,
		MutationChance: 0.10,
		RadiusXZ:       16,
		RadiusY:        4,
	}
}

// Report summarizes one engine tick.
type Report struct {
	RegionsConverted   int
	AmountConverted    float64
	MutationsAttempted int
	MutationsFailed    int
}

type Engine struct {
	cfg     Config
	store   *deltas.Store
	mutator Mutator
	log     *zap.Logger

	mu      sync.Mutex
	sources map[aspects.ID][]Source
	rng     *rand.Rand
}

func NewEngine(cfg Config, store *deltas.Store, mutator Mutator, rng *rand.Rand, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Aspect.IsZero() {
		cfg.Aspect = def.Aspect
	}
	if cfg.ConversionRate <= 0 {
		cfg.ConversionRate = def.ConversionRate
	}
	if cfg.MutationChance < 0 {
		cfg.MutationChance = 0
	}
	if cfg.RadiusXZ <= 0 {
		cfg.RadiusXZ = def.RadiusXZ
	}
	if cfg.RadiusY <= 0 {
		cfg.RadiusY = def.RadiusY
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		mutator: mutator,
		log:     logger,
		sources: map[aspects.ID][]Source{},
		rng:     rng,
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) AddSource(region aspects.ID, pos geom.Vec3i, strength int) {
	e.mu.Lock()
	e.sources[region] = append(e.sources[region], Source{Pos: pos, Strength: strength})
	e.mu.Unlock()
}

func (e *Engine) Sources(region aspects.ID) []Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Source(nil), e.sources[region]...)
}

func (e *Engine) SourceRegions() []aspects.ID {
	e.mu.Lock()
	out := make([]aspects.ID, 0, len(e.sources))
	for id, list := range e.sources {
		if len(list) > 0 {
			out = append(out, id)
		}
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return aspects.Less(out[i], out[j]) })
	return out
}

func (e *Engine) ClearSources() {
	e.mu.Lock()
	e.sources = map[aspects.ID][]Source{}
	e.mu.Unlock()
}

// RestoreSources replaces every source list (snapshot import).
func (e *Engine) RestoreSources(all map[aspects.ID][]Source) {
	e.mu.Lock()
	e.sources = make(map[aspects.ID][]Source, len(all))
	for id, list := range all {
		e.sources[id] = append([]Source(nil), list...)
	}
	e.mu.Unlock()
}

// Tick runs one conversion step for every region with registered sources.
// It must not be called concurrently with itself.
func (e *Engine) Tick(ctx context.Context) Report {
	var rep Report
	for _, region := range e.SourceRegions() {
		e.tickRegion(ctx, region, &rep)
	}
	return rep
}

func (e *Engine) tickRegion(ctx context.Context, region aspects.ID, rep *Report) {
	var (
		converted  float64
		otherTotal float64
		dominant   bool
	)
	ok := e.store.Update(region, func(m map[aspects.ID]float64) {
		corr, present := m[e.cfg.Aspect]
		if !present || corr <= 0 {
			return
		}
		for id, v := range m {
			if id != e.cfg.Aspect {
				otherTotal += v
			}
		}
		if corr <= otherTotal {
			return
		}
		dominant = true
		for id, v := range m {
			if id == e.cfg.Aspect {
				continue
			}
			amt := v * e.cfg.ConversionRate
			m[id] = v - amt
			converted += amt
		}
		m[e.cfg.Aspect] = corr + converted
	})
	if !ok || !dominant {
		return
	}
	rep.RegionsConverted++
	rep.AmountConverted += converted

	if otherTotal > 0 || e.mutator == nil {
		return
	}
	for _, src := range e.Sources(region) {
		if e.rng.Float64() >= e.cfg.MutationChance {
			continue
		}
		target := geom.Vec3i{
			X: src.Pos.X + e.rng.Intn(2*e.cfg.RadiusXZ) - e.cfg.RadiusXZ,
			Y: src.Pos.Y + e.rng.Intn(2*e.cfg.RadiusY) - e.cfg.RadiusY,
			Z: src.Pos.Z + e.rng.Intn(2*e.cfg.RadiusXZ) - e.cfg.RadiusXZ,
		}
		rep.MutationsAttempted++
		if err := e.mutator.Corrupt(ctx, target); err != nil {
			rep.MutationsFailed++
			e.log.Debug("corruption mutation failed",
				zap.Stringer("region", region),
				zap.Int("x", target.X), zap.Int("y", target.Y), zap.Int("z", target.Z),
				zap.Error(err))
		}
	}
}
