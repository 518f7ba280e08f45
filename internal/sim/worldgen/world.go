// Package worldgen is a deterministic reference world: hash-assigned regions,
// clustered structures and permanent dead-zone chunks, plus an in-memory
// record of the mutations and explosions applied to it.
package worldgen

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/geom"
)

const (
	deadZoneSalt  int64 = 0x5eed_dead
	structureSalt int64 = 0x57c0_0000

	defaultStructurePermille = 350
)

type Config struct {
	Seed       int64
	RegionSize int
	Regions    []aspects.ID
	Structures []aspects.ID

	StructureCell     int
	StructureRange    int
	StructurePermille uint64

	// DeadZoneChance is the per-chunk probability of a permanent dead zone.
	DeadZoneChance float64
}

type Explosion struct {
	Pos   geom.Vec3i
	Power float64
}

type World struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	corrupted  map[geom.Vec3i]int
	explosions []Explosion
}

func New(cfg Config, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RegionSize <= 0 {
		cfg.RegionSize = 1
	}
	if cfg.StructurePermille == 0 {
		cfg.StructurePermille = defaultStructurePermille
	}
	return &World{cfg: cfg, log: log, corrupted: map[geom.Vec3i]int{}}
}

func (w *World) Seed() int64 { return w.cfg.Seed }

// Region returns the region covering the column at (x,z).
func (w *World) Region(x, z int) (aspects.ID, bool) {
	if len(w.cfg.Regions) == 0 {
		return aspects.ID{}, false
	}
	rx := geom.FloorDiv(x, w.cfg.RegionSize)
	rz := geom.FloorDiv(z, w.cfg.RegionSize)
	h := Hash2(w.cfg.Seed, rx, rz)
	return w.cfg.Regions[h%uint64(len(w.cfg.Regions))], true
}

// StructuresAt lists every structure whose cluster covers (x,z), in
// configuration order.
func (w *World) StructuresAt(x, z int) []aspects.ID {
	var out []aspects.ID
	for i, sid := range w.cfg.Structures {
		seed := w.cfg.Seed ^ (structureSalt + int64(i)*0x9e37)
		if InCluster(seed, x, z, w.cfg.StructureCell, w.cfg.StructureRange, w.cfg.StructurePermille) {
			out = append(out, sid)
		}
	}
	return out
}

func (w *World) DeadZone(c geom.ChunkKey) bool {
	if w.cfg.DeadZoneChance <= 0 {
		return false
	}
	h := Hash2(w.cfg.Seed^deadZoneSalt, c.CX, c.CZ)
	return float64(h%1_000_000) < w.cfg.DeadZoneChance*1_000_000
}

func (w *World) RegionAt(pos geom.Vec3i) density.Location {
	region, _ := w.Region(pos.X, pos.Z)
	return density.Location{
		Region:     region,
		Structures: w.StructuresAt(pos.X, pos.Z),
		DeadZone:   w.DeadZone(pos.Chunk()),
	}
}

// Corrupt records one mutation at pos.
func (w *World) Corrupt(ctx context.Context, pos geom.Vec3i) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.corrupted[pos]++
	w.mu.Unlock()
	w.log.Debug("cell corrupted", zap.Ints("pos", posSlice(pos)))
	return nil
}

func (w *World) Explode(ctx context.Context, pos geom.Vec3i, power float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	w.explosions = append(w.explosions, Explosion{Pos: pos, Power: power})
	w.mu.Unlock()
	w.log.Info("explosion", zap.Ints("pos", posSlice(pos)), zap.Float64("power", power))
	return nil
}

// Corrupted returns mutated cells in coordinate order.
func (w *World) Corrupted() []geom.Vec3i {
	w.mu.Lock()
	out := make([]geom.Vec3i, 0, len(w.corrupted))
	for p := range w.corrupted {
		out = append(out, p)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

func (w *World) Explosions() []Explosion {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Explosion(nil), w.explosions...)
}

func posSlice(p geom.Vec3i) []int {
	a := p.ToArray()
	return a[:]
}
