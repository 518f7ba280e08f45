package worldgen

import (
	"context"
	"testing"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/geom"
)

var (
	plains  = aspects.MustID("minecraft:plains")
	forest  = aspects.MustID("minecraft:forest")
	village = aspects.MustID("minecraft:village")
)

func testWorld(deadZone float64) *World {
	return New(Config{
		Seed:           42,
		RegionSize:     64,
		Regions:        []aspects.ID{plains, forest},
		Structures:     []aspects.ID{village},
		StructureCell:  128,
		StructureRange: 24,
		DeadZoneChance: deadZone,
	}, nil)
}

func TestRegionAt_DeterministicPerCell(t *testing.T) {
	a := testWorld(0)
	b := testWorld(0)
	seen := map[aspects.ID]bool{}
	for x := -512; x < 512; x += 64 {
		for z := -512; z < 512; z += 64 {
			ra := a.RegionAt(geom.Vec3i{X: x, Z: z})
			rb := b.RegionAt(geom.Vec3i{X: x + 63, Y: 90, Z: z + 63})
			if ra.Region != rb.Region {
				t.Fatalf("cell (%d,%d) not uniform: %v vs %v", x, z, ra.Region, rb.Region)
			}
			seen[ra.Region] = true
		}
	}
	if !seen[plains] || !seen[forest] {
		t.Fatalf("expected both regions, saw %v", seen)
	}
}

func TestRegionAt_NoRegions(t *testing.T) {
	w := New(Config{Seed: 1}, nil)
	if loc := w.RegionAt(geom.Vec3i{}); !loc.Region.IsZero() {
		t.Fatalf("region=%v want none", loc.Region)
	}
}

func TestStructures_ClusterCoverage(t *testing.T) {
	w := testWorld(0)
	hits := 0
	for x := -1024; x < 1024; x += 8 {
		for z := -1024; z < 1024; z += 8 {
			if len(w.StructuresAt(x, z)) > 0 {
				hits++
			}
		}
	}
	if hits == 0 {
		t.Fatalf("no structure clusters found")
	}
	if hits == 256*256 {
		t.Fatalf("structures cover everything")
	}
}

func TestDeadZone_Rate(t *testing.T) {
	w := testWorld(0.001)
	dead := 0
	for cx := -500; cx < 500; cx++ {
		for cz := -100; cz < 100; cz++ {
			if w.DeadZone(geom.ChunkKey{CX: cx, CZ: cz}) {
				dead++
			}
		}
	}
	// 200k chunks at 0.1%
	if dead < 100 || dead > 320 {
		t.Fatalf("dead zones=%d", dead)
	}
	if testWorld(0).DeadZone(geom.ChunkKey{}) {
		t.Fatalf("dead zone with zero chance")
	}
}

func TestCorruptAndExplode(t *testing.T) {
	w := testWorld(0)
	ctx := context.Background()
	_ = w.Corrupt(ctx, geom.Vec3i{X: 2})
	_ = w.Corrupt(ctx, geom.Vec3i{X: 1})
	_ = w.Corrupt(ctx, geom.Vec3i{X: 2})
	got := w.Corrupted()
	if len(got) != 2 || got[0].X != 1 || got[1].X != 2 {
		t.Fatalf("corrupted=%v", got)
	}
	if err := w.Explode(ctx, geom.Vec3i{Y: 5}, 3); err != nil {
		t.Fatalf("Explode: %v", err)
	}
	if ex := w.Explosions(); len(ex) != 1 || ex[0].Power != 3 {
		t.Fatalf("explosions=%v", ex)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := w.Corrupt(cancelled, geom.Vec3i{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestInCluster_Disabled(t *testing.T) {
	if InCluster(1, 0, 0, 0, 10, 500) || InCluster(1, 0, 0, 10, 0, 500) || InCluster(1, 0, 0, 10, 10, 0) {
		t.Fatalf("degenerate cluster params matched")
	}
}
