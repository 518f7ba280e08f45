package node

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/deltas"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/resonance"
)

var (
	forest = aspects.MustID("minecraft:forest")
	terra  = aspects.MustID("terra")
	ignis  = aspects.MustID("ignis")
	aqua   = aspects.MustID("aqua")
)

type fakeEnv struct {
	region     aspects.ID
	store      *deltas.Store
	table      *resonance.Table
	explosions []geom.Vec3i
	power      float64
}

func newEnv() *fakeEnv {
	return &fakeEnv{region: forest, store: deltas.NewStore()}
}

func (e *fakeEnv) Region() (aspects.ID, bool) { return e.region, !e.region.IsZero() }
func (e *fakeEnv) AddModification(region, aspect aspects.ID, amount float64) {
	e.store.AddModification(region, aspect, amount)
}
func (e *fakeEnv) DrainAll(region aspects.ID, amount float64) { e.store.DrainAll(region, amount) }
func (e *fakeEnv) Resonance() *resonance.Table                { return e.table }
func (e *fakeEnv) Explode(pos geom.Vec3i, power float64) {
	e.explosions = append(e.explosions, pos)
	e.power = power
}

func mustNew(t *testing.T, typ Type, cfg Config) *Node {
	t.Helper()
	n, err := New("n1", typ, geom.Vec3i{X: 3, Y: 64, Z: -7}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestRegen_CarriesFractionAndCapsAtOriginal(t *testing.T) {
	n := mustNew(t, Normal, Config{})
	n.SetAspect(terra, 100, 50)
	env := newEnv()

	for range 9 {
		n.Tick(env)
	}
	if st, _ := n.Aspect(terra); st.Current != 50 {
		t.Fatalf("after 9 ticks current=%d want 50", st.Current)
	}
	n.Tick(env)
	if st, _ := n.Aspect(terra); st.Current != 51 {
		t.Fatalf("after 10 ticks current=%d want 51", st.Current)
	}

	for range 2000 {
		n.Tick(env)
		st, _ := n.Aspect(terra)
		if st.Current > st.Original {
			t.Fatalf("current %d exceeds original %d", st.Current, st.Original)
		}
	}
	if st, _ := n.Aspect(terra); st.Current != 100 {
		t.Fatalf("current=%d want 100", st.Current)
	}
	if len(n.Snapshot().Regen) != 0 {
		t.Fatalf("expected no carry once full")
	}
}

func TestSinister_RegensCorruptionFasterAndInjects(t *testing.T) {
	n := mustNew(t, Sinister, Config{})
	n.SetAspect(aspects.Vitium, 100, 50)
	n.SetAspect(terra, 100, 50)
	env := newEnv()

	for range 20 {
		n.Tick(env)
	}
	v, _ := n.Aspect(aspects.Vitium)
	tr, _ := n.Aspect(terra)
	if v.Current != 53 || tr.Current != 52 {
		t.Fatalf("vitium=%d terra=%d want 53/52", v.Current, tr.Current)
	}

	for range 180 {
		n.Tick(env)
	}
	if got := env.store.Modification(forest, aspects.Vitium); got != 20 {
		t.Fatalf("injected=%v want 20 after 200 ticks", got)
	}
}

func TestSinister_NoRegionNoInjection(t *testing.T) {
	n := mustNew(t, Sinister, Config{})
	n.SetAspect(terra, 100, 100)
	env := newEnv()
	env.region = aspects.ID{}
	for range 100 {
		n.Tick(env)
	}
	if regions := env.store.Regions(); len(regions) != 0 {
		t.Fatalf("unexpected regions %v", regions)
	}
}

func TestUnstable_ExplodesExactlyAtThreshold(t *testing.T) {
	n := mustNew(t, Unstable, Config{})
	n.SetAspect(ignis, 10, 10)
	n.SetAspect(aqua, 10, 10)
	env := newEnv()
	env.table = resonance.NewTable([]resonance.Rule{{A: ignis, B: aqua, Kind: resonance.Opposing, Factor: 1.5}})

	last := 0
	for tick := 1; tick < 400; tick++ {
		out := n.Tick(env)
		if !out.Alive {
			t.Fatalf("died early at tick %d", tick)
		}
		if n.Instability() < last {
			t.Fatalf("instability decreased at tick %d", tick)
		}
		last = n.Instability()
	}
	if last != 90 {
		t.Fatalf("instability=%d want 90", last)
	}
	out := n.Tick(env)
	if out.Alive || out.Reason != ReasonExploded {
		t.Fatalf("outcome=%+v want exploded", out)
	}
	if len(env.explosions) != 1 || env.power != 3 {
		t.Fatalf("explosions=%v power=%v", env.explosions, env.power)
	}
	if env.explosions[0] != n.Pos() {
		t.Fatalf("explosion at %v want %v", env.explosions[0], n.Pos())
	}

	for range 200 {
		n.Tick(env)
	}
	if len(env.explosions) != 1 {
		t.Fatalf("dead node exploded again")
	}
}

func TestUnstable_NoOpposingRulesStaysStable(t *testing.T) {
	n := mustNew(t, Unstable, Config{})
	n.SetAspect(ignis, 10, 10)
	env := newEnv()
	for range 1000 {
		if out := n.Tick(env); !out.Alive {
			t.Fatalf("unexpected termination %v", out.Reason)
		}
	}
	if n.Instability() != 0 {
		t.Fatalf("instability=%d", n.Instability())
	}
}

func tickN(n *Node, env Env, count int) Outcome {
	var out Outcome
	for range count {
		out = n.Tick(env)
	}
	return out
}

func TestHungry_FeedsBelowCapacity(t *testing.T) {
	n := mustNew(t, Hungry, Config{})
	n.SetAspect(aspects.Fames, 100, 50)
	n.SetAspect(terra, 100, 100)
	n.SetAspect(aqua, 100, 5)
	env := newEnv()

	tickN(n, env, 199)
	if st, _ := n.Aspect(terra); st.Current != 100 {
		t.Fatalf("fed before interval: terra=%d", st.Current)
	}
	tickN(n, env, 1)

	tr, _ := n.Aspect(terra)
	aq, _ := n.Aspect(aqua)
	f, _ := n.Aspect(aspects.Fames)
	if tr.Current != 90 || aq.Current != 4 {
		t.Fatalf("terra=%d aqua=%d want 90/4", tr.Current, aq.Current)
	}
	if f.Current != 61 || f.Original != 100 || n.Aggressive() {
		t.Fatalf("fames=%+v aggressive=%v", f, n.Aggressive())
	}
	if n.HungerCounter() != 0 {
		t.Fatalf("hunger counter=%d", n.HungerCounter())
	}
}

func TestHungry_AggressiveAtCapacity(t *testing.T) {
	n := mustNew(t, Hungry, Config{})
	n.SetAspect(aspects.Fames, 100, 100)
	n.SetAspect(terra, 100, 100)
	env := newEnv()

	tickN(n, env, 200)
	f, _ := n.Aspect(aspects.Fames)
	if !n.Aggressive() || f.Original != 110 || f.Current != 110 {
		t.Fatalf("fames=%+v aggressive=%v", f, n.Aggressive())
	}

	// Aggressive mode is sticky even when the hunger aspect is below capacity.
	n.SetAspect(aspects.Fames, 110, 50)
	tickN(n, env, 200)
	f, _ = n.Aspect(aspects.Fames)
	if f.Original != 119 || f.Current != 59 {
		t.Fatalf("fames=%+v want 119/59", f)
	}
}

func TestHungry_SelfConsumesWhenAlone(t *testing.T) {
	n := mustNew(t, Hungry, Config{})
	n.SetAspect(aspects.Fames, 100, 15)
	env := newEnv()
	env.store.AddModification(forest, terra, 20)

	out := tickN(n, env, 200)
	if !out.Alive {
		t.Fatalf("died after first drain")
	}
	if got := env.store.Modification(forest, terra); got != 15 {
		t.Fatalf("region terra=%v want 15", got)
	}
	if f, _ := n.Aspect(aspects.Fames); f.Current != 5 {
		t.Fatalf("fames=%d want 5", f.Current)
	}

	out = tickN(n, env, 200)
	if out.Alive || out.Reason != ReasonConsumed {
		t.Fatalf("outcome=%+v want consumed", out)
	}
	if got := env.store.Modification(forest, terra); got != 10 {
		t.Fatalf("region terra=%v want 10", got)
	}
}

func TestHungry_DoesNotRegenerate(t *testing.T) {
	n := mustNew(t, Hungry, Config{})
	n.SetAspect(aspects.Fames, 100, 50)
	n.SetAspect(terra, 100, 50)
	tickN(n, newEnv(), 150)
	if st, _ := n.Aspect(terra); st.Current != 50 {
		t.Fatalf("terra regenerated to %d", st.Current)
	}
}

func TestEmptyPolicy(t *testing.T) {
	keep := mustNew(t, Normal, Config{})
	if out := keep.Tick(newEnv()); !out.Alive {
		t.Fatalf("keep policy terminated empty node")
	}

	term := mustNew(t, Normal, Config{EmptyPolicy: TerminateEmpty})
	out := term.Tick(newEnv())
	if out.Alive || out.Reason != ReasonEmpty {
		t.Fatalf("outcome=%+v want empty", out)
	}
}

func TestInitialize_Rules(t *testing.T) {
	tiers := aspects.DefaultTiers()
	for seed := int64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		for _, typ := range Types() {
			n := mustNew(t, typ, Config{})
			n.Initialize(rng, tiers)
			recs := n.Aspects()
			for _, r := range recs {
				if r.Original < 50 || r.Original > 149 || r.Current != r.Original {
					t.Fatalf("seed %d %s: bad amounts %+v", seed, typ, r)
				}
			}
			switch typ {
			case Pure:
				if len(recs) != 1 {
					t.Fatalf("seed %d: pure has %d aspects", seed, len(recs))
				}
			case Hungry:
				if _, ok := n.Aspect(aspects.Fames); !ok {
					t.Fatalf("seed %d: hungry without fames", seed)
				}
				if len(recs) > 2 {
					t.Fatalf("seed %d: hungry has %d aspects", seed, len(recs))
				}
			default:
				if len(recs) < 1 || len(recs) > 4 {
					t.Fatalf("seed %d %s: %d aspects", seed, typ, len(recs))
				}
			}
		}
	}
}

func TestInitialize_PureFavorsPrimal(t *testing.T) {
	tiers := aspects.DefaultTiers()
	primal := map[aspects.ID]bool{}
	for _, id := range tiers.Get(aspects.TierPrimal) {
		primal[id] = true
	}
	rng := rand.New(rand.NewSource(7))
	hits := 0
	const trials = 2000
	for range trials {
		n := mustNew(t, Pure, Config{})
		n.Initialize(rng, tiers)
		if primal[n.Aspects()[0].ID] {
			hits++
		}
	}
	if hits < trials*90/100 {
		t.Fatalf("primal picks=%d of %d", hits, trials)
	}
}

func TestPickAspect_EmptyTiersFallBack(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var tiers aspects.TierTable
	if id := pickAspect(rng, tiers, 0.5); !id.IsZero() {
		t.Fatalf("got %v from empty table", id)
	}
	tiers[0] = []aspects.ID{terra}
	for range 50 {
		if id := pickAspect(rng, tiers, 0); id != terra {
			t.Fatalf("got %v want terra fallback", id)
		}
	}
}

func TestRollType_Distribution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	counts := map[Type]int{}
	const trials = 200000
	for range trials {
		counts[RollType(rng)]++
	}
	if counts[Sinister] != 0 {
		t.Fatalf("natural roll produced sinister")
	}
	frac := func(typ Type) float64 { return float64(counts[typ]) / trials }
	if f := frac(Hungry); f < 0.004 || f > 0.0072 {
		t.Fatalf("hungry fraction %v", f)
	}
	if f := frac(Pure); f < 0.008 || f > 0.012 {
		t.Fatalf("pure fraction %v", f)
	}
	if f := frac(Unstable); f < 0.18 || f > 0.215 {
		t.Fatalf("unstable fraction %v", f)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	n := mustNew(t, Hungry, Config{})
	n.SetAspect(aspects.Fames, 120, 80)
	n.SetAspect(terra, 90, 45)
	n.aggressive = true
	n.hunger = 37
	n.age = 1234
	n.regen[terra] = 0.25

	st := n.Snapshot()
	back, err := FromSnapshot(n.ID(), n.Pos(), Config{}, st)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	idCmp := cmp.Comparer(func(a, b aspects.ID) bool { return a == b })
	if diff := cmp.Diff(st, back.Snapshot(), idCmp); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if back.Pos() != n.Pos() || back.Type() != Hungry {
		t.Fatalf("identity lost: %v %v", back.Pos(), back.Type())
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, err := ParseType(typ.String())
		if err != nil || got != typ {
			t.Fatalf("ParseType(%q)=%v,%v", typ.String(), got, err)
		}
	}
	if _, err := ParseType("cursed"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New("x", Type(99), geom.Vec3i{}, Config{}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
