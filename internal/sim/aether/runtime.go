// Package aether is the regional runtime. It owns the rule snapshots, the
// dynamic delta store, the corruption engine and the live nodes, and drives
// them from a single global tick.
package aether

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/catalogs"
	"aetherlib.ai/internal/sim/corruption"
	"aetherlib.ai/internal/sim/deltas"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/node"
	"aetherlib.ai/internal/sim/resonance"
)

// World answers spatial queries and applies side effects.
type World interface {
	RegionAt(pos geom.Vec3i) density.Location
	Corrupt(ctx context.Context, pos geom.Vec3i) error
	Explode(ctx context.Context, pos geom.Vec3i, power float64) error
}

type Config struct {
	WorldID            string
	Seed               int64
	TickRateHz         int
	SnapshotEveryTicks int64
	Workers            int

	Density    density.Options
	Corruption corruption.Config
	Node       node.Config
}

type Runtime struct {
	cfg     Config
	log     *zap.Logger
	world   World
	metrics *Metrics

	rules     *density.RuleStore
	resonance *resonance.TableStore
	registry  atomic.Pointer[aspects.Registry]
	deltas    *deltas.Store
	resolver  *density.Resolver
	engine    *corruption.Engine

	// mu serializes ticks against node and snapshot access.
	mu    sync.Mutex
	nodes map[string]*node.Node
	rng   *rand.Rand
	tick  atomic.Uint64

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
	onReload     func(version uint64, c *catalogs.Catalogs)

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg Config, world World, metrics *Metrics, log *zap.Logger) (*Runtime, error) {
	if world == nil {
		return nil, fmt.Errorf("aether: nil world")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.WorldID == "" {
		cfg.WorldID = "overworld"
	}

	store := deltas.NewStore()
	rules := density.NewRuleStore()
	r := &Runtime{
		cfg:       cfg,
		log:       log,
		world:     world,
		metrics:   metrics,
		rules:     rules,
		resonance: resonance.NewTableStore(),
		deltas:    store,
		resolver:  density.NewResolver(rules, store, cfg.Density),
		nodes:     map[string]*node.Node{},
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		stop:      make(chan struct{}),
	}
	r.engine = corruption.NewEngine(cfg.Corruption, store, world,
		rand.New(rand.NewSource(cfg.Seed+1)), log.Named("corruption"))
	r.registry.Store(aspects.NewRegistry(nil))
	return r, nil
}

func (r *Runtime) SetTickLogger(l TickLogger)                    { r.tickLogger = l }
func (r *Runtime) SetAuditLogger(l AuditLogger)                  { r.auditLogger = l }
func (r *Runtime) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { r.snapshotSink = ch }

// SetReloadHook registers fn to run after each published rule generation.
func (r *Runtime) SetReloadHook(fn func(version uint64, c *catalogs.Catalogs)) { r.onReload = fn }

func (r *Runtime) ID() string                           { return r.cfg.WorldID }
func (r *Runtime) CurrentTick() uint64                  { return r.tick.Load() }
func (r *Runtime) TickRateHz() int                      { return r.cfg.TickRateHz }
func (r *Runtime) Deltas() *deltas.Store                { return r.deltas }
func (r *Runtime) Rules() *density.Rules                { return r.rules.Current() }
func (r *Runtime) Registry() *aspects.Registry          { return r.registry.Load() }
func (r *Runtime) ResonanceTable() *resonance.Table     { return r.resonance.Current() }
func (r *Runtime) CorruptionEngine() *corruption.Engine { return r.engine }

// Reload publishes a new rule generation. Dynamic deltas, sources and nodes
// are untouched.
func (r *Runtime) Reload(c *catalogs.Catalogs) uint64 {
	version := r.rules.Publish(c.Rules())
	r.resonance.Publish(c.ResonanceTable())
	r.registry.Store(c.Registry())

	r.metrics.Reloads.Inc()
	r.metrics.SkippedEntries.Add(float64(len(c.Skipped)))
	r.log.Info("rules published",
		zap.Uint64("version", version),
		zap.String("digest", c.Digest),
		zap.Int("skipped", len(c.Skipped)),
	)
	r.audit(AuditEntry{Tick: r.tick.Load(), Actor: "SYSTEM", Action: "RELOAD", Detail: c.Digest})
	if r.onReload != nil {
		r.onReload(version, c)
	}
	return version
}

// ReloadFrom loads catalogs from dir and publishes them.
func (r *Runtime) ReloadFrom(dir string) error {
	c, err := catalogs.Load(dir, r.log.Named("catalogs"))
	if err != nil {
		return fmt.Errorf("reload %s: %w", dir, err)
	}
	r.Reload(c)
	return nil
}

// tiers prefers the loaded registry's tiers when every tier is populated.
func (r *Runtime) tiers() aspects.TierTable {
	if t := r.Registry().Tiers(); t.Complete() {
		return t
	}
	return aspects.DefaultTiers()
}

// DensityAt resolves the aspect density at pos.
func (r *Runtime) DensityAt(pos geom.Vec3i) aspects.Density {
	return r.resolver.ResolveAt(r.world.RegionAt(pos))
}

func (r *Runtime) audit(e AuditEntry) {
	if r.auditLogger == nil {
		return
	}
	if err := r.auditLogger.WriteAudit(e); err != nil {
		r.log.Warn("audit write failed", zap.Error(err))
	}
}
