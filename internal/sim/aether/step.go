package aether

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/corruption"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/node"
	"aetherlib.ai/internal/sim/resonance"
)

type Termination struct {
	NodeID string
	Type   node.Type
	Pos    geom.Vec3i
	Reason node.Reason
}

type StepReport struct {
	Tick       uint64
	Corruption corruption.Report
	Terminated []Termination
	Alive      int
}

// Run drives Step at the configured tick rate until ctx is done or Stop is
// called.
func (r *Runtime) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(r.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case <-ticker.C:
			rep, err := r.Step(ctx)
			if err != nil {
				r.log.Warn("tick failed", zap.Uint64("tick", rep.Tick), zap.Error(err))
				continue
			}
			r.maybeSnapshot(rep.Tick)
		}
	}
}

func (r *Runtime) Stop() { r.stopOnce.Do(func() { close(r.stop) }) }

func (r *Runtime) maybeSnapshot(tick uint64) {
	every := r.cfg.SnapshotEveryTicks
	if r.snapshotSink == nil || every <= 0 || tick%uint64(every) != 0 {
		return
	}
	snap := r.ExportSnapshot()
	select {
	case r.snapshotSink <- snap:
	default:
		r.log.Warn("snapshot sink full, dropping", zap.Uint64("tick", tick))
	}
}

// Step advances every region and node by one global tick. Corruption runs
// first; nodes then tick in parallel on the worker pool.
func (r *Runtime) Step(ctx context.Context) (StepReport, error) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	tick := r.tick.Add(1)
	rep := StepReport{Tick: tick}
	rep.Corruption = r.engine.Tick(ctx)

	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := r.resonance.Current()
	outcomes := make([]node.Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, id := range ids {
		n := r.nodes[id]
		g.Go(func() error {
			outcomes[i] = n.Tick(&nodeEnv{rt: r, ctx: gctx, pos: n.Pos(), table: table})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	var events []Event
	for i, id := range ids {
		out := outcomes[i]
		if out.Alive {
			continue
		}
		n := r.nodes[id]
		delete(r.nodes, id)
		term := Termination{NodeID: id, Type: n.Type(), Pos: n.Pos(), Reason: out.Reason}
		rep.Terminated = append(rep.Terminated, term)
		r.metrics.Terminations.WithLabelValues(out.Reason.String()).Inc()
		if out.Reason == node.ReasonExploded {
			r.metrics.Explosions.Inc()
			events = append(events, Event{Kind: EventExplosion, NodeID: id, NodeType: n.Type().String(), Pos: n.Pos().ToArray()})
		}
		events = append(events, Event{Kind: EventNodeTerminated, NodeID: id, NodeType: n.Type().String(), Pos: n.Pos().ToArray(), Reason: out.Reason.String()})
		r.log.Debug("node terminated", zap.String("id", id), zap.Stringer("reason", out.Reason))
	}
	rep.Alive = len(r.nodes)

	if c := rep.Corruption; c.RegionsConverted > 0 {
		r.metrics.Converted.Add(c.AmountConverted)
		events = append(events, Event{Kind: EventConversion, Amount: c.AmountConverted, Count: c.RegionsConverted})
	}
	if c := rep.Corruption; c.MutationsAttempted > 0 {
		r.metrics.Mutations.WithLabelValues("ok").Add(float64(c.MutationsAttempted - c.MutationsFailed))
		r.metrics.Mutations.WithLabelValues("failed").Add(float64(c.MutationsFailed))
		events = append(events, Event{Kind: EventMutations, Count: c.MutationsAttempted})
	}

	r.metrics.Ticks.Inc()
	r.updateNodeGauges()
	r.metrics.TickDuration.Observe(time.Since(start).Seconds())

	if r.tickLogger != nil {
		entry := TickLogEntry{Tick: tick, RulesVersion: r.rules.Current().Version, NodesAlive: rep.Alive, Events: events}
		if err := r.tickLogger.WriteTick(entry); err != nil {
			r.log.Warn("tick log write failed", zap.Uint64("tick", tick), zap.Error(err))
		}
	}
	return rep, nil
}

// updateNodeGauges must be called with mu held.
func (r *Runtime) updateNodeGauges() {
	counts := map[node.Type]int{}
	for _, n := range r.nodes {
		counts[n.Type()]++
	}
	for _, t := range node.Types() {
		r.metrics.NodesAlive.WithLabelValues(t.String()).Set(float64(counts[t]))
	}
}

// nodeEnv is one node's view of the runtime for a single tick.
type nodeEnv struct {
	rt    *Runtime
	ctx   context.Context
	pos   geom.Vec3i
	table *resonance.Table
}

func (e *nodeEnv) Region() (aspects.ID, bool) {
	loc := e.rt.world.RegionAt(e.pos)
	return loc.Region, !loc.Region.IsZero()
}

func (e *nodeEnv) AddModification(region, aspect aspects.ID, amount float64) {
	e.rt.deltas.AddModification(region, aspect, amount)
}

func (e *nodeEnv) DrainAll(region aspects.ID, amount float64) {
	e.rt.deltas.DrainAll(region, amount)
}

func (e *nodeEnv) Resonance() *resonance.Table { return e.table }

func (e *nodeEnv) Explode(pos geom.Vec3i, power float64) {
	if err := e.rt.world.Explode(e.ctx, pos, power); err != nil {
		e.rt.log.Warn("explosion failed", zap.Ints("pos", posInts(pos)), zap.Error(err))
	}
}

func posInts(p geom.Vec3i) []int {
	a := p.ToArray()
	return a[:]
}
