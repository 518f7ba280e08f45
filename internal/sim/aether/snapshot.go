package aether

import (
	"fmt"
	"sort"

	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/corruption"
	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/node"
)

// ExportSnapshot captures deltas, corruption sources and nodes between ticks.
// Every list is in a deterministic order.
func (r *Runtime) ExportSnapshot() snapshot.SnapshotV1 {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: r.cfg.WorldID,
			Tick:    r.tick.Load(),
		},
		Seed:        r.cfg.Seed,
		TickRate:    r.cfg.TickRateHz,
		RulesDigest: r.rules.Current().Digest,
	}

	for _, region := range r.deltas.Regions() {
		mods, ok := r.deltas.Modifications(region)
		if !ok {
			continue
		}
		rd := snapshot.RegionDeltasV1{Region: region.String()}
		for _, id := range mods.IDs() {
			rd.Aspects = append(rd.Aspects, snapshot.AspectAmountV1{Aspect: id.String(), Amount: mods.Get(id)})
		}
		snap.Deltas = append(snap.Deltas, rd)
	}

	for _, region := range r.engine.SourceRegions() {
		for _, s := range r.engine.Sources(region) {
			snap.Sources = append(snap.Sources, snapshot.CorruptionSourceV1{
				Region:   region.String(),
				Pos:      s.Pos.ToArray(),
				Strength: s.Strength,
			})
		}
	}

	for _, info := range r.nodesLocked() {
		snap.Nodes = append(snap.Nodes, nodeRecord(info))
	}
	return snap
}

func (r *Runtime) nodesLocked() []NodeInfo {
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]NodeInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, infoOf(r.nodes[id]))
	}
	return out
}

func nodeRecord(info NodeInfo) snapshot.NodeV1 {
	st := info.State
	rec := snapshot.NodeV1{
		ID:          info.ID,
		Type:        st.Type.String(),
		Pos:         info.Pos.ToArray(),
		Instability: st.Instability,
		Hunger:      st.Hunger,
		Age:         st.Age,
		Aggressive:  st.Aggressive,
	}
	for _, a := range st.Aspects {
		rec.Aspects = append(rec.Aspects, snapshot.NodeAspectV1{ID: a.ID.String(), Original: a.Original, Current: a.Current})
	}
	for _, c := range st.Regen {
		rec.Regen = append(rec.Regen, snapshot.RegenCarryV1{ID: c.ID.String(), Carry: c.Carry})
	}
	return rec
}

// ImportSnapshot replaces deltas, sources and nodes with the snapshot's
// contents. Nothing is changed when any record is invalid.
func (r *Runtime) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("import: unsupported snapshot version %d", snap.Header.Version)
	}

	deltasByRegion := make(map[aspects.ID]aspects.Density, len(snap.Deltas))
	for _, rd := range snap.Deltas {
		region, err := aspects.ParseID(rd.Region)
		if err != nil {
			return fmt.Errorf("import deltas: %w", err)
		}
		v := aspects.NewVector[float64](len(rd.Aspects))
		for _, a := range rd.Aspects {
			id, err := aspects.ParseID(a.Aspect)
			if err != nil {
				return fmt.Errorf("import deltas %s: %w", rd.Region, err)
			}
			v.Put(id, a.Amount)
		}
		deltasByRegion[region] = v
	}

	sources := map[aspects.ID][]corruption.Source{}
	for _, s := range snap.Sources {
		region, err := aspects.ParseID(s.Region)
		if err != nil {
			return fmt.Errorf("import sources: %w", err)
		}
		sources[region] = append(sources[region], corruption.Source{Pos: geom.FromArray(s.Pos), Strength: s.Strength})
	}

	nodes := make(map[string]*node.Node, len(snap.Nodes))
	for _, rec := range snap.Nodes {
		if _, dup := nodes[rec.ID]; dup {
			return fmt.Errorf("import nodes: duplicate node id %s", rec.ID)
		}
		n, err := nodeFromRecord(rec, r.cfg.Node)
		if err != nil {
			return fmt.Errorf("import nodes: %w", err)
		}
		nodes[rec.ID] = n
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas.Reset()
	for region, v := range deltasByRegion {
		r.deltas.Restore(region, v)
	}
	r.engine.RestoreSources(sources)
	r.nodes = nodes
	r.tick.Store(snap.Header.Tick)
	r.updateNodeGauges()
	r.audit(AuditEntry{Tick: snap.Header.Tick, Actor: "SYSTEM", Action: "IMPORT_SNAPSHOT", Detail: snap.RulesDigest})
	return nil
}

func nodeFromRecord(rec snapshot.NodeV1, cfg node.Config) (*node.Node, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("node with empty id")
	}
	typ, err := node.ParseType(rec.Type)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", rec.ID, err)
	}
	st := node.State{
		Type:        typ,
		Instability: rec.Instability,
		Hunger:      rec.Hunger,
		Age:         rec.Age,
		Aggressive:  rec.Aggressive,
	}
	for _, a := range rec.Aspects {
		id, err := aspects.ParseID(a.ID)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", rec.ID, err)
		}
		st.Aspects = append(st.Aspects, node.AspectRecord{ID: id, Original: a.Original, Current: a.Current})
	}
	for _, c := range rec.Regen {
		id, err := aspects.ParseID(c.ID)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", rec.ID, err)
		}
		st.Regen = append(st.Regen, node.RegenCarry{ID: id, Carry: c.Carry})
	}
	return node.FromSnapshot(rec.ID, geom.FromArray(rec.Pos), cfg, st)
}
