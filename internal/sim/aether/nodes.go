package aether

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aetherlib.ai/internal/sim/geom"
	"aetherlib.ai/internal/sim/node"
)

// NodeInfo is a read-only copy of one live node.
type NodeInfo struct {
	ID    string
	Pos   geom.Vec3i
	State node.State
}

// SpawnNode creates and initializes a node of type typ at pos.
func (r *Runtime) SpawnNode(typ node.Type, pos geom.Vec3i) (NodeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawnLocked(typ, pos)
}

// SpawnNatural rolls the type the way natural world spawns do.
func (r *Runtime) SpawnNatural(pos geom.Vec3i) (NodeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawnLocked(node.RollType(r.rng), pos)
}

func (r *Runtime) spawnLocked(typ node.Type, pos geom.Vec3i) (NodeInfo, error) {
	id := uuid.NewString()
	n, err := node.New(id, typ, pos, r.cfg.Node)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("spawn: %w", err)
	}
	n.Initialize(r.rng, r.tiers())
	r.nodes[id] = n
	r.updateNodeGauges()

	r.log.Info("node spawned", zap.String("id", id), zap.Stringer("type", typ), zap.Ints("pos", posInts(pos)))
	r.audit(AuditEntry{Tick: r.tick.Load(), Actor: "SYSTEM", Action: "SPAWN_NODE", Pos: pos.ToArray(), Detail: typ.String()})
	return infoOf(n), nil
}

// RemoveNode discards a live node without a termination event.
func (r *Runtime) RemoveNode(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return false
	}
	delete(r.nodes, id)
	r.updateNodeGauges()
	return true
}

func (r *Runtime) Nodes() []NodeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodesLocked()
}

func (r *Runtime) Node(id string) (NodeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return infoOf(n), true
}

func infoOf(n *node.Node) NodeInfo {
	return NodeInfo{ID: n.ID(), Pos: n.Pos(), State: n.Snapshot()}
}
