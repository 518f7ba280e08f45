package indexdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/catalogs"
	"aetherlib.ai/internal/sim/resonance"
)

func TestSQLiteIndex_WritesAndQueries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(dbPath, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_ = idx.WriteTick(aether.TickLogEntry{Tick: 1, RulesVersion: 1, NodesAlive: 2})
	_ = idx.WriteTick(aether.TickLogEntry{Tick: 2, RulesVersion: 1, NodesAlive: 1, Events: []aether.Event{
		{Kind: aether.EventExplosion, NodeID: "n1", NodeType: "unstable", Pos: [3]int{1, 64, -3}},
		{Kind: aether.EventNodeTerminated, NodeID: "n1", NodeType: "unstable", Pos: [3]int{1, 64, -3}, Reason: "exploded"},
	}})
	_ = idx.WriteTick(aether.TickLogEntry{Tick: 3, RulesVersion: 1, NodesAlive: 1, Events: []aether.Event{
		{Kind: aether.EventConversion, Amount: 1.5, Count: 1},
	}})
	_ = idx.WriteAudit(aether.AuditEntry{Tick: 3, Actor: "ADMIN", Action: "INJECT_CORRUPTION", Region: "minecraft:plains", Amount: 10})
	_ = idx.WriteAudit(aether.AuditEntry{Tick: 3, Actor: "ADMIN", Action: "INJECT_CORRUPTION", Region: "minecraft:plains", Amount: 10})

	idx.RecordSnapshot("/tmp/3.snap.zst", snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 3},
		Seed:        42,
		RulesDigest: "abc",
		Nodes:       []snapshot.NodeV1{{ID: "n2"}},
	})
	idx.RecordRuleLoad(1, &catalogs.Catalogs{
		Digest:    "abc",
		Resonance: catalogs.ResonanceCatalog{Rules: []resonance.Rule{{}}},
		Skipped:   []catalogs.EntryError{{File: "bad.json"}},
	})

	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := idx.WriteTick(aether.TickLogEntry{Tick: 9}); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	r, err := OpenReader(dbPath)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	all, err := r.Events(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("events=%+v", all)
	}
	if all[0].Kind != aether.EventExplosion || all[0].Pos != [3]int{1, 64, -3} || all[1].Reason != "exploded" {
		t.Fatalf("unexpected event rows: %+v", all[:2])
	}

	conv, err := r.Events(ctx, aether.EventConversion, 3, 10)
	if err != nil {
		t.Fatalf("events by kind: %v", err)
	}
	if len(conv) != 1 || conv[0].Amount != 1.5 || conv[0].Count != 1 {
		t.Fatalf("conversion rows=%+v", conv)
	}

	snaps, err := r.Snapshots(ctx, 5)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Tick != 3 || snaps[0].Nodes != 1 || snaps[0].WorldID != "w1" {
		t.Fatalf("snapshots=%+v", snaps)
	}

	loads, err := r.RuleLoads(ctx, 5)
	if err != nil {
		t.Fatalf("rule loads: %v", err)
	}
	if len(loads) != 1 || loads[0].Resonance != 1 || loads[0].Skipped != 1 || loads[0].Digest != "abc" {
		t.Fatalf("rule loads=%+v", loads)
	}

	var audits int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM audits WHERE tick = 3`).Scan(&audits); err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 2 {
		t.Fatalf("audits=%d want 2 (distinct seq)", audits)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSQLiteIndex_CloseDuringWrites(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				_ = idx.WriteTick(aether.TickLogEntry{Tick: uint64(w*1000 + i)})
				_ = idx.WriteAudit(aether.AuditEntry{Tick: uint64(i), Action: "INJECT_CORRUPTION"})
			}
		}(w)
	}
	close(start)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	// Writes after Close are dropped silently.
	if err := idx.WriteTick(aether.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
