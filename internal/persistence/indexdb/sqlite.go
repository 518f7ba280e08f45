package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"aetherlib.ai/internal/persistence/snapshot"
	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/catalogs"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable secondary index over tick events, audits,
// snapshots and rule loads. The JSONL logs stay the source of truth: writes
// are queued to a single writer goroutine and dropped when it falls behind.
type SQLiteIndex struct {
	db  *sql.DB
	log *zap.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders enqueue sends against Close closing ch.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqRuleLoad
)

type req struct {
	kind reqKind

	tick     aether.TickLogEntry
	audit    aether.AuditEntry
	snapshot SnapshotRow
	ruleLoad RuleLoadRow
}

type SnapshotRow struct {
	Tick        uint64
	Path        string
	WorldID     string
	Seed        int64
	RulesDigest string
	Regions     int
	Sources     int
	Nodes       int
}

type RuleLoadRow struct {
	Version    uint64
	Digest     string
	Aspects    int
	Regions    int
	Structures int
	Resonance  int
	Skipped    int
	LoadedAt   string
}

type EventRow struct {
	Tick     uint64
	Seq      int
	Kind     string
	NodeID   string
	NodeType string
	Pos      [3]int
	Reason   string
	Amount   float64
	Count    int
}

func OpenSQLite(path string, log *zap.Logger) (*SQLiteIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: log.Named("indexdb"),
		ch:  make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			rules_version INTEGER NOT NULL,
			nodes_alive INTEGER NOT NULL,
			events INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			node_id TEXT,
			node_type TEXT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			reason TEXT,
			amount REAL NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind_tick ON events(kind, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_node ON events(node_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			region TEXT,
			amount REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			rules_digest TEXT NOT NULL,
			regions INTEGER NOT NULL,
			sources INTEGER NOT NULL,
			nodes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rule_loads (
			version INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			aspects INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			structures INTEGER NOT NULL,
			resonance INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			loaded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes, commits, and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many writes were discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		if s.dropped.Add(1) == 1 {
			s.log.Warn("index queue full; dropping writes")
		}
	}
}

func (s *SQLiteIndex) WriteTick(entry aether.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry aether.AuditEntry) error {
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	s.enqueue(req{kind: reqSnapshot, snapshot: SnapshotRow{
		Tick:        snap.Header.Tick,
		Path:        path,
		WorldID:     snap.Header.WorldID,
		Seed:        snap.Seed,
		RulesDigest: snap.RulesDigest,
		Regions:     len(snap.Deltas),
		Sources:     len(snap.Sources),
		Nodes:       len(snap.Nodes),
	}})
}

func (s *SQLiteIndex) RecordRuleLoad(version uint64, c *catalogs.Catalogs) {
	if c == nil {
		return
	}
	s.enqueue(req{kind: reqRuleLoad, ruleLoad: RuleLoadRow{
		Version:    version,
		Digest:     c.Digest,
		Aspects:    len(c.Aspects.Entries),
		Regions:    len(c.Densities.Regions),
		Structures: len(c.Densities.Structures),
		Resonance:  len(c.Resonance.Rules),
		Skipped:    len(c.Skipped),
		LoadedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,rules_version,nodes_alive,events) VALUES(?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,kind,node_id,node_type,x,y,z,reason,amount,count) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,z,region,amount,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,seed,rules_digest,regions,sources,nodes) VALUES(?,?,?,?,?,?,?,?)`)
	insertRuleLoad, _ := s.db.Prepare(`INSERT OR REPLACE INTO rule_loads(version,digest,aspects,regions,structures,resonance,skipped,loaded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertAudit, insertSnapshot, insertRuleLoad} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.Warn("begin tx", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warn("commit", zap.Error(err))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.Warn("index write failed; rolling back batch", zap.Error(err))
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if !exec(insertTick, int64(e.Tick), int64(e.RulesVersion), e.NodesAlive, len(e.Events)) {
				continue
			}
			for i, ev := range e.Events {
				if !exec(insertEvent, int64(e.Tick), i, ev.Kind, ev.NodeID, ev.NodeType,
					ev.Pos[0], ev.Pos[1], ev.Pos[2], ev.Reason, ev.Amount, ev.Count) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action,
				a.Pos[0], a.Pos[1], a.Pos[2], a.Region, a.Amount, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.WorldID, sn.Seed, sn.RulesDigest,
				sn.Regions, sn.Sources, sn.Nodes)

		case reqRuleLoad:
			rl := r.ruleLoad
			exec(insertRuleLoad, int64(rl.Version), rl.Digest, rl.Aspects, rl.Regions,
				rl.Structures, rl.Resonance, rl.Skipped, rl.LoadedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
