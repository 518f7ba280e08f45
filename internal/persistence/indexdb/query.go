package indexdb

import (
	"context"
	"database/sql"
)

// Reader queries an index file, typically one a running server is writing.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Snapshots lists recorded snapshots, newest first.
func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,path,world_id,seed,rules_digest,regions,sources,nodes
		 FROM snapshots ORDER BY tick DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &s.Path, &s.WorldID, &s.Seed, &s.RulesDigest, &s.Regions, &s.Sources, &s.Nodes); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Events returns events at or after sinceTick in (tick, seq) order. An empty
// kind matches every kind.
func (r *Reader) Events(ctx context.Context, kind string, sinceTick uint64, limit int) ([]EventRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,seq,kind,COALESCE(node_id,''),COALESCE(node_type,''),x,y,z,COALESCE(reason,''),amount,count
		 FROM events WHERE (?1 = '' OR kind = ?1) AND tick >= ?2
		 ORDER BY tick, seq LIMIT ?3`, kind, int64(sinceTick), normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var tick int64
		if err := rows.Scan(&tick, &e.Seq, &e.Kind, &e.NodeID, &e.NodeType,
			&e.Pos[0], &e.Pos[1], &e.Pos[2], &e.Reason, &e.Amount, &e.Count); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RuleLoads lists rule generations, newest first.
func (r *Reader) RuleLoads(ctx context.Context, limit int) ([]RuleLoadRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version,digest,aspects,regions,structures,resonance,skipped,loaded_at
		 FROM rule_loads ORDER BY version DESC LIMIT ?`, normLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleLoadRow
	for rows.Next() {
		var rl RuleLoadRow
		var version int64
		if err := rows.Scan(&version, &rl.Digest, &rl.Aspects, &rl.Regions, &rl.Structures, &rl.Resonance, &rl.Skipped, &rl.LoadedAt); err != nil {
			return nil, err
		}
		rl.Version = uint64(version)
		out = append(out, rl)
	}
	return out, rows.Err()
}

func normLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
