package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"aetherlib.ai/internal/persistence/snapshot"
)

type EpochMeta struct {
	Epoch       int    `json:"epoch"`
	Tick        uint64 `json:"tick"`
	WorldID     string `json:"world_id"`
	Seed        int64  `json:"seed"`
	RulesDigest string `json:"rules_digest"`
	Snapshot    string `json:"snapshot"`
	Regions     int    `json:"regions"`
	Nodes       int    `json:"nodes"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveEpochSnapshot copies a snapshot taken on an epoch boundary into
// worldDir/archives/epoch_<NNN>/ and writes meta.json beside it. Snapshots
// off the boundary, or with every <= 0, are left alone.
func ArchiveEpochSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1, every int64) (epoch int, archivedPath string, archived bool, err error) {
	if every <= 0 || snap.Header.Tick == 0 || snap.Header.Tick%uint64(every) != 0 {
		return 0, "", false, nil
	}
	epoch = int(snap.Header.Tick / uint64(every))

	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochMeta{
		Epoch:       epoch,
		Tick:        snap.Header.Tick,
		WorldID:     snap.Header.WorldID,
		Seed:        snap.Seed,
		RulesDigest: snap.RulesDigest,
		Snapshot:    filepath.Base(dst),
		Regions:     len(snap.Deltas),
		Nodes:       len(snap.Nodes),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return 0, "", false, err
	}
	return epoch, dst, true, nil
}

// ReadEpochs returns the meta of every archived epoch, oldest first.
func ReadEpochs(worldDir string) ([]EpochMeta, error) {
	matches, err := filepath.Glob(filepath.Join(worldDir, "archives", "epoch_*", "meta.json"))
	if err != nil {
		return nil, err
	}
	out := make([]EpochMeta, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		var meta EpochMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		out = append(out, meta)
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots in dir. keep <= 0 keeps
// everything. Archived copies live elsewhere and are never touched.
func Prune(dir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	ticks, err := snapshot.List(dir)
	if err != nil || len(ticks) <= keep {
		return 0, err
	}
	for _, tick := range ticks[:len(ticks)-keep] {
		if err := os.Remove(filepath.Join(dir, snapshot.FileName(tick))); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
