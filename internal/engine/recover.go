package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"everdusk.gg/internal/persistence/oplog"
	"everdusk.gg/internal/persistence/snapshot"
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/world"
)

// RecoverResult describes what recovery rebuilt and where the log stands.
type RecoverResult struct {
	SnapshotPath string
	SnapshotSeq  uint64
	LastSeq      uint64
	LastTS       time.Time
	Replayed     int
}

// Recover rebuilds w from the newest snapshot under dataDir, then replays the
// oplog tail past it. Each logged call re-runs through the same dispatch as
// the live loop; any divergence in outcome, error code, or embedded digest
// fails recovery rather than booting a world that drifted from its log.
func Recover(w *world.World, dataDir string) (RecoverResult, error) {
	var rec RecoverResult

	if path := latestSnapshot(filepath.Join(dataDir, "snapshots")); path != "" {
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return rec, fmt.Errorf("read snapshot %s: %w", filepath.Base(path), err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			return rec, fmt.Errorf("import snapshot %s: %w", filepath.Base(path), err)
		}
		rec.SnapshotPath = path
		rec.SnapshotSeq = snap.Header.LastOpSeq
		rec.LastSeq = snap.Header.LastOpSeq
		rec.LastTS = time.Unix(snap.Header.SavedAtUnix, 0).UTC()
	}

	err := oplog.Replay(filepath.Join(dataDir, "oplog"), rec.LastSeq, func(ent oplog.Entry) error {
		args, derr := protocol.DecodeCallArgs(ent.Op, ent.Args)
		if derr != nil {
			return fmt.Errorf("seq %d: decode %s args: %w", ent.Seq, ent.Op, derr)
		}
		ctx := world.Ctx{Caller: world.Identity(ent.Caller), Now: ent.Time()}
		_, aerr := Apply(w, ctx, ent.Op, args)
		if (aerr == nil) != ent.OK {
			return fmt.Errorf("seq %d: op %s replayed ok=%v, log has ok=%v", ent.Seq, ent.Op, aerr == nil, ent.OK)
		}
		if aerr != nil && codeFor(aerr) != ent.Code {
			return fmt.Errorf("seq %d: op %s replayed code=%s, log has %s", ent.Seq, ent.Op, codeFor(aerr), ent.Code)
		}
		if ent.Digest != "" {
			if got := w.StateDigest(); got != ent.Digest {
				return fmt.Errorf("seq %d: state digest mismatch", ent.Seq)
			}
		}
		rec.LastSeq = ent.Seq
		rec.LastTS = ent.Time()
		rec.Replayed++
		return nil
	})
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// latestSnapshot returns the newest snapshot file under dir, "" when none.
// Snapshots are named <seq>.snap.zst, so the highest sequence wins.
func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		seq, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best
}
