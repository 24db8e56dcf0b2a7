// Package archive moves oplog segments that a snapshot has made redundant
// for recovery out of the live log directory, keeping full history available
// for audits and genesis replays without growing the hot path.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"everdusk.gg/internal/persistence/oplog"
)

// Meta describes one retention bundle.
type Meta struct {
	UptoSeq   uint64   `json:"upto_seq"`
	Snapshot  string   `json:"snapshot"`
	Segments  []string `json:"segments"`
	CreatedAt string   `json:"created_at"`
}

// ArchiveCoveredSegments moves oplog segments every entry of which is already
// captured by the snapshot at uptoSeq into `dataDir/archives/upto_<seq>/`.
// The newest segment always stays live: the writer may still be appending to
// it. Returns ("", 0, nil) when there is nothing to move.
func ArchiveCoveredSegments(dataDir, logDir, snapshotPath string, uptoSeq uint64) (string, int, error) {
	segs, err := oplog.Segments(logDir)
	if err != nil {
		return "", 0, err
	}
	if len(segs) <= 1 {
		return "", 0, nil
	}

	var covered []string
	for _, path := range segs[:len(segs)-1] {
		var maxSeq uint64
		if err := oplog.Scan(path, func(e oplog.Entry) error {
			if e.Seq > maxSeq {
				maxSeq = e.Seq
			}
			return nil
		}); err != nil {
			return "", 0, err
		}
		// Sequences grow across segments: the first uncovered segment ends the run.
		if maxSeq > uptoSeq {
			break
		}
		covered = append(covered, path)
	}
	if len(covered) == 0 {
		return "", 0, nil
	}

	archiveDir := filepath.Join(dataDir, "archives", fmt.Sprintf("upto_%012d", uptoSeq))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", 0, err
	}

	names := make([]string, 0, len(covered))
	for _, src := range covered {
		if err := copyFile(src, filepath.Join(archiveDir, filepath.Base(src))); err != nil {
			return "", 0, err
		}
		names = append(names, filepath.Base(src))
	}
	// Remove originals only after every copy landed.
	for _, src := range covered {
		if err := os.Remove(src); err != nil {
			return "", 0, err
		}
	}

	meta := Meta{
		UptoSeq:   uptoSeq,
		Snapshot:  filepath.Base(snapshotPath),
		Segments:  names,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return archiveDir, len(covered), nil
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
