// Package oplog persists the serialized operation stream as hourly
// zstd-compressed JSONL segments. The log is the authority for recovery: a
// snapshot plus the segments past its sequence rebuilds the exact world.
package oplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const segmentPrefix = "ops"

// Entry is one committed or refused operation. Refused operations are logged
// too: replay must refuse them with the same code, so divergence shows up
// even on error paths.
type Entry struct {
	Seq    uint64          `json:"seq"`
	TS     int64           `json:"ts"`
	Caller string          `json:"caller"`
	Op     string          `json:"op"`
	Args   json.RawMessage `json:"args,omitempty"`
	OK     bool            `json:"ok"`
	Code   string          `json:"code,omitempty"`
	Digest string          `json:"digest,omitempty"`
}

// Time returns the host stamp the operation ran at.
func (e Entry) Time() time.Time { return time.Unix(0, e.TS).UTC() }

// Writer appends entries to hourly segments. Segments rotate on the entry
// stamp, not the wall clock, so a replayed stream lands in the same files.
type Writer struct {
	dir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := e.Time().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := SegmentPath(w.dir, hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Appending to an existing segment starts a fresh zstd frame; readers
	// decode concatenated frames transparently.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

// SegmentPath names the segment holding the given UTC hour ("2006-01-02-15").
func SegmentPath(dir, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", segmentPrefix, hour))
}

// Segments lists segment files in time order. A missing directory is an
// empty log.
func Segments(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, segmentPrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// Replay streams every entry with Seq > afterSeq to fn, in log order. A
// non-nil error from fn stops the scan.
func Replay(dir string, afterSeq uint64, fn func(Entry) error) error {
	files, err := Segments(dir)
	if err != nil {
		return err
	}
	lastSeq := afterSeq
	for _, path := range files {
		if err := replaySegment(path, afterSeq, &lastSeq, fn); err != nil {
			return err
		}
	}
	return nil
}

func replaySegment(path string, afterSeq uint64, lastSeq *uint64, fn func(Entry) error) error {
	return Scan(path, func(e Entry) error {
		if e.Seq <= afterSeq {
			return nil
		}
		if e.Seq != *lastSeq+1 {
			return fmt.Errorf("%s: sequence gap: want %d got %d", filepath.Base(path), *lastSeq+1, e.Seq)
		}
		*lastSeq = e.Seq
		return fn(e)
	})
}

// Scan streams every entry of one segment file to fn, in file order, with no
// sequence checking. Retention and inspection tools use it on single files.
func Scan(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: scan: %w", filepath.Base(path), err)
	}
	return nil
}

// LastSeq reports the highest sequence written, 0 for an empty log. Only the
// newest segment is scanned; sequences grow strictly across segments.
func LastSeq(dir string) (uint64, error) {
	files, err := Segments(dir)
	if err != nil || len(files) == 0 {
		return 0, err
	}
	var last uint64
	err = Scan(files[len(files)-1], func(e Entry) error {
		last = e.Seq
		return nil
	})
	return last, err
}
