package oplog

import (
	"encoding/json"
	"testing"
	"time"
)

func entryAt(seq uint64, ts time.Time, op string) Entry {
	return Entry{
		Seq:    seq,
		TS:     ts.UnixNano(),
		Caller: "id-1",
		Op:     op,
		Args:   json.RawMessage(`{"x":1}`),
		OK:     true,
	}
}

func TestWriter_RotatesByEntryHour(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	base := time.Date(2025, 6, 1, 10, 59, 0, 0, time.UTC)
	if err := w.Append(entryAt(1, base, "login")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(entryAt(2, base.Add(2*time.Minute), "join_world")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Segments(dir)
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("segments=%d want 2 (hour boundary crossed)", len(files))
	}
	if files[0] != SegmentPath(dir, "2025-06-01-10") || files[1] != SegmentPath(dir, "2025-06-01-11") {
		t.Fatalf("segments=%v", files)
	}
}

func TestReplay_StreamsTailInOrder(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ops := []string{"register", "login", "join_world", "send_chat", "logout"}
	for i, op := range ops {
		e := entryAt(uint64(i+1), base.Add(time.Duration(i)*30*time.Minute), op)
		if i == 3 {
			e.OK = false
			e.Code = "E_VALIDATION"
		}
		if err := w.Append(e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []Entry
	if err := Replay(dir, 2, func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d want 3 past seq 2", len(got))
	}
	if got[0].Seq != 3 || got[0].Op != "join_world" {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].OK || got[1].Code != "E_VALIDATION" {
		t.Fatalf("refused op lost its code: %+v", got[1])
	}
	if string(got[2].Args) != `{"x":1}` {
		t.Fatalf("args=%s", got[2].Args)
	}
}

func TestReplay_DetectsSequenceGaps(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := w.Append(entryAt(1, base, "login")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(entryAt(3, base.Add(time.Second), "logout")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := Replay(dir, 0, func(Entry) error { return nil })
	if err == nil {
		t.Fatalf("expected a gap error")
	}
}

func TestWriter_AppendAfterReopen(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	w := NewWriter(dir)
	if err := w.Append(entryAt(1, base, "login")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A restart appends a fresh compression frame to the same hour segment.
	w = NewWriter(dir)
	if err := w.Append(entryAt(2, base.Add(time.Minute), "join_world")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Segments(dir)
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("segments=%d want 1", len(files))
	}

	var seqs []uint64
	if err := Replay(dir, 0, func(e Entry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("seqs=%v want [1 2]", seqs)
	}

	last, err := LastSeq(dir)
	if err != nil {
		t.Fatalf("last seq: %v", err)
	}
	if last != 2 {
		t.Fatalf("last=%d want 2", last)
	}
}

func TestLastSeq_EmptyLog(t *testing.T) {
	last, err := LastSeq(t.TempDir())
	if err != nil {
		t.Fatalf("last seq: %v", err)
	}
	if last != 0 {
		t.Fatalf("last=%d want 0", last)
	}
}
