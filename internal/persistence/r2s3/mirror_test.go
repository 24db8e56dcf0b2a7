package r2s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMirror_UploadsRelativeToDataDir(t *testing.T) {
	type put struct {
		method string
		path   string
		auth   string
		sha    string
		body   string
	}
	var mu sync.Mutex
	var puts []put

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, put{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			sha:    r.Header.Get("x-amz-content-sha256"),
			body:   string(b),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "backups", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dataDir := t.TempDir()
	snapPath := filepath.Join(dataDir, "snapshots", "41.snap.zst")
	if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(snapPath, []byte("snapshot-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMirror(client, dataDir, "everdusk", 1, 8, 10*time.Millisecond, nil)
	m.Enqueue(snapPath)
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(puts) != 1 {
		t.Fatalf("puts=%d want=1", len(puts))
	}
	p := puts[0]
	if p.method != http.MethodPut {
		t.Fatalf("method=%s want=PUT", p.method)
	}
	if p.path != "/backups/everdusk/snapshots/41.snap.zst" {
		t.Fatalf("path=%q", p.path)
	}
	if !strings.HasPrefix(p.auth, "AWS4-HMAC-SHA256 Credential=AKID/") {
		t.Fatalf("auth=%q", p.auth)
	}
	if p.body != "snapshot-bytes" {
		t.Fatalf("body=%q", p.body)
	}
	if p.sha == "" || p.sha == emptyPayloadHash {
		t.Fatalf("payload hash=%q", p.sha)
	}

	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 || st.DroppedTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirror_SweepExistingUploadsBacklog(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = true
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "backups", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dataDir := t.TempDir()
	files := []string{
		filepath.Join(dataDir, "snapshots", "7.snap.zst"),
		filepath.Join(dataDir, "oplog", "ops-2025-06-01-10.jsonl.zst"),
	}
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Lives in dataDir but not in a swept subtree.
	if err := os.WriteFile(filepath.Join(dataDir, "index.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewMirror(client, dataDir, "", 2, 8, 10*time.Millisecond, nil)
	n := m.SweepExisting("snapshots", "oplog")
	m.Close()

	if n != 2 {
		t.Fatalf("swept %d files, want 2", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if !seen["/backups/snapshots/7.snap.zst"] || !seen["/backups/oplog/ops-2025-06-01-10.jsonl.zst"] {
		t.Fatalf("uploaded paths: %v", seen)
	}
	if seen["/backups/index.db"] {
		t.Fatalf("index.db should not be swept")
	}
}

func TestClient_Head(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			http.Error(w, "unexpected method", http.StatusInternalServerError)
			return
		}
		if r.URL.Path == "/backups/snapshots/41.snap.zst" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := New(srv.URL, "backups", "AKID", "SECRET")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := client.Head(context.Background(), "snapshots/41.snap.zst")
	if err != nil || !ok {
		t.Fatalf("Head existing: ok=%v err=%v", ok, err)
	}
	ok, err = client.Head(context.Background(), "snapshots/42.snap.zst")
	if err != nil || ok {
		t.Fatalf("Head missing: ok=%v err=%v", ok, err)
	}
}
