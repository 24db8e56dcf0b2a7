package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"everdusk.gg/internal/persistence/oplog"
	"everdusk.gg/internal/persistence/snapshot"
	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
	"everdusk.gg/internal/sim/world"
)

// SQLiteIndex mirrors the operation log into a queryable SQLite database.
// Writes are queued and batched on a single goroutine; the oplog stays the
// source of truth, so a dropped index write is never a correctness problem.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropOp       atomic.Uint64
	dropLogin    atomic.Uint64
	dropChat     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropArchive  atomic.Uint64
}

type reqKind int

const (
	reqOp reqKind = iota + 1
	reqLogin
	reqChat
	reqSnapshot
	reqArchive
)

type req struct {
	kind reqKind

	op       oplog.Entry
	login    LoginEvent
	chat     world.ChatMessage
	snapshot snapshotRow
	archive  archiveRow
}

// LoginEvent records a session transition for the logins table.
type LoginEvent struct {
	Seq           uint64
	Identity      string
	Username      string
	Event         string // "login", "logout", "timeout"
	RemoteAddr    string
	ClientVersion string
	At            time.Time
}

type snapshotRow struct {
	LastOpSeq uint64
	Path      string
	SavedAt   int64
	Digest    string
	Users     int
	Players   int
	NPCs      int
	Slots     int
	Skills    int
	Channels  int
}

type archiveRow struct {
	UptoSeq    uint64
	Path       string
	Segments   int
	RecordedAt string
}

// Stats reports queue pressure and per-stream drop totals.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropOpTotal       uint64
	DropLoginTotal    uint64
	DropChatTotal     uint64
	DropSnapshotTotal uint64
	DropArchiveTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: absorb bursty op traffic (login storms, combat) without
		// stalling the reducer loop.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			seq INTEGER PRIMARY KEY,
			ts INTEGER NOT NULL,
			caller TEXT NOT NULL,
			op TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			digest TEXT,
			args_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_caller_seq ON ops(caller, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_op_seq ON ops(op, seq);`,
		`CREATE TABLE IF NOT EXISTS logins (
			seq INTEGER NOT NULL,
			identity TEXT NOT NULL,
			username TEXT NOT NULL,
			event TEXT NOT NULL,
			remote_addr TEXT,
			client_version TEXT,
			at TEXT NOT NULL,
			PRIMARY KEY (seq, identity)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_logins_identity_at ON logins(identity, at);`,
		`CREATE TABLE IF NOT EXISTS chat (
			id INTEGER PRIMARY KEY,
			channel TEXT NOT NULL,
			sender TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			text TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_channel_id ON chat(channel, id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			last_op_seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			saved_at INTEGER NOT NULL,
			digest TEXT NOT NULL,
			users INTEGER NOT NULL,
			players INTEGER NOT NULL,
			npcs INTEGER NOT NULL,
			slots INTEGER NOT NULL,
			skills INTEGER NOT NULL,
			channels INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS archives (
			upto_seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			segments INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteOp(e oplog.Entry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqOp, op: e}:
	default:
		// Drop if the indexer falls behind; the oplog remains the source of truth.
		s.dropOp.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteLogin(ev LoginEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqLogin, login: ev}:
	default:
		s.dropLogin.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteChat(msg world.ChatMessage) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqChat, chat: msg}:
	default:
		s.dropChat.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		LastOpSeq: snap.Header.LastOpSeq,
		Path:      path,
		SavedAt:   snap.Header.SavedAtUnix,
		Digest:    snap.Header.Digest,
		Users:     len(snap.Users),
		Players:   len(snap.Players),
		NPCs:      len(snap.NPCs),
		Slots:     len(snap.Slots),
		Skills:    len(snap.Skills),
		Channels:  len(snap.Chat),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) RecordArchive(path string, uptoSeq uint64, segments int) {
	if s == nil || s.closed.Load() {
		return
	}
	if path == "" || segments <= 0 {
		return
	}
	r := archiveRow{
		UptoSeq:    uptoSeq,
		Path:       path,
		Segments:   segments,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqArchive, archive: r}:
	default:
		s.dropArchive.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),

		DropOpTotal:       s.dropOp.Load(),
		DropLoginTotal:    s.dropLogin.Load(),
		DropChatTotal:     s.dropChat.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropArchiveTotal:  s.dropArchive.Load(),
	}
}

// UpsertCatalogs records the catalog content and digests the server is
// actually running with, so an operator can tell which rules produced a
// given stretch of the ops table.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Raw json where the files exist; canonicalized defs otherwise (the
	// baseline catalog has no files on disk).
	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("items", filepath.Join(configDir, "items.json"))
		read("npcs", filepath.Join(configDir, "npcs.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["items"]; len(b) > 0 {
		rows = append(rows, kv{name: "items", digest: cats.Items.Digest, json: b})
	} else {
		defs := make([]catalogs.ItemDef, 0, len(cats.Items.Defs))
		for _, d := range cats.Items.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "items", digest: cats.Items.Digest, json: b})
		}
	}
	if b := raw["npcs"]; len(b) > 0 {
		rows = append(rows, kv{name: "npcs", digest: cats.NPCs.Digest, json: b})
	} else {
		defs := make([]catalogs.NPCDef, 0, len(cats.NPCs.Defs))
		for _, d := range cats.NPCs.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "npcs", digest: cats.NPCs.Digest, json: b})
		}
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		rows = append(rows, kv{name: "tuning", digest: tune.Digest(), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertOp, _ := s.db.Prepare(`INSERT OR REPLACE INTO ops(seq,ts,caller,op,ok,code,digest,args_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertLogin, _ := s.db.Prepare(`INSERT OR REPLACE INTO logins(seq,identity,username,event,remote_addr,client_version,at) VALUES(?,?,?,?,?,?,?)`)
	insertChat, _ := s.db.Prepare(`INSERT OR REPLACE INTO chat(id,channel,sender,sender_name,sent_at,text) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(last_op_seq,path,saved_at,digest,users,players,npcs,slots,skills,channels) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertArchive, _ := s.db.Prepare(`INSERT OR REPLACE INTO archives(upto_seq,path,segments,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		if insertOp != nil {
			_ = insertOp.Close()
		}
		if insertLogin != nil {
			_ = insertLogin.Close()
		}
		if insertChat != nil {
			_ = insertChat.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
		if insertArchive != nil {
			_ = insertArchive.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOp:
			e := r.op
			ok := 0
			if e.OK {
				ok = 1
			}
			args := string(e.Args)
			if args == "" {
				args = "null"
			}
			if insertOp != nil {
				if _, err := tx.Stmt(insertOp).Exec(
					int64(e.Seq),
					e.TS,
					e.Caller,
					e.Op,
					ok,
					e.Code,
					e.Digest,
					args,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqLogin:
			ev := r.login
			if insertLogin != nil {
				if _, err := tx.Stmt(insertLogin).Exec(
					int64(ev.Seq),
					ev.Identity,
					ev.Username,
					ev.Event,
					ev.RemoteAddr,
					ev.ClientVersion,
					ev.At.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqChat:
			m := r.chat
			if insertChat != nil {
				if _, err := tx.Stmt(insertChat).Exec(
					int64(m.ID),
					m.Channel,
					string(m.Sender),
					m.SenderName,
					m.SentAt.UTC().Format(time.RFC3339Nano),
					m.Text,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.LastOpSeq),
					sn.Path,
					sn.SavedAt,
					sn.Digest,
					sn.Users,
					sn.Players,
					sn.NPCs,
					sn.Slots,
					sn.Skills,
					sn.Channels,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqArchive:
			ar := r.archive
			if insertArchive != nil {
				if _, err := tx.Stmt(insertArchive).Exec(
					int64(ar.UptoSeq),
					ar.Path,
					ar.Segments,
					ar.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
