// Package engine hosts the world. One goroutine owns all state mutation: it
// stamps each call with the caller identity and a monotonic timestamp, runs
// it through the closed dispatch table, appends every mutating call to the
// operation log, and fans results out to the index, the mirror, and connected
// clients. The world itself stays free of goroutines, clocks, and IO;
// everything that touches any of those lives here.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"everdusk.gg/internal/persistence/archive"
	"everdusk.gg/internal/persistence/indexdb"
	"everdusk.gg/internal/persistence/oplog"
	"everdusk.gg/internal/persistence/r2s3"
	"everdusk.gg/internal/persistence/snapshot"
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/world"
)

// SystemIdentity stamps operations the engine schedules on its own tickers.
// Client identities are hex digests, so the name cannot collide.
const SystemIdentity = world.Identity("system")

// digestEvery sets how often a full state digest is embedded in the oplog.
const digestEvery = 256

// ErrStopped reports a call submitted to an engine that has shut down.
var ErrStopped = errors.New("engine stopped")

// Response is the outcome of one submitted call. Seq is the oplog sequence
// the call was recorded under, zero for queries.
type Response struct {
	OK      bool
	Code    string
	Message string
	Data    any
	Seq     uint64
}

type call struct {
	caller world.Identity
	op     string
	args   any
	resp   chan Response
}

func (c call) reply(r Response) {
	if c.resp != nil {
		c.resp <- r
	}
}

// EventSink receives server-pushed events addressed to identities. Deliver
// runs on the engine goroutine and must not block.
type EventSink interface {
	Deliver(to []world.Identity, ev protocol.EventMsg)
}

type Options struct {
	Logger    *log.Logger
	Index     *indexdb.SQLiteIndex
	Mirror    *r2s3.Mirror
	Sink      EventSink
	CallQueue int
}

type Engine struct {
	w       *world.World
	dataDir string
	logger  *log.Logger
	ops     *oplog.Writer
	idx     *indexdb.SQLiteIndex
	mirror  *r2s3.Mirror
	sink    EventSink

	calls chan call
	snaps chan snapshot.SnapshotV1
	done  chan struct{}

	// Loop-owned. seq is the last oplog sequence written; lastNow enforces
	// strictly increasing call stamps even when the wall clock stalls.
	seq     uint64
	lastNow time.Time
	now     func() time.Time
}

// New builds an engine over a recovered world. rec carries the log position
// recovery reached; a fresh world passes the zero value.
func New(w *world.World, dataDir string, rec RecoverResult, opts Options) (*Engine, error) {
	if err := validateApplyDispatch(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	queue := opts.CallQueue
	if queue <= 0 {
		queue = 1024
	}
	return &Engine{
		w:       w,
		dataDir: dataDir,
		logger:  logger,
		ops:     oplog.NewWriter(filepath.Join(dataDir, "oplog")),
		idx:     opts.Index,
		mirror:  opts.Mirror,
		sink:    opts.Sink,
		calls:   make(chan call, queue),
		snaps:   make(chan snapshot.SnapshotV1, 2),
		done:    make(chan struct{}),
		seq:     rec.LastSeq,
		lastNow: rec.LastTS,
		now:     time.Now,
	}, nil
}

// SetSink installs the event sink. The transport is built around the engine,
// so it cannot be passed in Options; call this before Run, the engine reads
// it only from its own goroutine afterwards.
func (e *Engine) SetSink(s EventSink) {
	e.sink = s
}

// Submit runs one decoded call on the engine goroutine and waits for its
// result. Safe from any goroutine.
func (e *Engine) Submit(ctx context.Context, caller world.Identity, op string, args any) (Response, error) {
	c := call{caller: caller, op: op, args: args, resp: make(chan Response, 1)}
	select {
	case e.calls <- c:
	case <-e.done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	select {
	case r := <-c.resp:
		return r, nil
	case <-e.done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Run owns the world until ctx is canceled, then writes a final snapshot and
// closes the oplog.
func (e *Engine) Run(ctx context.Context) error {
	tun := e.w.Tuning()
	behavior := time.NewTicker(time.Duration(tun.BehaviorTickMs) * time.Millisecond)
	cleanup := time.NewTicker(time.Duration(tun.CleanupIntervalS) * time.Second)
	snaps := time.NewTicker(time.Duration(tun.SnapshotEveryMin) * time.Minute)
	defer behavior.Stop()
	defer cleanup.Stop()
	defer snaps.Stop()

	writerDone := make(chan struct{})
	go e.snapshotWriter(writerDone)

	for {
		select {
		case <-ctx.Done():
			e.shutdown(writerDone)
			return ctx.Err()
		case c := <-e.calls:
			e.handle(c)
		case <-behavior.C:
			e.applyInternal(protocol.OpTickNPCs, nil)
		case <-cleanup.C:
			e.applyInternal(protocol.OpCleanupSessions, nil)
		case <-snaps.C:
			e.scheduleSnapshot()
		}
	}
}

func (e *Engine) shutdown(writerDone chan struct{}) {
	close(e.done)
	// Finish calls that were already accepted.
	for {
		select {
		case c := <-e.calls:
			e.handle(c)
			continue
		default:
		}
		break
	}
	e.snaps <- e.exportSnapshot()
	close(e.snaps)
	<-writerDone
	if err := e.ops.Close(); err != nil {
		e.logger.Printf("oplog close: %v", err)
	}
}

// stamp returns the authoritative timestamp for the next call. Stamps are
// strictly increasing so log order and time order never disagree.
func (e *Engine) stamp() time.Time {
	now := e.now().UTC()
	if !now.After(e.lastNow) {
		now = e.lastNow.Add(time.Nanosecond)
	}
	e.lastNow = now
	return now
}

func (e *Engine) applyInternal(op string, args any) {
	e.handle(call{caller: SystemIdentity, op: op, args: args})
}

func (e *Engine) handle(c call) {
	ctx := world.Ctx{Caller: c.caller, Now: e.stamp()}
	data, err := Apply(e.w, ctx, c.op, c.args)

	resp := Response{OK: err == nil, Data: data}
	if err != nil {
		resp.Code = codeFor(err)
		resp.Message = err.Error()
		resp.Data = nil
	}

	if queryOps[c.op] {
		if sv, ok := resp.Data.(protocol.StatsView); ok && c.op == protocol.OpStats {
			sv.LastOpSeq = e.seq
			sv.Digest = e.w.StateDigest()
			resp.Data = sv
		}
		c.reply(resp)
		return
	}

	e.seq++
	entry := oplog.Entry{
		Seq:    e.seq,
		TS:     ctx.Now.UnixNano(),
		Caller: string(c.caller),
		Op:     c.op,
		OK:     resp.OK,
		Code:   resp.Code,
	}
	if c.args != nil {
		b, merr := json.Marshal(c.args)
		if merr != nil {
			e.logger.Printf("marshal args op=%s: %v", c.op, merr)
		} else {
			entry.Args = b
		}
	}
	if e.seq%digestEvery == 0 {
		entry.Digest = e.w.StateDigest()
	}
	if aerr := e.ops.Append(entry); aerr != nil {
		e.logger.Printf("oplog append seq=%d op=%s: %v", e.seq, c.op, aerr)
	}
	if e.idx != nil {
		e.idx.WriteOp(entry)
	}
	resp.Seq = e.seq
	// Side effects land before the reply, so a returned Submit means the call
	// is fully visible: logged, indexed, and fanned out.
	if resp.OK {
		e.afterCommit(ctx, c.op, c.args, data)
	}
	c.reply(resp)
}

// afterCommit streams index rows and pushes events for calls that changed
// state. It runs on the engine goroutine after the oplog entry is down.
func (e *Engine) afterCommit(ctx world.Ctx, op string, args, data any) {
	switch op {
	case protocol.OpLogin:
		a := args.(*protocol.LoginArgs)
		e.writeLoginEvent(ctx, ctx.Caller, "login", a.RemoteAddr, a.ClientVersion)
	case protocol.OpLogout:
		e.writeLoginEvent(ctx, ctx.Caller, "logout", "", "")
	case protocol.OpSendChat:
		msg := data.(protocol.ChatMessageView)
		e.indexChat(msg, ctx)
		if e.sink != nil {
			e.sink.Deliver(e.chatRecipients(ctx.Caller, msg.Channel), event(protocol.EventChat, msg))
		}
	case protocol.OpSendWhisper:
		msg := data.(protocol.ChatMessageView)
		e.indexChat(msg, ctx)
		if e.sink != nil {
			a := args.(*protocol.SendWhisperArgs)
			if target, ok := e.w.IdentityByName(a.To); ok {
				e.sink.Deliver([]world.Identity{target}, event(protocol.EventWhisper, msg))
			}
		}
	case protocol.OpCleanupSessions:
		removed := data.(protocol.CleanupSummaryView).Removed
		for _, id := range removed {
			e.writeLoginEvent(ctx, world.Identity(id), "timeout", "", "")
		}
		if e.sink != nil && len(removed) > 0 {
			ev := event(protocol.EventKicked, map[string]any{"reason": "inactivity timeout"})
			for _, id := range removed {
				e.sink.Deliver([]world.Identity{world.Identity(id)}, ev)
			}
		}
	}
}

func (e *Engine) writeLoginEvent(ctx world.Ctx, id world.Identity, kind, remoteAddr, clientVersion string) {
	if e.idx == nil {
		return
	}
	name := ""
	if u, ok := e.w.UserView(id); ok {
		name = u.Username
	}
	e.idx.WriteLogin(indexdb.LoginEvent{
		Seq:           e.seq,
		Identity:      string(id),
		Username:      name,
		Event:         kind,
		RemoteAddr:    remoteAddr,
		ClientVersion: clientVersion,
		At:            ctx.Now,
	})
}

func (e *Engine) indexChat(msg protocol.ChatMessageView, ctx world.Ctx) {
	if e.idx == nil {
		return
	}
	e.idx.WriteChat(world.ChatMessage{
		ID:         msg.ID,
		Channel:    msg.Channel,
		Sender:     world.Identity(msg.Sender),
		SenderName: msg.SenderName,
		Text:       msg.Text,
		SentAt:     ctx.Now,
	})
}

// chatRecipients resolves who sees a public channel message. Zone chat goes
// to online players sharing the sender's zone; every other public channel
// reaches all live sessions.
func (e *Engine) chatRecipients(sender world.Identity, channel string) []world.Identity {
	ids := e.w.SessionIdentities()
	if channel != "zone" {
		return ids
	}
	senderZone := ""
	if p, ok := e.w.PlayerView(sender); ok {
		senderZone = p.Zone
	}
	out := make([]world.Identity, 0, len(ids))
	for _, id := range ids {
		if p, ok := e.w.PlayerView(id); ok && p.Online && p.Zone == senderZone {
			out = append(out, id)
		}
	}
	return out
}

func event(name string, data any) protocol.EventMsg {
	return protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           name,
		Data:            data,
	}
}

func codeFor(err error) string {
	switch world.KindOf(err) {
	case world.KindValidation:
		return protocol.ErrValidation
	case world.KindNotFound:
		return protocol.ErrNotFound
	case world.KindPermission:
		return protocol.ErrNoPermission
	case world.KindCapacity:
		return protocol.ErrCapacity
	case world.KindState:
		return protocol.ErrState
	default:
		return protocol.ErrInternal
	}
}

func (e *Engine) exportSnapshot() snapshot.SnapshotV1 {
	return e.w.ExportSnapshot(e.seq, e.now().UTC())
}

func (e *Engine) scheduleSnapshot() {
	select {
	case e.snaps <- e.exportSnapshot():
	default:
		e.logger.Printf("snapshot skipped: writer busy")
	}
}

func (e *Engine) snapshotWriter(done chan struct{}) {
	defer close(done)
	for snap := range e.snaps {
		e.writeSnapshot(snap)
	}
}

func (e *Engine) writeSnapshot(snap snapshot.SnapshotV1) {
	path := filepath.Join(e.dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.LastOpSeq))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		e.logger.Printf("snapshot write: %v", err)
		return
	}
	e.logger.Printf("snapshot seq=%d users=%d players=%d npcs=%d path=%s",
		snap.Header.LastOpSeq, len(snap.Users), len(snap.Players), len(snap.NPCs), filepath.Base(path))

	if e.mirror != nil {
		e.mirror.Enqueue(path)
	}
	if e.idx != nil {
		e.idx.RecordSnapshot(path, snap)
	}

	dir, n, err := archive.ArchiveCoveredSegments(e.dataDir, filepath.Join(e.dataDir, "oplog"), path, snap.Header.LastOpSeq)
	if err != nil {
		e.logger.Printf("archive oplog: %v", err)
		return
	}
	if n == 0 {
		return
	}
	e.logger.Printf("archived segments=%d upto_seq=%d dir=%s", n, snap.Header.LastOpSeq, filepath.Base(dir))
	if e.idx != nil {
		e.idx.RecordArchive(dir, snap.Header.LastOpSeq, n)
	}
	if e.mirror != nil {
		e.mirror.SweepExisting(filepath.Join("archives", filepath.Base(dir)))
	}
}
