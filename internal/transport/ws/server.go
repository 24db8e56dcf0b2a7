// Package ws is the websocket front end. It speaks the HELLO/WELCOME
// handshake and the CALL/RESULT framing, forwards decoded calls to the
// engine, and pushes EVENT frames back out by identity.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"everdusk.gg/internal/engine"
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
	"everdusk.gg/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	callTimeout      = 3 * time.Second
	outQueueSize     = 64
)

type Server struct {
	eng  *engine.Engine
	tun  tuning.Tuning
	cats *catalogs.Catalogs
	log  *log.Logger

	tuningDigest string
	upgrader     websocket.Upgrader
	drops        atomic.Uint64

	mu    sync.Mutex
	conns map[world.Identity]map[*client]struct{}
}

// client is one websocket connection, bound to an identity for its lifetime.
type client struct {
	id     world.Identity
	connID string
	conn   *websocket.Conn
	out    chan outFrame
}

// outFrame is one queued outbound message. last marks the final frame before
// the server closes the connection.
type outFrame struct {
	data []byte
	last bool
}

func NewServer(eng *engine.Engine, tun tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	s := &Server{
		eng:          eng,
		tun:          tun,
		cats:         cats,
		log:          logger,
		tuningDigest: tun.Digest(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		conns: make(map[world.Identity]map[*client]struct{}),
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		s.addClient(c)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: sole writer after the handshake.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
						cancel()
						return
					}
					if f.last {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
							time.Now().Add(time.Second))
						_ = conn.Close()
						cancel()
						return
					}
				}
			}
		}()

		s.readLoop(conn, c, r.RemoteAddr)

		// Unregister first so no further events land, then tell the world
		// this connection is gone.
		s.removeClient(c)
		cancel()
		s.disconnect(c)
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.closePolicy(conn, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.closePolicy(conn, "bad protocol_version")
		return nil
	}

	// Resume the identity behind a presented token, or mint a fresh one.
	// The token is the credential: whoever holds it is that identity, and
	// accounts bind to it at register/login.
	token := ""
	if hello.Auth != nil {
		token = strings.TrimSpace(hello.Auth.Token)
	}
	if token == "" {
		token = uuid.NewString()
	}

	c := &client{
		id:     world.DeriveIdentity(token),
		connID: uuid.NewString(),
		conn:   conn,
		out:    make(chan outFrame, outQueueSize),
	}

	if err := writeJSON(conn, s.welcome(c.id, token)); err != nil {
		return nil
	}
	return c
}

func (s *Server) welcome(id world.Identity, token string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Identity:        string(id),
		ResumeToken:     token,
		WorldParams: protocol.WorldParams{
			StartingZone:      world.DefaultStartingZone,
			WorldBound:        s.tun.Movement.WorldBound,
			MaxMoveDistance:   s.tun.Movement.MaxStep,
			HeartbeatSeconds:  s.tun.Sessions.HeartbeatSeconds,
			InactivitySeconds: s.tun.Sessions.InactivitySeconds,
			MaxMessageLen:     s.tun.Chat.MaxMessageLen,
		},
		Catalogs: protocol.CatalogDigests{
			Items:        protocol.DigestRef{Digest: s.cats.Items.Digest, Count: len(s.cats.Items.Defs)},
			NPCs:         protocol.DigestRef{Digest: s.cats.NPCs.Digest, Count: len(s.cats.NPCs.Defs)},
			TuningDigest: s.tuningDigest,
		},
	}
}

func (s *Server) readLoop(conn *websocket.Conn, c *client, remoteAddr string) {
	limit := newBucket(s.tun.RateLimits, time.Now())
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			if !s.refuse(c, "", protocol.ErrProtoBadRequest, "malformed message") {
				return
			}
			continue
		}
		if base.Type != protocol.TypeCall {
			if !s.refuse(c, "", protocol.ErrProtoBadRequest, "expected CALL") {
				return
			}
			continue
		}

		var cm protocol.CallMsg
		if err := json.Unmarshal(msg, &cm); err != nil {
			if !s.refuse(c, "", protocol.ErrProtoBadRequest, "malformed CALL") {
				return
			}
			continue
		}
		if cm.ProtocolVersion != protocol.Version {
			if !s.refuse(c, cm.ID, protocol.ErrProtoBadRequest, "bad protocol_version") {
				return
			}
			continue
		}
		if !limit.allow(time.Now()) {
			if !s.refuse(c, cm.ID, protocol.ErrRateLimit, "too many calls") {
				return
			}
			continue
		}

		args, err := protocol.DecodeCallArgs(cm.Op, cm.Args)
		if err != nil {
			if !s.refuse(c, cm.ID, protocol.ErrProtoBadRequest, err.Error()) {
				return
			}
			continue
		}
		if la, ok := args.(*protocol.LoginArgs); ok {
			la.ConnectionID = c.connID
			la.RemoteAddr = remoteAddr
		}

		callCtx, cancel := context.WithTimeout(context.Background(), callTimeout)
		resp, err := s.eng.Submit(callCtx, c.id, cm.Op, args)
		cancel()
		if err != nil {
			if !s.refuse(c, cm.ID, protocol.ErrInternal, "engine unavailable") {
				return
			}
			continue
		}
		res := protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			ID:              cm.ID,
			OK:              resp.OK,
			Code:            resp.Code,
			Message:         resp.Message,
			Data:            resp.Data,
			Seq:             resp.Seq,
		}
		if !s.push(c, res, false) {
			return
		}
	}
}

// Deliver implements engine.EventSink. It runs on the engine goroutine, so it
// never blocks: a client that cannot drain its queue is dropped instead of
// stalling the world. A kicked event is the last frame its connection sees.
func (s *Server) Deliver(to []world.Identity, ev protocol.EventMsg) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.log.Printf("event %s: marshal: %v", ev.Event, err)
		return
	}
	last := ev.Event == protocol.EventKicked
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range to {
		for c := range s.conns[id] {
			select {
			case c.out <- outFrame{data: b, last: last}:
			default:
				s.dropSlow(c)
			}
		}
	}
}

// Stats reports live connections and how many were dropped for falling
// behind.
func (s *Server) Stats() (conns int, dropped uint64) {
	s.mu.Lock()
	for _, set := range s.conns {
		conns += len(set)
	}
	s.mu.Unlock()
	return conns, s.drops.Load()
}

// refuse queues an error RESULT. A false return means the connection could
// not take it and is gone.
func (s *Server) refuse(c *client, id, code, msg string) bool {
	return s.push(c, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ID:              id,
		OK:              false,
		Code:            code,
		Message:         msg,
	}, false)
}

func (s *Server) push(c *client, v any, last bool) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("conn %s: marshal: %v", c.connID, err)
		return true
	}
	select {
	case c.out <- outFrame{data: b, last: last}:
		return true
	default:
		s.dropSlow(c)
		return false
	}
}

func (s *Server) dropSlow(c *client) {
	s.drops.Add(1)
	s.log.Printf("conn %s: outbound queue full, dropping connection", c.connID)
	_ = c.conn.Close()
}

func (s *Server) disconnect(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	_, err := s.eng.Submit(ctx, c.id, protocol.OpDisconnect, &protocol.DisconnectArgs{ConnectionID: c.connID})
	if err != nil && !errors.Is(err, engine.ErrStopped) {
		s.log.Printf("conn %s: disconnect: %v", c.connID, err)
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.conns[c.id]
	if set == nil {
		set = make(map[*client]struct{})
		s.conns[c.id] = set
	}
	set[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.conns[c.id]
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, c.id)
	}
}

func (s *Server) closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// bucket is a token bucket refilled at rate per second up to burst.
type bucket struct {
	tokens float64
	burst  float64
	rate   float64
	last   time.Time
}

func newBucket(rl tuning.RateLimits, now time.Time) *bucket {
	b := &bucket{burst: float64(rl.Burst), rate: float64(rl.CallsPerSecond), last: now}
	if b.burst < 1 {
		b.burst = 1
	}
	if b.rate <= 0 {
		b.rate = 1
	}
	b.tokens = b.burst
	return b
}

func (b *bucket) allow(now time.Time) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
