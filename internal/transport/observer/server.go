// Package observer serves the loopback-only admin feed: a bootstrap document
// over plain HTTP and a websocket that streams world statistics on a fixed
// cadence. Reads go through the engine's query path, so an observer can
// never perturb the simulation or leave a trace in its log.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"everdusk.gg/internal/engine"
	"everdusk.gg/internal/observerproto"
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/tuning"
	"everdusk.gg/internal/sim/world"
)

const (
	defaultIntervalMs = 2000
	minIntervalMs     = 250
	maxIntervalMs     = 60000
	queryTimeout      = 3 * time.Second
)

type Server struct {
	eng          *engine.Engine
	tuningDigest string
	log          *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(eng *engine.Engine, tun tuning.Tuning, logger *log.Logger) *Server {
	return &Server{
		eng:          eng,
		tuningDigest: tun.Digest(),
		log:          logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

// stats asks the engine for the current population counters. Queries skip
// the oplog, so polling here costs nothing durable.
func (s *Server) stats(ctx context.Context) (protocol.StatsView, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	resp, err := s.eng.Submit(ctx, engine.SystemIdentity, protocol.OpStats, nil)
	if err != nil {
		return protocol.StatsView{}, err
	}
	sv, ok := resp.Data.(protocol.StatsView)
	if !ok {
		return protocol.StatsView{}, errors.New("stats query returned unexpected payload")
	}
	return sv, nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		sv, err := s.stats(r.Context())
		if err != nil {
			http.Error(rw, "world unavailable", http.StatusServiceUnavailable)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			StartingZone:    world.DefaultStartingZone,
			TuningDigest:    s.tuningDigest,
			Stats:           sv,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Interval updates from later SUBSCRIBE frames reach the pusher here.
		intervals := make(chan time.Duration, 1)
		pushErr := make(chan error, 1)
		go s.push(ctx, conn, normalizeInterval(sub.IntervalMs), intervals, pushErr)

		// Reader loop: allow SUBSCRIBE updates, notice the close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var upd observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			if upd.Type != "SUBSCRIBE" || upd.ProtocolVersion != observerproto.Version {
				continue
			}
			select {
			case intervals <- normalizeInterval(upd.IntervalMs):
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait so the pusher does not outlive conn.
		select {
		case <-pushErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// push streams one StateMsg per interval until ctx ends or a write fails.
func (s *Server) push(ctx context.Context, conn *websocket.Conn, interval time.Duration, intervals <-chan time.Duration, done chan<- error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	send := func() error {
		sv, err := s.stats(ctx)
		if err != nil {
			return err
		}
		b, err := json.Marshal(observerproto.StateMsg{
			Type:       "STATE",
			SentAtUnix: time.Now().Unix(),
			Stats:      sv,
		})
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	// First frame right away so a dashboard renders without waiting a tick.
	if err := send(); err != nil {
		done <- err
		return
	}
	for {
		select {
		case <-ctx.Done():
			done <- ctx.Err()
			return
		case d := <-intervals:
			ticker.Reset(d)
		case <-ticker.C:
			if err := send(); err != nil {
				done <- err
				return
			}
		}
	}
}

func normalizeInterval(ms int) time.Duration {
	if ms <= 0 {
		ms = defaultIntervalMs
	}
	if ms < minIntervalMs {
		ms = minIntervalMs
	}
	if ms > maxIntervalMs {
		ms = maxIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
