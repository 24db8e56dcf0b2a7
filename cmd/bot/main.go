// Command bot is a smoke client. It registers (or reuses) an account, logs
// in, joins the world and wanders inside the movement limits the server
// advertises in WELCOME, chatting occasionally. Useful for soaking a dev
// server and for watching another client's chat from a second terminal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"everdusk.gg/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "account username")
		password = flag.String("pass", "bot-password-1", "account password")
		every    = flag.Duration("every", 2*time.Second, "wander step interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientVersion:   "bot/1",
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	results := make(chan protocol.ResultMsg, 64)
	done := make(chan struct{})
	var params protocol.WorldParams
	welcomed := make(chan protocol.WelcomeMsg, 1)
	go readLoop(conn, logger, welcomed, results, done)

	select {
	case w := <-welcomed:
		params = w.WorldParams
		logger.Printf("WELCOME identity=%s zone=%s max_step=%.0f heartbeat=%ds",
			w.Identity, params.StartingZone, params.MaxMoveDistance, params.HeartbeatSeconds)
	case <-done:
		logger.Fatalf("connection closed before WELCOME")
	case <-time.After(10 * time.Second):
		logger.Fatalf("no WELCOME within 10s")
	}

	var seq int
	call := func(op string, args any) string {
		seq++
		id := fmt.Sprintf("%s-%d", op, seq)
		var raw json.RawMessage
		if args != nil {
			b, err := json.Marshal(args)
			if err != nil {
				logger.Fatalf("marshal %s args: %v", op, err)
			}
			raw = b
		}
		msg := protocol.CallMsg{Type: protocol.TypeCall, ProtocolVersion: protocol.Version, ID: id, Op: op, Args: raw}
		if err := conn.WriteJSON(msg); err != nil {
			logger.Fatalf("send %s: %v", op, err)
		}
		return id
	}

	// Register is allowed to fail when the account already exists from a
	// previous run; login decides whether the credentials are any good.
	res := await(logger, results, done, call(protocol.OpRegister, protocol.RegisterArgs{Username: *name, Password: *password}))
	if !res.OK && res.Code != protocol.ErrState {
		logger.Fatalf("register: %s: %s", res.Code, res.Message)
	}
	res = await(logger, results, done, call(protocol.OpLogin, protocol.LoginArgs{Username: *name, Password: *password, ClientVersion: "bot/1"}))
	if !res.OK {
		logger.Fatalf("login: %s: %s", res.Code, res.Message)
	}
	res = await(logger, results, done, call(protocol.OpJoinWorld, protocol.JoinWorldArgs{}))
	if !res.OK {
		logger.Fatalf("join_world: %s: %s", res.Code, res.Message)
	}
	self, err := decodePlayer(res.Data)
	if err != nil {
		logger.Fatalf("join_world result: %v", err)
	}
	logger.Printf("joined zone=%s pos=(%.1f, %.1f)", self.Zone, self.Pos[0], self.Pos[1])

	pos := mgl64.Vec3{self.Pos[0], self.Pos[1], self.Pos[2]}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	hbEvery := time.Duration(params.HeartbeatSeconds) * time.Second / 2
	if hbEvery <= 0 {
		hbEvery = 10 * time.Second
	}
	heartbeat := time.NewTicker(hbEvery)
	defer heartbeat.Stop()
	wander := time.NewTicker(*every)
	defer wander.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var steps int
	for {
		select {
		case <-stop:
			call(protocol.OpLogout, nil)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
			select {
			case <-done:
			case <-time.After(2 * time.Second):
			}
			return

		case <-done:
			logger.Printf("connection closed")
			return

		case <-heartbeat.C:
			call(protocol.OpHeartbeat, nil)

		case <-wander.C:
			steps++
			pos = nextStep(rng, pos, params)
			yaw := rng.Float64() * 2 * math.Pi
			call(protocol.OpUpdatePosition, protocol.UpdatePositionArgs{Pos: [3]float64{pos[0], pos[1], pos[2]}, Yaw: yaw})
			if steps%10 == 0 {
				call(protocol.OpSendChat, protocol.SendChatArgs{
					Channel: "zone",
					Text:    fmt.Sprintf("step=%d pos=(%.1f, %.1f)", steps, pos[0], pos[1]),
				})
			}

		case r := <-results:
			if !r.OK {
				logger.Printf("call %s refused: %s: %s", r.ID, r.Code, r.Message)
			}
		}
	}
}

// nextStep picks a random heading and a stride safely inside the advertised
// step limit, turning back toward the origin when a coordinate would leave
// the world bound.
func nextStep(rng *rand.Rand, pos mgl64.Vec3, params protocol.WorldParams) mgl64.Vec3 {
	stride := params.MaxMoveDistance * 0.5
	if stride <= 0 || stride > 25 {
		stride = 25
	}
	angle := rng.Float64() * 2 * math.Pi
	dist := 1 + rng.Float64()*(stride-1)
	step := mgl64.Vec3{math.Cos(angle) * dist, math.Sin(angle) * dist, 0}
	next := pos.Add(step)
	margin := params.WorldBound - stride
	for i := 0; i < 2; i++ {
		if math.Abs(next[i]) > margin {
			next[i] = pos[i] - step[i]
		}
	}
	return next
}

func readLoop(conn *websocket.Conn, logger *log.Logger, welcomed chan<- protocol.WelcomeMsg, results chan<- protocol.ResultMsg, done chan<- struct{}) {
	defer close(done)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			select {
			case welcomed <- w:
			default:
			}

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			select {
			case results <- r:
			default:
				// Bot fell behind; dropping a result only loses a log line.
			}

		case protocol.TypeEvent:
			var e protocol.EventMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			switch e.Event {
			case protocol.EventChat, protocol.EventWhisper:
				var m protocol.ChatMessageView
				if b, err := json.Marshal(e.Data); err == nil {
					_ = json.Unmarshal(b, &m)
				}
				logger.Printf("%s [%s] %s: %s", e.Event, m.Channel, m.SenderName, m.Text)
			case protocol.EventKicked:
				logger.Printf("kicked by server")
				return
			}
		}
	}
}

// await drains results until the one with the wanted id arrives, logging any
// refusals that pass by on the way.
func await(logger *log.Logger, results <-chan protocol.ResultMsg, done <-chan struct{}, id string) protocol.ResultMsg {
	for {
		select {
		case r := <-results:
			if r.ID == id {
				return r
			}
			if !r.OK {
				logger.Printf("call %s refused: %s: %s", r.ID, r.Code, r.Message)
			}
		case <-done:
			logger.Fatalf("connection closed waiting for %s", id)
		case <-time.After(10 * time.Second):
			logger.Fatalf("no result for %s within 10s", id)
		}
	}
}

func decodePlayer(data interface{}) (protocol.PlayerView, error) {
	var p protocol.PlayerView
	b, err := json.Marshal(data)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, err
	}
	return p, nil
}
