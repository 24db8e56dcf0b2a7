// Package world holds the authoritative game state and every rule that may
// change it. The package is deliberately inert: no goroutines, no clocks, no
// IO. Each operation takes a Ctx carrying the caller identity and the host's
// timestamp, validates fully before touching state, and either commits the
// whole change or returns a typed error leaving state untouched. Running the
// same operations with the same contexts against the same starting state
// always produces the same final state.
package world

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
)

// World is the single mutable simulation state. It is not safe for concurrent
// use: the host must serialize all calls.
type World struct {
	cats *catalogs.Catalogs
	tun  tuning.Tuning

	users    map[Identity]*User
	byName   map[string]Identity
	sessions map[Identity]*GameSession
	players  map[Identity]*Player
	npcs     map[uint64]*NPC
	slots    map[Identity]map[int]*InventorySlot
	skills   map[Identity]map[string]*SkillRecord
	chat     map[string][]ChatMessage

	// nextSeq feeds derived IDs. It is part of the digested state so a replay
	// reproduces the same IDs.
	nextSeq uint64
}

func New(cats *catalogs.Catalogs, tun tuning.Tuning) *World {
	return &World{
		cats:     cats,
		tun:      tun,
		users:    map[Identity]*User{},
		byName:   map[string]Identity{},
		sessions: map[Identity]*GameSession{},
		players:  map[Identity]*Player{},
		npcs:     map[uint64]*NPC{},
		slots:    map[Identity]map[int]*InventorySlot{},
		skills:   map[Identity]map[string]*SkillRecord{},
		chat:     map[string][]ChatMessage{},
	}
}

// Tuning returns the tuning the world was built with.
func (w *World) Tuning() tuning.Tuning { return w.tun }

// Catalogs returns the catalogs the world was built with.
func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

// nextID derives a fresh entity ID from the call context and a state-owned
// counter. IDs are stable across replays of the same operation log.
func (w *World) nextID(ctx Ctx) uint64 {
	w.nextSeq++
	h := sha256.New()
	io.WriteString(h, string(ctx.Caller))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ctx.Now.UnixNano()))
	h.Write(b[:])
	binary.BigEndian.PutUint64(b[:], w.nextSeq)
	h.Write(b[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// playersWithin returns online players within radius of pos, nearest first.
// Ties break on identity so the ordering is total.
func (w *World) playersWithin(pos mgl64.Vec3, radius float64) []*Player {
	var near []*Player
	for _, p := range w.players {
		if !p.Online {
			continue
		}
		if p.Position.Sub(pos).Len() <= radius {
			near = append(near, p)
		}
	}
	sort.Slice(near, func(i, j int) bool {
		di := near[i].Position.Sub(pos).Len()
		dj := near[j].Position.Sub(pos).Len()
		if di != dj {
			return di < dj
		}
		return near[i].Identity < near[j].Identity
	})
	return near
}

func (w *World) onlineInZone(zone string) int {
	n := 0
	for _, p := range w.players {
		if p.Online && p.Zone == zone {
			n++
		}
	}
	return n
}

// IdentityByName resolves a username to its account identity.
func (w *World) IdentityByName(username string) (Identity, bool) {
	id, ok := w.byName[username]
	return id, ok
}

// UserView returns a copy of the account for id.
func (w *World) UserView(id Identity) (User, bool) {
	u, ok := w.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// PlayerView returns a copy of the character for id.
func (w *World) PlayerView(id Identity) (Player, bool) {
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// SessionView returns a copy of the live session for id.
func (w *World) SessionView(id Identity) (GameSession, bool) {
	s, ok := w.sessions[id]
	if !ok {
		return GameSession{}, false
	}
	return *s, true
}

// NPCView returns a copy of the NPC with the given id.
func (w *World) NPCView(id uint64) (NPC, bool) {
	n, ok := w.npcs[id]
	if !ok {
		return NPC{}, false
	}
	return *n, true
}

// NPCIDs returns all NPC ids in ascending order.
func (w *World) NPCIDs() []uint64 {
	ids := make([]uint64, 0, len(w.npcs))
	for id := range w.npcs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SessionIdentities returns the identities of all live sessions sorted.
func (w *World) SessionIdentities() []Identity {
	ids := make([]Identity, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats summarizes world population for operators.
type Stats struct {
	Users          int
	Sessions       int
	Players        int
	OnlinePlayers  int
	NPCs           int
	LiveNPCs       int
	ChatChannels   int
	ChatMessages   int
	InventoryRows  int
	SkillRows      int
	DerivedIDsUsed uint64
}

// WorldStats gathers population counters. Read-only.
func (w *World) WorldStats() Stats {
	st := Stats{
		Users:          len(w.users),
		Sessions:       len(w.sessions),
		Players:        len(w.players),
		NPCs:           len(w.npcs),
		ChatChannels:   len(w.chat),
		DerivedIDsUsed: w.nextSeq,
	}
	for _, p := range w.players {
		if p.Online {
			st.OnlinePlayers++
		}
	}
	for _, n := range w.npcs {
		if n.State != StateDead {
			st.LiveNPCs++
		}
	}
	for _, msgs := range w.chat {
		st.ChatMessages += len(msgs)
	}
	for _, inv := range w.slots {
		st.InventoryRows += len(inv)
	}
	for _, sk := range w.skills {
		st.SkillRows += len(sk)
	}
	return st
}
