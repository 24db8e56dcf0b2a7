package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"sort"
	"time"
)

// StateDigest hashes the durable world state: accounts, characters, NPCs,
// inventories, skills, chat history, and the ID counter. Sessions are
// connection-scoped and stay out, so digests are comparable across restarts
// and replays.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	w.digestUsers(h, &tmp)
	w.digestPlayers(h, &tmp)
	w.digestNPCs(h, &tmp)
	w.digestInventories(h, &tmp)
	w.digestSkills(h, &tmp)
	w.digestChat(h, &tmp)
	digestWriteU64(h, &tmp, w.nextSeq)

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, f float64) {
	digestWriteU64(h, tmp, math.Float64bits(f))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	io.WriteString(h, s)
}

func digestWriteTime(h hashWriter, tmp *[8]byte, t time.Time) {
	if t.IsZero() {
		digestWriteU64(h, tmp, 0)
		return
	}
	digestWriteU64(h, tmp, uint64(t.UnixNano()))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (w *World) digestUsers(h hashWriter, tmp *[8]byte) {
	ids := make([]Identity, 0, len(w.users))
	for id := range w.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		u := w.users[id]
		digestWriteString(h, tmp, string(u.Identity))
		digestWriteString(h, tmp, u.Username)
		digestWriteString(h, tmp, u.PasswordHash)
		digestWriteString(h, tmp, u.PasswordSalt)
		digestWriteString(h, tmp, u.Email)
		digestWriteTime(h, tmp, u.CreatedAt)
		digestWriteTime(h, tmp, u.LastLogin)
		h.Write([]byte{boolByte(u.Active)})
	}
}

func (w *World) digestPlayers(h hashWriter, tmp *[8]byte) {
	ids := make([]Identity, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		p := w.players[id]
		digestWriteString(h, tmp, string(p.Identity))
		digestWriteString(h, tmp, p.Username)
		for _, c := range p.Position {
			digestWriteF64(h, tmp, c)
		}
		digestWriteF64(h, tmp, p.Yaw)
		digestWriteU64(h, tmp, uint64(p.Level))
		digestWriteU64(h, tmp, p.Experience)
		digestWriteF64(h, tmp, p.Health)
		digestWriteF64(h, tmp, p.MaxHealth)
		h.Write([]byte{boolByte(p.Online)})
		digestWriteTime(h, tmp, p.LastSeen)
		digestWriteString(h, tmp, p.Zone)
	}
}

func (w *World) digestNPCs(h hashWriter, tmp *[8]byte) {
	ids := w.NPCIDs()
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		n := w.npcs[id]
		digestWriteU64(h, tmp, n.ID)
		digestWriteString(h, tmp, n.Name)
		digestWriteString(h, tmp, n.Kind)
		for _, c := range n.Position {
			digestWriteF64(h, tmp, c)
		}
		digestWriteString(h, tmp, n.Zone)
		digestWriteF64(h, tmp, n.Health)
		digestWriteF64(h, tmp, n.MaxHealth)
		h.Write([]byte{byte(n.State)})
		digestWriteTime(h, tmp, n.DiedAt)
	}
}

func (w *World) digestInventories(h hashWriter, tmp *[8]byte) {
	owners := make([]Identity, 0, len(w.slots))
	for id, inv := range w.slots {
		if len(inv) == 0 {
			continue
		}
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	digestWriteU64(h, tmp, uint64(len(owners)))
	for _, owner := range owners {
		inv := w.slots[owner]
		digestWriteString(h, tmp, string(owner))
		slots := sortedSlots(inv)
		digestWriteU64(h, tmp, uint64(len(slots)))
		for _, slot := range slots {
			st := inv[slot]
			digestWriteU64(h, tmp, uint64(slot))
			digestWriteString(h, tmp, st.ItemID)
			digestWriteU64(h, tmp, uint64(st.Quantity))
		}
	}
}

func (w *World) digestSkills(h hashWriter, tmp *[8]byte) {
	owners := make([]Identity, 0, len(w.skills))
	for id, sk := range w.skills {
		if len(sk) == 0 {
			continue
		}
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	digestWriteU64(h, tmp, uint64(len(owners)))
	for _, owner := range owners {
		sk := w.skills[owner]
		digestWriteString(h, tmp, string(owner))
		names := make([]string, 0, len(sk))
		for name := range sk {
			names = append(names, name)
		}
		sort.Strings(names)
		digestWriteU64(h, tmp, uint64(len(names)))
		for _, name := range names {
			rec := sk[name]
			digestWriteString(h, tmp, rec.Name)
			digestWriteU64(h, tmp, uint64(rec.Level))
			digestWriteU64(h, tmp, rec.Experience)
			digestWriteTime(h, tmp, rec.UpdatedAt)
		}
	}
}

func (w *World) digestChat(h hashWriter, tmp *[8]byte) {
	channels := make([]string, 0, len(w.chat))
	for name, msgs := range w.chat {
		if len(msgs) == 0 {
			continue
		}
		channels = append(channels, name)
	}
	sort.Strings(channels)
	digestWriteU64(h, tmp, uint64(len(channels)))
	for _, name := range channels {
		digestWriteString(h, tmp, name)
		msgs := w.chat[name]
		digestWriteU64(h, tmp, uint64(len(msgs)))
		for _, m := range msgs {
			digestWriteU64(h, tmp, m.ID)
			digestWriteString(h, tmp, string(m.Sender))
			digestWriteString(h, tmp, m.SenderName)
			digestWriteString(h, tmp, m.Text)
			digestWriteTime(h, tmp, m.SentAt)
		}
	}
}
