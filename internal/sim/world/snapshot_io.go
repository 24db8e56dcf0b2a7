package world

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"everdusk.gg/internal/persistence/snapshot"
)

const snapshotVersion = 1

// ExportSnapshot captures the durable state in a stable order, tagged with
// the host's operation sequence for log-tail recovery. Sessions stay out;
// recovery rebuilds them by replaying logged logins.
func (w *World) ExportSnapshot(lastOpSeq uint64, now time.Time) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     snapshotVersion,
			SavedAtUnix: now.Unix(),
			LastOpSeq:   lastOpSeq,
			Digest:      w.StateDigest(),
		},
		NextSeq: w.nextSeq,
	}

	userIDs := make([]Identity, 0, len(w.users))
	for id := range w.users {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, id := range userIDs {
		u := w.users[id]
		snap.Users = append(snap.Users, snapshot.UserV1{
			Identity:     string(u.Identity),
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			PasswordSalt: u.PasswordSalt,
			Email:        u.Email,
			CreatedAt:    u.CreatedAt,
			LastLogin:    u.LastLogin,
			Active:       u.Active,
		})
	}

	playerIDs := make([]Identity, 0, len(w.players))
	for id := range w.players {
		playerIDs = append(playerIDs, id)
	}
	sort.Slice(playerIDs, func(i, j int) bool { return playerIDs[i] < playerIDs[j] })
	for _, id := range playerIDs {
		p := w.players[id]
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			Identity:   string(p.Identity),
			Username:   p.Username,
			Pos:        [3]float64(p.Position),
			Yaw:        p.Yaw,
			Level:      p.Level,
			Experience: p.Experience,
			Health:     p.Health,
			MaxHealth:  p.MaxHealth,
			Online:     p.Online,
			LastSeen:   p.LastSeen,
			Zone:       p.Zone,
		})
	}

	for _, id := range w.NPCIDs() {
		n := w.npcs[id]
		snap.NPCs = append(snap.NPCs, snapshot.NPCV1{
			ID:        n.ID,
			Name:      n.Name,
			Kind:      n.Kind,
			Pos:       [3]float64(n.Position),
			Zone:      n.Zone,
			Health:    n.Health,
			MaxHealth: n.MaxHealth,
			State:     n.State.String(),
			DiedAt:    n.DiedAt,
		})
	}

	owners := make([]Identity, 0, len(w.slots))
	for id, inv := range w.slots {
		if len(inv) == 0 {
			continue
		}
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, owner := range owners {
		inv := w.slots[owner]
		for _, slot := range sortedSlots(inv) {
			st := inv[slot]
			snap.Slots = append(snap.Slots, snapshot.SlotV1{
				Owner:    string(owner),
				Slot:     st.Slot,
				ItemID:   st.ItemID,
				Quantity: st.Quantity,
			})
		}
	}

	skillOwners := make([]Identity, 0, len(w.skills))
	for id, sk := range w.skills {
		if len(sk) == 0 {
			continue
		}
		skillOwners = append(skillOwners, id)
	}
	sort.Slice(skillOwners, func(i, j int) bool { return skillOwners[i] < skillOwners[j] })
	for _, owner := range skillOwners {
		sk := w.skills[owner]
		names := make([]string, 0, len(sk))
		for name := range sk {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rec := sk[name]
			snap.Skills = append(snap.Skills, snapshot.SkillV1{
				Owner:      string(owner),
				Name:       rec.Name,
				Level:      rec.Level,
				Experience: rec.Experience,
				UpdatedAt:  rec.UpdatedAt,
			})
		}
	}

	channels := make([]string, 0, len(w.chat))
	for name, msgs := range w.chat {
		if len(msgs) == 0 {
			continue
		}
		channels = append(channels, name)
	}
	sort.Strings(channels)
	for _, name := range channels {
		ch := snapshot.ChannelV1{Name: name}
		for _, m := range w.chat[name] {
			ch.Messages = append(ch.Messages, snapshot.MessageV1{
				ID:         m.ID,
				Sender:     string(m.Sender),
				SenderName: m.SenderName,
				Text:       m.Text,
				SentAt:     m.SentAt,
			})
		}
		snap.Chat = append(snap.Chat, ch)
	}

	return snap
}

// ImportSnapshot replaces the world state with the snapshot contents. The
// payload is validated in full before any state changes: an unknown npc
// state name, an unknown item, or a duplicate key refuses the whole snapshot
// and leaves the world as it was.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshotVersion {
		return Validationf("unsupported snapshot version %d", snap.Header.Version)
	}

	users := make(map[Identity]*User, len(snap.Users))
	byName := make(map[string]Identity, len(snap.Users))
	for _, u := range snap.Users {
		id := Identity(u.Identity)
		if id == "" {
			return Validationf("snapshot user with empty identity")
		}
		if _, dup := users[id]; dup {
			return Validationf("snapshot user %q duplicated", u.Identity)
		}
		if _, dup := byName[u.Username]; dup {
			return Validationf("snapshot username %q duplicated", u.Username)
		}
		users[id] = &User{
			Identity:     id,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			PasswordSalt: u.PasswordSalt,
			Email:        u.Email,
			CreatedAt:    u.CreatedAt,
			LastLogin:    u.LastLogin,
			Active:       u.Active,
		}
		byName[u.Username] = id
	}

	players := make(map[Identity]*Player, len(snap.Players))
	for _, p := range snap.Players {
		id := Identity(p.Identity)
		if _, ok := users[id]; !ok {
			return Validationf("snapshot player %q has no user record", p.Identity)
		}
		if _, dup := players[id]; dup {
			return Validationf("snapshot player %q duplicated", p.Identity)
		}
		pos := mgl64.Vec3(p.Pos)
		if !finiteVec(pos) {
			return Validationf("snapshot player %q has a non-finite position", p.Identity)
		}
		players[id] = &Player{
			Identity:   id,
			Username:   p.Username,
			Position:   pos,
			Yaw:        p.Yaw,
			Level:      p.Level,
			Experience: p.Experience,
			Health:     p.Health,
			MaxHealth:  p.MaxHealth,
			Online:     p.Online,
			LastSeen:   p.LastSeen,
			Zone:       p.Zone,
		}
	}

	npcs := make(map[uint64]*NPC, len(snap.NPCs))
	for _, n := range snap.NPCs {
		state, err := ParseNPCState(n.State)
		if err != nil {
			return fmt.Errorf("snapshot npc %d: %w", n.ID, err)
		}
		if _, dup := npcs[n.ID]; dup {
			return Validationf("snapshot npc %d duplicated", n.ID)
		}
		pos := mgl64.Vec3(n.Pos)
		if !finiteVec(pos) {
			return Validationf("snapshot npc %d has a non-finite position", n.ID)
		}
		if state == StateDead && n.DiedAt.IsZero() {
			return Validationf("snapshot npc %d dead without a death time", n.ID)
		}
		npcs[n.ID] = &NPC{
			ID:        n.ID,
			Name:      n.Name,
			Kind:      n.Kind,
			Position:  pos,
			Zone:      n.Zone,
			Health:    n.Health,
			MaxHealth: n.MaxHealth,
			State:     state,
			DiedAt:    n.DiedAt,
		}
	}

	slots := make(map[Identity]map[int]*InventorySlot)
	for _, s := range snap.Slots {
		owner := Identity(s.Owner)
		if s.Slot < 0 || s.Slot > maxInventorySlot {
			return Validationf("snapshot slot %d for %q out of range", s.Slot, s.Owner)
		}
		if s.Quantity < 1 {
			return Validationf("snapshot slot %d for %q has quantity %d", s.Slot, s.Owner, s.Quantity)
		}
		if _, known := w.cats.Items.Item(s.ItemID); !known {
			return Validationf("snapshot references unknown item %q", s.ItemID)
		}
		inv := slots[owner]
		if inv == nil {
			inv = map[int]*InventorySlot{}
			slots[owner] = inv
		}
		if _, dup := inv[s.Slot]; dup {
			return Validationf("snapshot slot %d for %q duplicated", s.Slot, s.Owner)
		}
		inv[s.Slot] = &InventorySlot{Slot: s.Slot, ItemID: s.ItemID, Quantity: s.Quantity}
	}

	skills := make(map[Identity]map[string]*SkillRecord)
	for _, s := range snap.Skills {
		owner := Identity(s.Owner)
		if s.Name == "" {
			return Validationf("snapshot skill for %q with empty name", s.Owner)
		}
		if s.Level < 1 {
			return Validationf("snapshot skill %q for %q at level %d", s.Name, s.Owner, s.Level)
		}
		sk := skills[owner]
		if sk == nil {
			sk = map[string]*SkillRecord{}
			skills[owner] = sk
		}
		if _, dup := sk[s.Name]; dup {
			return Validationf("snapshot skill %q for %q duplicated", s.Name, s.Owner)
		}
		sk[s.Name] = &SkillRecord{Name: s.Name, Level: s.Level, Experience: s.Experience, UpdatedAt: s.UpdatedAt}
	}

	chat := make(map[string][]ChatMessage, len(snap.Chat))
	for _, ch := range snap.Chat {
		if _, dup := chat[ch.Name]; dup {
			return Validationf("snapshot channel %q duplicated", ch.Name)
		}
		msgs := make([]ChatMessage, 0, len(ch.Messages))
		for _, m := range ch.Messages {
			msgs = append(msgs, ChatMessage{
				ID:         m.ID,
				Channel:    ch.Name,
				Sender:     Identity(m.Sender),
				SenderName: m.SenderName,
				Text:       m.Text,
				SentAt:     m.SentAt,
			})
		}
		chat[ch.Name] = msgs
	}

	w.users = users
	w.byName = byName
	w.players = players
	w.npcs = npcs
	w.slots = slots
	w.skills = skills
	w.chat = chat
	w.sessions = map[Identity]*GameSession{}
	w.nextSeq = snap.NextSeq
	return nil
}
