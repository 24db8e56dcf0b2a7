package engine

import (
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/world"
)

func playerView(p world.Player) protocol.PlayerView {
	return protocol.PlayerView{
		Identity:   string(p.Identity),
		Username:   p.Username,
		Pos:        [3]float64(p.Position),
		Yaw:        p.Yaw,
		Level:      p.Level,
		Experience: p.Experience,
		Health:     p.Health,
		MaxHealth:  p.MaxHealth,
		Online:     p.Online,
		Zone:       p.Zone,
	}
}

func playerViews(ps []world.Player) []protocol.PlayerView {
	out := make([]protocol.PlayerView, len(ps))
	for i, p := range ps {
		out[i] = playerView(p)
	}
	return out
}

func npcView(n world.NPC) protocol.NPCView {
	return protocol.NPCView{
		ID:        n.ID,
		Name:      n.Name,
		Kind:      n.Kind,
		Pos:       [3]float64(n.Position),
		Zone:      n.Zone,
		Health:    n.Health,
		MaxHealth: n.MaxHealth,
		State:     n.State.String(),
	}
}

func slotViews(slots []world.InventorySlot) []protocol.SlotView {
	out := make([]protocol.SlotView, len(slots))
	for i, s := range slots {
		out[i] = protocol.SlotView{Slot: s.Slot, ItemID: s.ItemID, Quantity: s.Quantity}
	}
	return out
}

func skillView(r world.SkillRecord) protocol.SkillView {
	return protocol.SkillView{Name: r.Name, Level: r.Level, Experience: r.Experience}
}

func skillViews(recs []world.SkillRecord) []protocol.SkillView {
	out := make([]protocol.SkillView, len(recs))
	for i, r := range recs {
		out[i] = skillView(r)
	}
	return out
}

func chatView(m world.ChatMessage) protocol.ChatMessageView {
	return protocol.ChatMessageView{
		ID:         m.ID,
		Channel:    m.Channel,
		Sender:     string(m.Sender),
		SenderName: m.SenderName,
		Text:       m.Text,
		SentAtUnix: m.SentAt.Unix(),
	}
}

func chatViews(msgs []world.ChatMessage) []protocol.ChatMessageView {
	out := make([]protocol.ChatMessageView, len(msgs))
	for i, m := range msgs {
		out[i] = chatView(m)
	}
	return out
}

func statsView(st world.Stats) protocol.StatsView {
	return protocol.StatsView{
		Users:         st.Users,
		Sessions:      st.Sessions,
		Players:       st.Players,
		OnlinePlayers: st.OnlinePlayers,
		NPCs:          st.NPCs,
		LiveNPCs:      st.LiveNPCs,
		ChatChannels:  st.ChatChannels,
		ChatMessages:  st.ChatMessages,
		InventoryRows: st.InventoryRows,
		SkillRows:     st.SkillRows,
	}
}

func identityStrings(ids []world.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
