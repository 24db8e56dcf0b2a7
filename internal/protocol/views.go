package protocol

// Wire views for RESULT data payloads. The engine builds these from world
// state; password material and session internals never appear here.

type PlayerView struct {
	Identity   string     `json:"identity"`
	Username   string     `json:"username"`
	Pos        [3]float64 `json:"pos"`
	Yaw        float64    `json:"yaw"`
	Level      int        `json:"level"`
	Experience uint64     `json:"experience"`
	Health     float64    `json:"health"`
	MaxHealth  float64    `json:"max_health"`
	Online     bool       `json:"online"`
	Zone       string     `json:"zone"`
}

type NPCView struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Pos       [3]float64 `json:"pos"`
	Zone      string     `json:"zone"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	State     string     `json:"state"`
}

type SlotView struct {
	Slot     int    `json:"slot"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type SkillView struct {
	Name       string `json:"name"`
	Level      int    `json:"level"`
	Experience uint64 `json:"experience"`
}

type ChatMessageView struct {
	ID         uint64 `json:"id"`
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	SentAtUnix int64  `json:"sent_at_unix"`
}

// TickSummaryView reports how many NPCs a behavior sweep advanced.
type TickSummaryView struct {
	Ticked int `json:"ticked"`
}

// CleanupSummaryView lists the identities whose idle sessions were removed.
type CleanupSummaryView struct {
	Removed []string `json:"removed"`
}

type StatsView struct {
	Users         int    `json:"users"`
	Sessions      int    `json:"sessions"`
	Players       int    `json:"players"`
	OnlinePlayers int    `json:"online_players"`
	NPCs          int    `json:"npcs"`
	LiveNPCs      int    `json:"live_npcs"`
	ChatChannels  int    `json:"chat_channels"`
	ChatMessages  int    `json:"chat_messages"`
	InventoryRows int    `json:"inventory_rows"`
	SkillRows     int    `json:"skill_rows"`
	LastOpSeq     uint64 `json:"last_op_seq"`
	Digest        string `json:"digest"`
}
