package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientVersion   string     `json:"client_version,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

// HelloAuth carries the resume token from an earlier WELCOME. Without one
// the server mints a fresh identity for the connection.
type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Identity        string         `json:"identity"`
	ResumeToken     string         `json:"resume_token"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

// WorldParams are the movement and session limits the server enforces, so a
// client can stay inside them instead of discovering each by refusal.
type WorldParams struct {
	StartingZone      string  `json:"starting_zone"`
	WorldBound        float64 `json:"world_bound"`
	MaxMoveDistance   float64 `json:"max_move_distance"`
	HeartbeatSeconds  int     `json:"heartbeat_seconds"`
	InactivitySeconds int     `json:"inactivity_seconds"`
	MaxMessageLen     int     `json:"max_message_len"`
}

type CatalogDigests struct {
	Items        DigestRef `json:"items"`
	NPCs         DigestRef `json:"npcs"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// RESULT (server -> client): outcome of one CALL, matched by id.
type ResultMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ID              string      `json:"id"`
	OK              bool        `json:"ok"`
	Code            string      `json:"code,omitempty"`
	Message         string      `json:"message,omitempty"`
	Data            interface{} `json:"data,omitempty"`
	Seq             uint64      `json:"seq,omitempty"`
}

// EVENT (server -> client): unsolicited push.
type EventMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Event           string      `json:"event"`
	Data            interface{} `json:"data,omitempty"`
}

// Event names.
const (
	EventChat    = "chat"
	EventWhisper = "whisper"
	EventKicked  = "kicked"
)
