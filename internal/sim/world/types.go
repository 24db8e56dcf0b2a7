package world

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// User is a registered account. Accounts persist across connections and are
// keyed by the identity the transport derived for the client.
type User struct {
	Identity     Identity
	Username     string
	PasswordHash string
	PasswordSalt string
	Email        string
	CreatedAt    time.Time
	LastLogin    time.Time
	Active       bool
}

// GameSession is the live connection state for a logged-in user. Sessions are
// owned by the world but are transient: they never enter snapshots or digests.
type GameSession struct {
	Identity      Identity
	ConnectionID  string
	LoginTime     time.Time
	LastActivity  time.Time
	ClientVersion string
	RemoteAddr    string
}

// Player is a character in the game world.
type Player struct {
	Identity   Identity
	Username   string
	Position   mgl64.Vec3
	Yaw        float64
	Level      int
	Experience uint64
	Health     float64
	MaxHealth  float64
	Online     bool
	LastSeen   time.Time
	Zone       string
}

// NPC is a server-driven actor. DiedAt is the zero time unless the NPC is
// dead, in which case it records the moment of death for respawn timing.
type NPC struct {
	ID        uint64
	Name      string
	Kind      string
	Position  mgl64.Vec3
	Zone      string
	Health    float64
	MaxHealth float64
	State     NPCState
	DiedAt    time.Time
}

// InventorySlot is one stack of a single item kind.
type InventorySlot struct {
	Slot     int
	ItemID   string
	Quantity int
}

// SkillRecord tracks one skill's progression for one player.
type SkillRecord struct {
	Name       string
	Level      int
	Experience uint64
	UpdatedAt  time.Time
}

// ChatMessage is a delivered chat line. Whisper messages live in a per-pair
// directional channel and never appear in the public channels.
type ChatMessage struct {
	ID         uint64
	Channel    string
	Sender     Identity
	SenderName string
	Text       string
	SentAt     time.Time
}
