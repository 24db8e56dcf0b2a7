package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	BehaviorTickMs   int `yaml:"behavior_tick_ms"`
	CleanupIntervalS int `yaml:"cleanup_interval_s"`
	SnapshotEveryMin int `yaml:"snapshot_every_min"`

	NPC      NPCTuning      `yaml:"npc"`
	Movement MovementTuning `yaml:"movement"`
	Sessions SessionTuning  `yaml:"sessions"`
	Chat     ChatTuning     `yaml:"chat"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type NPCTuning struct {
	PerceptionRadius float64 `yaml:"perception_radius"`
	AttackRange      float64 `yaml:"attack_range"`
	ChaseSpeed       float64 `yaml:"chase_speed"`
	FleeSpeed        float64 `yaml:"flee_speed"`
	FleeHealthFrac   float64 `yaml:"flee_health_frac"`
	PatrolRadius     float64 `yaml:"patrol_radius"`
	RespawnSeconds   int     `yaml:"respawn_seconds"`
}

type MovementTuning struct {
	MaxStep    float64 `yaml:"max_step"`
	WorldBound float64 `yaml:"world_bound"`
}

type SessionTuning struct {
	HeartbeatSeconds  int `yaml:"heartbeat_seconds"`
	InactivitySeconds int `yaml:"inactivity_seconds"`
	MaxPlayersPerZone int `yaml:"max_players_per_zone"`
}

type ChatTuning struct {
	MaxMessageLen     int `yaml:"max_message_len"`
	HistoryPerChannel int `yaml:"history_per_channel"`
}

type RateLimits struct {
	CallsPerSecond int `yaml:"calls_per_second"`
	Burst          int `yaml:"burst"`
}

// Default returns the baseline tuning the server ships with. Load starts from
// these values, so a tuning.yaml only needs the fields it overrides.
func Default() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",

		BehaviorTickMs:   1000,
		CleanupIntervalS: 60,
		SnapshotEveryMin: 5,

		NPC: NPCTuning{
			PerceptionRadius: 10.0,
			AttackRange:      5.0,
			ChaseSpeed:       2.0,
			FleeSpeed:        3.0,
			FleeHealthFrac:   0.2,
			PatrolRadius:     5.0,
			RespawnSeconds:   30,
		},
		Movement: MovementTuning{
			MaxStep:    50.0,
			WorldBound: 10000.0,
		},
		Sessions: SessionTuning{
			HeartbeatSeconds:  30,
			InactivitySeconds: 300,
			MaxPlayersPerZone: 2000,
		},
		Chat: ChatTuning{
			MaxMessageLen:     500,
			HistoryPerChannel: 100,
		},
		RateLimits: RateLimits{
			CallsPerSecond: 30,
			Burst:          30,
		},
	}
}

// Digest fingerprints the applied tuning values. It appears in the WELCOME
// frame and in the index, so a client or operator can spot config drift
// without diffing files.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) validate() error {
	if t.BehaviorTickMs <= 0 {
		return fmt.Errorf("tuning.yaml: behavior_tick_ms must be positive")
	}
	if t.NPC.PerceptionRadius <= 0 {
		return fmt.Errorf("tuning.yaml: npc.perception_radius must be positive")
	}
	if t.NPC.FleeHealthFrac <= 0 || t.NPC.FleeHealthFrac >= 1 {
		return fmt.Errorf("tuning.yaml: npc.flee_health_frac must be in (0,1)")
	}
	if t.Movement.MaxStep <= 0 {
		return fmt.Errorf("tuning.yaml: movement.max_step must be positive")
	}
	if t.Movement.WorldBound <= 0 {
		return fmt.Errorf("tuning.yaml: movement.world_bound must be positive")
	}
	if t.Sessions.InactivitySeconds <= 0 {
		return fmt.Errorf("tuning.yaml: sessions.inactivity_seconds must be positive")
	}
	if t.Chat.MaxMessageLen <= 0 {
		return fmt.Errorf("tuning.yaml: chat.max_message_len must be positive")
	}
	return nil
}
