// Package snapshot persists full world state as a zstd-compressed file: one
// JSON header line for quick inspection, then a gob body carrying the state.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version     int    `json:"version"`
	SavedAtUnix int64  `json:"saved_at_unix"`
	LastOpSeq   uint64 `json:"last_op_seq"`
	Digest      string `json:"digest"`
}

// SnapshotV1 is the durable world state. Sessions are deliberately absent:
// they are connection-scoped, and recovery rebuilds them by replaying the
// operation log tail.
type SnapshotV1 struct {
	Header Header `json:"header"`

	NextSeq uint64 `json:"next_seq"`

	Users   []UserV1    `json:"users"`
	Players []PlayerV1  `json:"players"`
	NPCs    []NPCV1     `json:"npcs"`
	Slots   []SlotV1    `json:"slots"`
	Skills  []SkillV1   `json:"skills"`
	Chat    []ChannelV1 `json:"chat"`
}

type UserV1 struct {
	Identity     string    `json:"identity"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	PasswordSalt string    `json:"password_salt"`
	Email        string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
	Active       bool      `json:"active"`
}

type PlayerV1 struct {
	Identity   string     `json:"identity"`
	Username   string     `json:"username"`
	Pos        [3]float64 `json:"pos"`
	Yaw        float64    `json:"yaw"`
	Level      int        `json:"level"`
	Experience uint64     `json:"experience"`
	Health     float64    `json:"health"`
	MaxHealth  float64    `json:"max_health"`
	Online     bool       `json:"online"`
	LastSeen   time.Time  `json:"last_seen"`
	Zone       string     `json:"zone"`
}

type NPCV1 struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Pos       [3]float64 `json:"pos"`
	Zone      string     `json:"zone"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	State     string     `json:"state"`
	DiedAt    time.Time  `json:"died_at,omitempty"`
}

type SlotV1 struct {
	Owner    string `json:"owner"`
	Slot     int    `json:"slot"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type SkillV1 struct {
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	Level      int       `json:"level"`
	Experience uint64    `json:"experience"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ChannelV1 struct {
	Name     string      `json:"name"`
	Messages []MessageV1 `json:"messages"`
}

type MessageV1 struct {
	ID         uint64    `json:"id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line, cheap enough to scan a
// directory of snapshots.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
