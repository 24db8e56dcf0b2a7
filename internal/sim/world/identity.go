package world

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Identity is an opaque caller identity asserted by the transport layer.
// The world keys state by identities but never mints one itself.
type Identity string

// Ctx is the trusted call context the host supplies to every operation:
// who is acting and the authoritative timestamp of the call. Operations use
// ctx.Now for all time-based logic and never read a wall clock.
type Ctx struct {
	Caller Identity
	Now    time.Time
}

// DeriveIdentity maps a client-presented token to a stable identity, so a
// reconnecting client resumes the same account.
func DeriveIdentity(token string) Identity {
	sum := sha256.Sum256([]byte(token))
	return Identity(hex.EncodeToString(sum[:]))
}
