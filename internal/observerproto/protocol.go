// Package observerproto defines the read-only admin feed served under
// /admin/v1/observer. It is separate from the player protocol: observers
// hold no identity, take no part in the simulation, and only ever see
// aggregate state.
package observerproto

import "everdusk.gg/internal/protocol"

// Version is the observer protocol version, independent of the player
// protocol version.
const Version = "0.1"

// SubscribeMsg is the first frame on the observer socket. Re-sending it on
// an open connection adjusts the push cadence.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	IntervalMs      int    `json:"interval_ms"`
}

// BootstrapResponse answers GET /admin/v1/observer/bootstrap with enough
// context to label a dashboard before the socket opens.
type BootstrapResponse struct {
	ProtocolVersion string             `json:"protocol_version"`
	StartingZone    string             `json:"starting_zone"`
	TuningDigest    string             `json:"tuning_digest"`
	Stats           protocol.StatsView `json:"stats"`
}

// StateMsg is pushed once per interval while a subscription is open.
type StateMsg struct {
	Type       string             `json:"type"`
	SentAtUnix int64              `json:"sent_at_unix"`
	Stats      protocol.StatsView `json:"stats"`
}
