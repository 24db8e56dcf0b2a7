package world

import (
	"sort"
	"time"
)

// Heartbeat refreshes the caller's session and, if their character is in the
// world, its activity stamp.
func (w *World) Heartbeat(ctx Ctx) error {
	s, ok := w.sessions[ctx.Caller]
	if !ok {
		return NotFoundf("No active session found")
	}
	s.LastActivity = ctx.Now
	if p, ok := w.players[ctx.Caller]; ok && p.Online {
		p.LastSeen = ctx.Now
	}
	return nil
}

// touchSession refreshes activity when a session exists. Operations that
// imply the player is alive call this after their own work.
func (w *World) touchSession(ctx Ctx) {
	if s, ok := w.sessions[ctx.Caller]; ok {
		s.LastActivity = ctx.Now
	}
}

// Disconnect handles a dropped connection. Only the session bound to that
// exact connection is closed; a session already re-bound by a newer login
// survives its predecessor's teardown.
func (w *World) Disconnect(ctx Ctx, connectionID string) error {
	s, ok := w.sessions[ctx.Caller]
	if !ok || s.ConnectionID != connectionID {
		return nil
	}
	delete(w.sessions, ctx.Caller)
	if p, ok := w.players[ctx.Caller]; ok {
		p.Online = false
		p.LastSeen = ctx.Now
	}
	return nil
}

// CleanupInactiveSessions removes sessions idle past the inactivity timeout
// and marks their characters offline. The identities cleaned are returned in
// a stable order.
func (w *World) CleanupInactiveSessions(ctx Ctx) []Identity {
	cutoff := ctx.Now.Add(-time.Duration(w.tun.Sessions.InactivitySeconds) * time.Second)
	var expired []Identity
	for id, s := range w.sessions {
		if s.LastActivity.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	for _, id := range expired {
		if p, ok := w.players[id]; ok {
			p.Online = false
			p.LastSeen = ctx.Now
		}
		delete(w.sessions, id)
	}
	return expired
}
