package world

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultStartingZone is used when a client joins without naming a zone.
const DefaultStartingZone = "default"

const (
	startingHealth = 100.0
	startingLevel  = 1
)

// JoinWorld places the caller's character in the world. A first join creates
// the character at the spawn point with starting stats; a returning player
// comes back online in the requested zone with position and stats untouched.
func (w *World) JoinWorld(ctx Ctx, zone string) (Player, error) {
	if _, ok := w.sessions[ctx.Caller]; !ok {
		return Player{}, Permissionf("Must be logged in to join game")
	}
	u, ok := w.users[ctx.Caller]
	if !ok {
		return Player{}, NotFoundf("User not found")
	}
	if zone == "" {
		zone = DefaultStartingZone
	}

	if p, ok := w.players[ctx.Caller]; ok {
		occupying := p.Online && p.Zone == zone
		if !occupying && w.onlineInZone(zone) >= w.tun.Sessions.MaxPlayersPerZone {
			return Player{}, Capacityf("Zone is full")
		}
		p.Online = true
		p.Zone = zone
		p.LastSeen = ctx.Now
		w.touchSession(ctx)
		return *p, nil
	}

	if w.onlineInZone(zone) >= w.tun.Sessions.MaxPlayersPerZone {
		return Player{}, Capacityf("Zone is full")
	}
	p := &Player{
		Identity:  ctx.Caller,
		Username:  u.Username,
		Level:     startingLevel,
		Health:    startingHealth,
		MaxHealth: startingHealth,
		Online:    true,
		LastSeen:  ctx.Now,
		Zone:      zone,
	}
	w.players[ctx.Caller] = p
	w.touchSession(ctx)
	return *p, nil
}

// UpdatePosition moves the caller's character. The new position must be
// finite, inside world bounds, and within the per-update step limit of the
// current position.
func (w *World) UpdatePosition(ctx Ctx, pos mgl64.Vec3, yaw float64) error {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return NotFoundf("Player not found")
	}
	if math.IsNaN(yaw) || math.IsInf(yaw, 0) {
		return Validationf("Invalid position coordinates")
	}
	if err := validatePosition(pos, w.tun.Movement.WorldBound); err != nil {
		return err
	}
	if err := validateStep(p.Position, pos, w.tun.Movement.MaxStep); err != nil {
		return err
	}
	p.Position = pos
	p.Yaw = yaw
	p.LastSeen = ctx.Now
	w.touchSession(ctx)
	return nil
}

// ChangeZone teleports the caller's character to a spawn point in another
// zone. Zone travel is exempt from the movement step limit.
func (w *World) ChangeZone(ctx Ctx, zone string, spawn mgl64.Vec3) (Player, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return Player{}, NotFoundf("Player not found")
	}
	if zone == "" {
		return Player{}, Validationf("Invalid zone")
	}
	if !finiteVec(spawn) {
		return Player{}, Validationf("Invalid spawn position")
	}
	bound := w.tun.Movement.WorldBound
	for _, c := range spawn {
		if c < -bound || c > bound {
			return Player{}, Validationf("Position outside world bounds")
		}
	}
	if p.Online && p.Zone != zone && w.onlineInZone(zone) >= w.tun.Sessions.MaxPlayersPerZone {
		return Player{}, Capacityf("Zone is full")
	}

	p.Zone = zone
	p.Position = spawn
	p.LastSeen = ctx.Now
	w.touchSession(ctx)
	return *p, nil
}

// LeaveWorld marks the caller's character offline without ending the session.
// Safe to call with no character.
func (w *World) LeaveWorld(ctx Ctx) error {
	if p, ok := w.players[ctx.Caller]; ok {
		p.Online = false
		p.LastSeen = ctx.Now
	}
	return nil
}

// PlayersInZone lists online characters in zone. The caller must have a
// character of their own to ask.
func (w *World) PlayersInZone(ctx Ctx, zone string) ([]Player, error) {
	if _, ok := w.players[ctx.Caller]; !ok {
		return nil, NotFoundf("Player not found")
	}
	var out []Player
	for _, p := range w.players {
		if p.Online && p.Zone == zone {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
