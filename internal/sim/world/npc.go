package world

import (
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// SpawnNPC creates an NPC of the given kind at pos. Spawn health comes from
// the npc catalog; kinds without an entry get the default.
func (w *World) SpawnNPC(ctx Ctx, name, kind string, pos mgl64.Vec3, zone string) (NPC, error) {
	if strings.TrimSpace(name) == "" {
		return NPC{}, Validationf("NPC name cannot be empty")
	}
	if kind == "" {
		return NPC{}, Validationf("NPC kind cannot be empty")
	}
	if zone == "" {
		return NPC{}, Validationf("Invalid zone")
	}
	if err := validatePosition(pos, w.tun.Movement.WorldBound); err != nil {
		return NPC{}, err
	}

	hp := w.cats.NPCs.MaxHealth(kind)
	id := w.nextID(ctx)
	for {
		if _, exists := w.npcs[id]; !exists {
			break
		}
		id = w.nextID(ctx)
	}
	n := &NPC{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Position:  pos,
		Zone:      zone,
		Health:    hp,
		MaxHealth: hp,
		State:     StateIdle,
	}
	w.npcs[id] = n
	return *n, nil
}

// DamageNPC applies player damage to an NPC. A surviving idle NPC turns on
// its attacker; a killed NPC starts its respawn timer.
func (w *World) DamageNPC(ctx Ctx, npcID uint64, damage float64) (NPC, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return NPC{}, NotFoundf("Player not found")
	}
	if !p.Online {
		return NPC{}, Permissionf("Must be online to attack")
	}
	n, ok := w.npcs[npcID]
	if !ok {
		return NPC{}, NotFoundf("NPC not found")
	}
	if math.IsNaN(damage) || math.IsInf(damage, 0) || damage <= 0 {
		return NPC{}, Validationf("Invalid damage amount")
	}
	if n.State == StateDead {
		return NPC{}, Statef("NPC is already dead")
	}
	if p.Position.Sub(n.Position).Len() > w.tun.NPC.AttackRange {
		return NPC{}, Validationf("Too far away to attack")
	}

	n.Health = math.Max(n.Health-damage, 0)
	if n.Health <= 0 {
		n.State = StateDead
		n.DiedAt = ctx.Now
	} else if n.State == StateIdle {
		n.State = StateChasing
	}
	return *n, nil
}

// TickNPC advances a single NPC through one behavior step.
func (w *World) TickNPC(ctx Ctx, npcID uint64) (NPC, error) {
	n, ok := w.npcs[npcID]
	if !ok {
		return NPC{}, NotFoundf("NPC not found")
	}
	w.stepNPC(ctx, n)
	return *n, nil
}

// TickNPCs advances every NPC in ascending id order, so a whole-world tick is
// one deterministic operation.
func (w *World) TickNPCs(ctx Ctx) int {
	ids := w.NPCIDs()
	for _, id := range ids {
		w.stepNPC(ctx, w.npcs[id])
	}
	return len(ids)
}

// stepNPC runs one decision step. The state table reads perception first and
// moves the NPC only when the step changes its state.
func (w *World) stepNPC(ctx Ctx, n *NPC) {
	// Dead NPCs wait out the respawn timer before anything else.
	if n.State == StateDead {
		respawnAt := n.DiedAt.Add(time.Duration(w.tun.NPC.RespawnSeconds) * time.Second)
		if !ctx.Now.Before(respawnAt) {
			n.Health = n.MaxHealth
			n.DiedAt = time.Time{}
			w.transitionNPC(n, StateIdle, nil)
		}
		return
	}
	if n.Health <= 0 {
		n.State = StateDead
		if n.DiedAt.IsZero() {
			n.DiedAt = ctx.Now
		}
		return
	}

	nearby := w.playersWithin(n.Position, w.tun.NPC.PerceptionRadius)
	aggressive := w.cats.NPCs.Aggressive(n.Kind)

	next := n.State
	switch n.State {
	case StateIdle:
		switch {
		case len(nearby) == 0:
			next = StatePatrolling
		case aggressive:
			next = StateChasing
		default:
			next = StateIdle
		}
	case StatePatrolling:
		if len(nearby) > 0 && aggressive {
			next = StateChasing
		}
	case StateChasing, StateAttacking:
		switch {
		case len(nearby) == 0:
			next = StateIdle
		case n.Health < n.MaxHealth*w.tun.NPC.FleeHealthFrac:
			next = StateFleeing
		default:
			next = StateAttacking
		}
	case StateFleeing:
		if len(nearby) == 0 {
			next = StateIdle
		}
	}

	if next == n.State {
		return
	}
	w.transitionNPC(n, next, nearby)
}

// transitionNPC commits a state change and applies its movement side effect.
// nearby is sorted nearest first; chase and flee act on its head.
func (w *World) transitionNPC(n *NPC, next NPCState, nearby []*Player) {
	n.State = next
	switch next {
	case StatePatrolling:
		n.Position = patrolTarget(n.Position, w.tun.NPC.PatrolRadius)
	case StateChasing, StateAttacking:
		if len(nearby) > 0 {
			n.Position = stepToward(n.Position, nearby[0].Position, w.tun.NPC.ChaseSpeed)
		}
	case StateFleeing:
		if len(nearby) > 0 {
			n.Position = stepAway(n.Position, nearby[0].Position, w.tun.NPC.FleeSpeed)
		}
	}
}
