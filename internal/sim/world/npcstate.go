package world

// NPCState is the closed set of behavior states. It is stored natively, never
// as a free-form string, so an unknown state cannot enter the world.
type NPCState uint8

const (
	StateIdle NPCState = iota
	StatePatrolling
	StateChasing
	StateAttacking
	StateFleeing
	StateDead
)

var npcStateNames = [...]string{
	StateIdle:       "idle",
	StatePatrolling: "patrolling",
	StateChasing:    "chasing",
	StateAttacking:  "attacking",
	StateFleeing:    "fleeing",
	StateDead:       "dead",
}

func (s NPCState) String() string {
	if int(s) < len(npcStateNames) {
		return npcStateNames[s]
	}
	return "unknown"
}

// Valid reports whether s is a member of the closed state set.
func (s NPCState) Valid() bool {
	return int(s) < len(npcStateNames)
}

// ParseNPCState decodes a wire or snapshot state name. Unknown names are a
// hard error; callers must refuse the containing payload rather than coerce.
func ParseNPCState(name string) (NPCState, error) {
	for i, n := range npcStateNames {
		if n == name {
			return NPCState(i), nil
		}
	}
	return 0, Validationf("unknown npc state %q", name)
}
