package engine

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/world"
)

// defaultHistoryLimit is used when a chat history query leaves limit unset.
const defaultHistoryLimit = 20

// applyFunc runs one decoded operation against the world and returns the
// payload for the RESULT frame.
type applyFunc func(w *world.World, ctx world.Ctx, args any) (any, error)

// applyDispatch is the closed operation table. Ops are added here and to
// protocol.SupportedOps together; New refuses to start when the two drift.
var applyDispatch = map[string]applyFunc{
	protocol.OpRegister: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.RegisterArgs)
		return nil, w.Register(ctx, a.Username, a.Password, a.Email)
	},
	protocol.OpLogin: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.LoginArgs)
		return nil, w.Login(ctx, a.Username, a.Password, a.ClientVersion, a.ConnectionID, a.RemoteAddr)
	},
	protocol.OpLogout: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		return nil, w.Logout(ctx)
	},
	protocol.OpHeartbeat: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		return nil, w.Heartbeat(ctx)
	},
	protocol.OpDisconnect: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.DisconnectArgs)
		return nil, w.Disconnect(ctx, a.ConnectionID)
	},
	protocol.OpJoinWorld: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.JoinWorldArgs)
		p, err := w.JoinWorld(ctx, a.Zone)
		if err != nil {
			return nil, err
		}
		return playerView(p), nil
	},
	protocol.OpUpdatePosition: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.UpdatePositionArgs)
		return nil, w.UpdatePosition(ctx, mgl64.Vec3(a.Pos), a.Yaw)
	},
	protocol.OpChangeZone: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.ChangeZoneArgs)
		p, err := w.ChangeZone(ctx, a.Zone, mgl64.Vec3(a.Spawn))
		if err != nil {
			return nil, err
		}
		return playerView(p), nil
	},
	protocol.OpLeaveWorld: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		return nil, w.LeaveWorld(ctx)
	},
	protocol.OpPlayersInZone: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.PlayersInZoneArgs)
		ps, err := w.PlayersInZone(ctx, a.Zone)
		if err != nil {
			return nil, err
		}
		return playerViews(ps), nil
	},
	protocol.OpSpawnNPC: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.SpawnNPCArgs)
		n, err := w.SpawnNPC(ctx, a.Name, a.Kind, mgl64.Vec3(a.Pos), a.Zone)
		if err != nil {
			return nil, err
		}
		return npcView(n), nil
	},
	protocol.OpTickNPC: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.TickNPCArgs)
		n, err := w.TickNPC(ctx, a.NPCID)
		if err != nil {
			return nil, err
		}
		return npcView(n), nil
	},
	protocol.OpTickNPCs: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		return protocol.TickSummaryView{Ticked: w.TickNPCs(ctx)}, nil
	},
	protocol.OpDamageNPC: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.DamageNPCArgs)
		n, err := w.DamageNPC(ctx, a.NPCID, a.Amount)
		if err != nil {
			return nil, err
		}
		return npcView(n), nil
	},
	protocol.OpGrantItem: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.GrantItemArgs)
		return nil, w.GrantItem(ctx, a.Username, a.ItemID, a.Quantity)
	},
	protocol.OpRemoveItem: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.RemoveItemArgs)
		return nil, w.RemoveItem(ctx, a.ItemID, a.Quantity)
	},
	protocol.OpUseItem: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.UseItemArgs)
		p, err := w.UseItem(ctx, a.ItemID)
		if err != nil {
			return nil, err
		}
		return playerView(p), nil
	},
	protocol.OpInventory: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		slots, err := w.Inventory(ctx)
		if err != nil {
			return nil, err
		}
		return slotViews(slots), nil
	},
	protocol.OpGainSkillExperience: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.GainSkillExperienceArgs)
		rec, err := w.GainSkillExperience(ctx, a.Skill, a.Amount)
		if err != nil {
			return nil, err
		}
		return skillView(rec), nil
	},
	protocol.OpSkills: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		recs, err := w.Skills(ctx)
		if err != nil {
			return nil, err
		}
		return skillViews(recs), nil
	},
	protocol.OpSendChat: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.SendChatArgs)
		msg, err := w.SendChat(ctx, a.Channel, a.Text)
		if err != nil {
			return nil, err
		}
		return chatView(msg), nil
	},
	protocol.OpSendWhisper: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.SendWhisperArgs)
		msg, err := w.SendWhisper(ctx, a.To, a.Text)
		if err != nil {
			return nil, err
		}
		return chatView(msg), nil
	},
	protocol.OpRecentChat: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.RecentChatArgs)
		limit := a.Limit
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		msgs, err := w.RecentChat(ctx, a.Channel, limit)
		if err != nil {
			return nil, err
		}
		return chatViews(msgs), nil
	},
	protocol.OpWhisperHistory: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		a := args.(*protocol.WhisperHistoryArgs)
		limit := a.Limit
		if limit == 0 {
			limit = defaultHistoryLimit
		}
		msgs, err := w.WhisperHistory(ctx, a.With, limit)
		if err != nil {
			return nil, err
		}
		return chatViews(msgs), nil
	},
	protocol.OpCleanupSessions: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		removed := w.CleanupInactiveSessions(ctx)
		return protocol.CleanupSummaryView{Removed: identityStrings(removed)}, nil
	},
	protocol.OpStats: func(w *world.World, ctx world.Ctx, args any) (any, error) {
		// LastOpSeq and Digest are filled in by the host; the world does not
		// know its own log position.
		return statsView(w.WorldStats()), nil
	},
}

// queryOps are read-only operations. They are answered directly and never
// enter the oplog.
var queryOps = map[string]bool{
	protocol.OpPlayersInZone:  true,
	protocol.OpInventory:      true,
	protocol.OpSkills:         true,
	protocol.OpRecentChat:     true,
	protocol.OpWhisperHistory: true,
	protocol.OpStats:          true,
}

// Apply runs one operation against w. The live loop and log replay both go
// through this single dispatch point, so a logged call replays exactly.
func Apply(w *world.World, ctx world.Ctx, op string, args any) (any, error) {
	h, ok := applyDispatch[op]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", op)
	}
	return h(w, ctx, args)
}

func validateApplyDispatch() error {
	if err := validateDispatchMap("applyDispatch", applyDispatch, protocol.SupportedOps); err != nil {
		return err
	}
	for op := range queryOps {
		if _, ok := applyDispatch[op]; !ok {
			return fmt.Errorf("queryOps has unsupported key %q", op)
		}
	}
	return nil
}

func validateDispatchMap[T any](name string, handlers map[string]T, supported []string) error {
	allowed := make(map[string]struct{}, len(supported))
	for _, k := range supported {
		if k == "" {
			return fmt.Errorf("%s: empty supported key", name)
		}
		if _, ok := allowed[k]; ok {
			return fmt.Errorf("%s: duplicate supported key %q", name, k)
		}
		allowed[k] = struct{}{}
	}
	if len(handlers) != len(allowed) {
		return fmt.Errorf("%s size mismatch: got=%d want=%d", name, len(handlers), len(allowed))
	}
	for k := range handlers {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%s has unsupported key %q", name, k)
		}
	}
	for k := range allowed {
		if _, ok := handlers[k]; !ok {
			return fmt.Errorf("%s missing key %q", name, k)
		}
	}
	return nil
}
