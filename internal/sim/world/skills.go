package world

import (
	"math"
	"sort"
	"strings"
)

// requiredExperience is the pool needed to advance from level to level+1.
func requiredExperience(level int) uint64 {
	return uint64(float64(level) * 100 * math.Pow(1.2, float64(level)))
}

// GainSkillExperience adds experience to one of the caller's skills, creating
// it at level 1 on first use. Level-ups cascade while the pool covers the
// next requirement, carrying the remainder forward.
func (w *World) GainSkillExperience(ctx Ctx, skillName string, amount uint64) (SkillRecord, error) {
	if _, ok := w.players[ctx.Caller]; !ok {
		return SkillRecord{}, NotFoundf("Player not found")
	}
	name := strings.TrimSpace(skillName)
	if name == "" {
		return SkillRecord{}, Validationf("Skill name cannot be empty")
	}

	sk := w.skills[ctx.Caller]
	if sk == nil {
		sk = map[string]*SkillRecord{}
		w.skills[ctx.Caller] = sk
	}
	rec, ok := sk[name]
	if !ok {
		rec = &SkillRecord{Name: name, Level: 1}
		sk[name] = rec
	}

	rec.Experience += amount
	for {
		need := requiredExperience(rec.Level)
		if rec.Experience < need {
			break
		}
		rec.Experience -= need
		rec.Level++
	}
	rec.UpdatedAt = ctx.Now
	return *rec, nil
}

// Skills lists the caller's skills sorted by name.
func (w *World) Skills(ctx Ctx) ([]SkillRecord, error) {
	if _, ok := w.players[ctx.Caller]; !ok {
		return nil, NotFoundf("Player not found")
	}
	sk := w.skills[ctx.Caller]
	out := make([]SkillRecord, 0, len(sk))
	for _, rec := range sk {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
