package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

func finiteVec(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// validatePosition checks v is finite and inside the world cube [-bound, bound]
// on every axis.
func validatePosition(v mgl64.Vec3, bound float64) error {
	if !finiteVec(v) {
		return Validationf("Invalid position coordinates")
	}
	for _, c := range v {
		if c < -bound || c > bound {
			return Validationf("Position outside world bounds")
		}
	}
	return nil
}

// validateStep rejects teleport-scale jumps between two positions.
func validateStep(from, to mgl64.Vec3, maxStep float64) error {
	if from.Sub(to).Len() > maxStep {
		return Validationf("Invalid movement detected: distance too large")
	}
	return nil
}

// stepToward moves horizontally from pos toward target by at most speed,
// keeping height. A zero horizontal gap leaves pos unchanged.
func stepToward(pos, target mgl64.Vec3, speed float64) mgl64.Vec3 {
	dx := target[0] - pos[0]
	dy := target[1] - pos[1]
	dist := math.Hypot(dx, dy)
	if dist <= 0 {
		return pos
	}
	step := math.Min(speed, dist)
	return mgl64.Vec3{pos[0] + dx/dist*step, pos[1] + dy/dist*step, pos[2]}
}

// stepAway moves horizontally away from threat by exactly speed. When both
// share a spot the step goes along +X.
func stepAway(pos, threat mgl64.Vec3, speed float64) mgl64.Vec3 {
	dx := pos[0] - threat[0]
	dy := pos[1] - threat[1]
	dist := math.Hypot(dx, dy)
	if dist <= 0 {
		return mgl64.Vec3{pos[0] + speed, pos[1], pos[2]}
	}
	return mgl64.Vec3{pos[0] + dx/dist*speed, pos[1] + dy/dist*speed, pos[2]}
}

// patrolTarget picks the next patrol point at radius from pos. The heading
// derives from the position itself, so the same spot always yields the same
// point and ticking stays reproducible.
func patrolTarget(pos mgl64.Vec3, radius float64) mgl64.Vec3 {
	seed := satU64(pos[0]*1000) + satU64(pos[1]*1000)
	angle := float64(seed%628) / 100
	return mgl64.Vec3{
		pos[0] + radius*math.Cos(angle),
		pos[1] + radius*math.Sin(angle),
		pos[2],
	}
}

// satU64 converts with saturation: NaN and negatives become 0, values past
// the top of the range clamp to MaxUint64.
func satU64(f float64) uint64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}
