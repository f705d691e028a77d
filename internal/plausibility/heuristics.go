package plausibility

import (
	"fmt"
	"math"
)

// Constraints are the kinematic limits a plausible track stays within.
type Constraints struct {
	MaxSpeedPxS  float64
	MaxAccelPxS2 float64
	MaxJumpPx    float64
}

// DefaultConstraints returns the stock limits.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxSpeedPxS:  900,
		MaxAccelPxS2: 6000,
		MaxJumpPx:    120,
	}
}

// Penalty shape per metric: base + slope*overage, capped.
type penaltyRule struct {
	base, slope, max float64
}

var (
	speedPenalty = penaltyRule{base: 0.10, slope: 0.25, max: 0.35}
	accelPenalty = penaltyRule{base: 0.15, slope: 0.30, max: 0.45}
	jumpPenalty  = penaltyRule{base: 0.15, slope: 0.30, max: 0.45}
)

func (r penaltyRule) apply(value, threshold float64) float64 {
	over := (value - threshold) / threshold
	return math.Min(r.max, r.base+r.slope*over)
}

// Flag is a single heuristic violation for one track.
type Flag struct {
	ObjectID string
	Reason   string
}

// HeuristicScore checks every scorable track against the constraints and
// returns a score in [0,1] together with one flag per violated metric.
// Tracks are visited in ascending id order.
func HeuristicScore(stats map[string]TrackStats, c Constraints) (float64, []Flag) {
	penalty := 0.0
	var flags []Flag

	for _, id := range SortedTrackIDs(stats) {
		st := stats[id]
		if !st.Scorable() {
			continue
		}

		if st.MaxSpeed > c.MaxSpeedPxS {
			penalty += speedPenalty.apply(st.MaxSpeed, c.MaxSpeedPxS)
			flags = append(flags, Flag{
				ObjectID: id,
				Reason:   fmt.Sprintf("speed %.1f px/s > %.1f", st.MaxSpeed, c.MaxSpeedPxS),
			})
		}
		if st.MaxAccel > c.MaxAccelPxS2 {
			penalty += accelPenalty.apply(st.MaxAccel, c.MaxAccelPxS2)
			flags = append(flags, Flag{
				ObjectID: id,
				Reason:   fmt.Sprintf("accel %.1f px/s^2 > %.1f", st.MaxAccel, c.MaxAccelPxS2),
			})
		}
		if st.MaxJump > c.MaxJumpPx {
			penalty += jumpPenalty.apply(st.MaxJump, c.MaxJumpPx)
			flags = append(flags, Flag{
				ObjectID: id,
				Reason:   fmt.Sprintf("jump %.1fpx > %.1fpx", st.MaxJump, c.MaxJumpPx),
			})
		}
	}

	return math.Max(0, 1-penalty), flags
}
