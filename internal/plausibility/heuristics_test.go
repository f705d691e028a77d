package plausibility

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeuristicScore_NoViolations(t *testing.T) {
	stats := map[string]TrackStats{
		"a": {TrackID: "a", MaxSpeed: 100, MaxAccel: 10, MaxJump: 5, NumPoints: 10},
	}
	score, flags := HeuristicScore(stats, DefaultConstraints())
	if score != 1.0 {
		t.Errorf("score = %v, want 1.0", score)
	}
	if len(flags) != 0 {
		t.Errorf("flags = %v, want none", flags)
	}
}

func TestHeuristicScore_SkipsSingletons(t *testing.T) {
	stats := map[string]TrackStats{
		"lonely": {TrackID: "lonely", MaxSpeed: 1e9, MaxAccel: 1e9, MaxJump: 1e9, NumPoints: 1},
	}
	score, flags := HeuristicScore(stats, DefaultConstraints())
	if score != 1.0 || len(flags) != 0 {
		t.Errorf("got score=%v flags=%v, want 1.0 and none", score, flags)
	}
}

func TestHeuristicScore_PenaltyShapes(t *testing.T) {
	c := Constraints{MaxSpeedPxS: 100, MaxAccelPxS2: 100, MaxJumpPx: 100}
	tests := []struct {
		name      string
		stats     TrackStats
		wantScore float64
		wantFlag  string
	}{
		{"speed just over", TrackStats{MaxSpeed: 120, NumPoints: 2}, 1 - (0.10 + 0.25*0.2), "speed 120.0 px/s > 100.0"},
		{"speed capped", TrackStats{MaxSpeed: 1000, NumPoints: 2}, 1 - 0.35, "speed"},
		{"accel just over", TrackStats{MaxAccel: 150, NumPoints: 2}, 1 - (0.15 + 0.30*0.5), "accel 150.0 px/s^2 > 100.0"},
		{"accel capped", TrackStats{MaxAccel: 500, NumPoints: 2}, 1 - 0.45, "accel"},
		{"jump just over", TrackStats{MaxJump: 110, NumPoints: 2}, 1 - (0.15 + 0.30*0.1), "jump 110.0px > 100.0px"},
		{"jump capped", TrackStats{MaxJump: 900, NumPoints: 2}, 1 - 0.45, "jump"},
		{"at threshold is fine", TrackStats{MaxSpeed: 100, MaxAccel: 100, MaxJump: 100, NumPoints: 2}, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.stats.TrackID = "x"
			score, flags := HeuristicScore(map[string]TrackStats{"x": tt.stats}, c)
			if math.Abs(score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %v, want %v", score, tt.wantScore)
			}
			if tt.wantFlag == "" {
				if len(flags) != 0 {
					t.Errorf("flags = %v, want none", flags)
				}
				return
			}
			if len(flags) != 1 {
				t.Fatalf("len(flags) = %d, want 1", len(flags))
			}
			if !strings.HasPrefix(flags[0].Reason, tt.wantFlag) {
				t.Errorf("reason = %q, want prefix %q", flags[0].Reason, tt.wantFlag)
			}
		})
	}
}

func TestHeuristicScore_ClampsAtZero(t *testing.T) {
	c := DefaultConstraints()
	stats := map[string]TrackStats{}
	for _, id := range []string{"a", "b", "c"} {
		stats[id] = TrackStats{
			TrackID:   id,
			MaxSpeed:  c.MaxSpeedPxS * 1000,
			MaxAccel:  c.MaxAccelPxS2 * 1000,
			MaxJump:   c.MaxJumpPx * 1000,
			NumPoints: 3,
		}
	}

	score, flags := HeuristicScore(stats, c)
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
	if len(flags) != 9 {
		t.Errorf("len(flags) = %d, want 9", len(flags))
	}
}

func TestHeuristicScore_SingleTrackHeavyOverage(t *testing.T) {
	c := DefaultConstraints()
	stats := map[string]TrackStats{
		"a": {TrackID: "a", MaxSpeed: c.MaxSpeedPxS * 1000, MaxAccel: c.MaxAccelPxS2 * 1000, MaxJump: c.MaxJumpPx * 1000, NumPoints: 3},
	}
	score, _ := HeuristicScore(stats, c)
	// 1 - (0.35 + 0.45 + 0.45) is negative before clamping.
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestHeuristicScore_DeterministicOrder(t *testing.T) {
	c := DefaultConstraints()
	stats := map[string]TrackStats{
		"zeta":  {TrackID: "zeta", MaxJump: 500, NumPoints: 2},
		"alpha": {TrackID: "alpha", MaxJump: 500, NumPoints: 2},
		"mid":   {TrackID: "mid", MaxSpeed: 5000, MaxJump: 500, NumPoints: 2},
	}

	_, flags := HeuristicScore(stats, c)
	var got []string
	for _, f := range flags {
		got = append(got, f.ObjectID)
	}
	want := []string{"alpha", "mid", "mid", "zeta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flag order mismatch (-want +got):\n%s", diff)
	}
}
