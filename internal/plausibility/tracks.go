package plausibility

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/heimdex/gatekeeper/internal/detections"
)

// minDt bounds the divisor for samples sharing (or nearly sharing) a timestamp.
const minDt = 1e-9

// Sample is one observation of a track: timestamp and bbox center.
type Sample struct {
	T  float64
	CX float64
	CY float64
}

// TrackStats summarizes the kinematics of one track.
type TrackStats struct {
	TrackID   string  `json:"track_id"`
	MaxSpeed  float64 `json:"max_speed"` // px/s
	MaxAccel  float64 `json:"max_accel"` // px/s^2, absolute
	MaxJump   float64 `json:"max_jump"`  // px between consecutive samples
	NumPoints int     `json:"num_points"`
}

// Scorable reports whether the track has enough samples to be scored.
func (s TrackStats) Scorable() bool {
	return s.NumPoints >= 2
}

// GroupTracks collects bbox-center samples per object id, each sorted by
// timestamp. Samples with equal timestamps keep arrival order.
func GroupTracks(clip *detections.Clip) map[string][]Sample {
	tracks := make(map[string][]Sample)
	for _, frame := range clip.Frames {
		for _, obj := range frame.Objects {
			cx, cy := obj.Center()
			tracks[obj.ID] = append(tracks[obj.ID], Sample{T: frame.T, CX: cx, CY: cy})
		}
	}
	for id := range tracks {
		samples := tracks[id]
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].T < samples[j].T })
	}
	return tracks
}

// ComputeTrackStats derives per-track kinematic maxima for every object id
// in the clip.
func ComputeTrackStats(clip *detections.Clip) map[string]TrackStats {
	tracks := GroupTracks(clip)
	stats := make(map[string]TrackStats, len(tracks))
	for id, samples := range tracks {
		stats[id] = statsForSamples(id, samples)
	}
	return stats
}

func statsForSamples(id string, samples []Sample) TrackStats {
	st := TrackStats{TrackID: id, NumPoints: len(samples)}
	if len(samples) < 2 {
		return st
	}

	n := len(samples) - 1
	dts := make([]float64, n)
	speeds := make([]float64, n)
	jumps := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := samples[i], samples[i+1]
		dt := b.T - a.T
		if dt <= minDt {
			dt = minDt
		}
		dist := math.Hypot(b.CX-a.CX, b.CY-a.CY)
		dts[i] = dt
		speeds[i] = dist / dt
		jumps[i] = dist
	}

	accels := []float64{0}
	if len(speeds) >= 2 {
		accels = make([]float64, len(speeds)-1)
		for j := range accels {
			accels[j] = (speeds[j+1] - speeds[j]) / dts[j+1]
		}
	}

	st.MaxSpeed = floats.Max(speeds)
	st.MaxJump = floats.Max(jumps)
	// Infinity norm is the largest absolute value.
	st.MaxAccel = floats.Norm(accels, math.Inf(1))
	return st
}

// SortedTrackIDs returns the track ids in ascending order.
func SortedTrackIDs(stats map[string]TrackStats) []string {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
