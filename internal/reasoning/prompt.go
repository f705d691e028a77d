package reasoning

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/heimdex/gatekeeper/internal/detections"
	"github.com/heimdex/gatekeeper/internal/plausibility"
)

// SystemPrompt frames the reasoning service as an auditor returning JSON.
const SystemPrompt = "You are a safety auditor for autonomous-vision outputs.\n" +
	"Your task: judge physical plausibility and temporal continuity only.\n" +
	"Return strict JSON only. No markdown."

var summaryTemplate = template.Must(template.New("summary").Parse(
	`Clip: {{.ClipID}}, fps={{.FPS}}, size={{.Width}}x{{.Height}}
Frames: {{.Frames}}
Track summaries (pixel-space, bbox-center):{{range .Tracks}}
- {{.TrackID}}: points={{.NumPoints}}, max_speed={{printf "%.1f" .MaxSpeed}}px/s, max_accel={{printf "%.1f" .MaxAccel}}px/s^2, max_jump={{printf "%.1f" .MaxJump}}px{{end}}`))

var userTemplate = template.Must(template.New("user").Parse(
	`Evaluate whether the inferred object motions and interactions are physically plausible.

{{.Summary}}

Constraints:
- max_speed_px_s: {{.Constraints.MaxSpeedPxS}}
- max_accel_px_s2: {{.Constraints.MaxAccelPxS2}}
- max_jump_px: {{.Constraints.MaxJumpPx}}

Return JSON with fields:
{
  "plausibility_score": number (0..1),
  "verdict": "OK"|"QUESTIONABLE"|"IMPLAUSIBLE",
  "explanation": string (1-3 sentences),
  "flagged_objects": [{"object_id": string, "reason": string}]
}
`))

// Prompt is a system/user prompt pair.
type Prompt struct {
	System string
	User   string
}

// SceneSummary renders the clip header and one line per scorable track, in
// ascending track id order.
func SceneSummary(clip *detections.Clip, stats map[string]plausibility.TrackStats) (string, error) {
	tracks := make([]plausibility.TrackStats, 0, len(stats))
	for _, id := range plausibility.SortedTrackIDs(stats) {
		if st := stats[id]; st.Scorable() {
			tracks = append(tracks, st)
		}
	}

	var buf bytes.Buffer
	err := summaryTemplate.Execute(&buf, struct {
		ClipID        string
		FPS           float64
		Width, Height int
		Frames        int
		Tracks        []plausibility.TrackStats
	}{
		ClipID: clip.Meta.ClipID,
		FPS:    clip.Meta.FPS,
		Width:  clip.Meta.FrameWidth,
		Height: clip.Meta.FrameHeight,
		Frames: len(clip.Frames),
		Tracks: tracks,
	})
	if err != nil {
		return "", fmt.Errorf("render scene summary: %w", err)
	}
	return buf.String(), nil
}

// BuildPrompt assembles the system and user prompts for one clip.
func BuildPrompt(clip *detections.Clip, stats map[string]plausibility.TrackStats, c plausibility.Constraints) (Prompt, error) {
	summary, err := SceneSummary(clip, stats)
	if err != nil {
		return Prompt{}, err
	}

	var buf bytes.Buffer
	err = userTemplate.Execute(&buf, struct {
		Summary     string
		Constraints plausibility.Constraints
	}{Summary: summary, Constraints: c})
	if err != nil {
		return Prompt{}, fmt.Errorf("render user prompt: %w", err)
	}
	return Prompt{System: SystemPrompt, User: buf.String()}, nil
}
