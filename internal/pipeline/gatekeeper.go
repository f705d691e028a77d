// Package pipeline runs the full plausibility evaluation for a clip: track
// statistics, heuristic scoring, the secondary opinion, score combination,
// report writing and the optional overlay.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/heimdex/gatekeeper/internal/config"
	"github.com/heimdex/gatekeeper/internal/detections"
	"github.com/heimdex/gatekeeper/internal/logging"
	"github.com/heimdex/gatekeeper/internal/media"
	"github.com/heimdex/gatekeeper/internal/plausibility"
	"github.com/heimdex/gatekeeper/internal/reasoning"
	"github.com/heimdex/gatekeeper/internal/report"
)

// FallbackExplanation is used when the secondary opinion gives none.
const FallbackExplanation = "Heuristic checks applied (speed/accel/jump). Model reasoning unavailable or skipped."

// Reason prefixes marking where a flag came from.
const (
	HeuristicPrefix = "[heuristic] "
	ModelPrefix     = "[model] "
)

const defaultReason = "flagged"

// Settings are the scoring parameters of one Gatekeeper.
type Settings struct {
	Constraints           plausibility.Constraints
	OKThreshold           float64
	QuestionableThreshold float64
	ModelName             string
}

// DefaultSettings returns the stock thresholds and constraints.
func DefaultSettings() Settings {
	return Settings{
		Constraints:           plausibility.DefaultConstraints(),
		OKThreshold:           config.DefaultOKThreshold,
		QuestionableThreshold: config.DefaultQuestionableThreshold,
		ModelName:             config.DefaultCosmosModel,
	}
}

// SettingsFromConfig derives Settings from the resolved configuration.
func SettingsFromConfig(cfg *config.EnvConfig) Settings {
	return Settings{
		Constraints: plausibility.Constraints{
			MaxSpeedPxS:  cfg.MaxSpeedPxS(),
			MaxAccelPxS2: cfg.MaxAccelPxS2(),
			MaxJumpPx:    cfg.MaxJumpPx(),
		},
		OKThreshold:           cfg.OKThreshold(),
		QuestionableThreshold: cfg.QuestionableThreshold(),
		ModelName:             cfg.CosmosModel(),
	}
}

// Gatekeeper evaluates clips. It holds no per-clip state and is safe for
// concurrent use when its collaborators are.
type Gatekeeper struct {
	settings Settings
	reasoner reasoning.Client
	overlay  media.OverlayRenderer
	prober   *media.Prober
	logger   *slog.Logger
}

// Option customizes a Gatekeeper.
type Option func(*Gatekeeper)

// WithOverlay sets the overlay renderer used by Run.
func WithOverlay(r media.OverlayRenderer) Option {
	return func(g *Gatekeeper) { g.overlay = r }
}

// WithProber sets the prober used to cross-check clip metadata in Run.
func WithProber(p *media.Prober) Option {
	return func(g *Gatekeeper) { g.prober = p }
}

func New(settings Settings, reasoner reasoning.Client, logger *slog.Logger, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		settings: settings,
		reasoner: reasoner,
		logger:   logging.WithComponent(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Settings returns the scoring parameters.
func (g *Gatekeeper) Settings() Settings {
	return g.settings
}

// Evaluate scores one clip. It performs no file I/O; the only blocking step
// is the single call to the reasoning client.
func (g *Gatekeeper) Evaluate(ctx context.Context, clip *detections.Clip) *report.Output {
	logger := logging.WithClipID(g.logger, clip.Meta.ClipID)

	stats := plausibility.ComputeTrackStats(clip)
	hScore, hFlags := plausibility.HeuristicScore(stats, g.settings.Constraints)

	resp := g.consult(ctx, clip, stats)

	var opinion reasoning.Opinion
	if resp.Status == reasoning.StatusOK {
		opinion = reasoning.ParseModelOutput(resp.RawText)
		if !opinion.Parsed {
			logger.Warn("model response not parseable", "raw_bytes", len(resp.RawText))
		}
	}

	score, method := plausibility.CombineScores(hScore, opinion.Score)
	verdict := plausibility.ClassifyVerdict(score, g.settings.OKThreshold, g.settings.QuestionableThreshold)

	explanation := strings.TrimSpace(opinion.Explanation)
	if explanation == "" {
		explanation = FallbackExplanation
	}

	out := &report.Output{
		ClipID:            clip.Meta.ClipID,
		PlausibilityScore: score,
		Verdict:           verdict,
		Explanation:       explanation,
		FlaggedObjects:    MergeFlags(hFlags, opinion.Flagged),
		Evidence: &report.Evidence{
			Checks: []report.CheckResult{
				{Name: report.CheckHeuristicsScore, Passed: true, Details: fmt.Sprintf("%.3f", hScore)},
				{Name: report.CheckCombineMethod, Passed: true, Details: method},
				{Name: report.CheckCosmosStatus, Passed: resp.Status.Usable(), Details: string(resp.Status)},
			},
			Model: &report.ModelEvidence{
				Provider:    report.ProviderCosmos,
				ModelName:   g.settings.ModelName,
				RawResponse: report.TruncateRunes(resp.RawText, report.MaxRawResponse),
				Score:       opinion.Score,
				Verdict:     opinion.Verdict,
			},
		},
	}

	logger.Info("clip evaluated",
		"score", math.Round(score*1000)/1000,
		"verdict", verdict,
		"method", method,
		"reasoning_status", resp.Status,
		"flagged", len(out.FlaggedObjects),
	)
	return out
}

func (g *Gatekeeper) consult(ctx context.Context, clip *detections.Clip, stats map[string]plausibility.TrackStats) reasoning.Response {
	prompt, err := reasoning.BuildPrompt(clip, stats, g.settings.Constraints)
	if err != nil {
		g.logger.Error("build prompt failed", "error", err)
		return reasoning.Response{RawText: err.Error(), Status: reasoning.StatusError}
	}
	return g.reasoner.Infer(ctx, prompt.System, prompt.User)
}

// MergeFlags combines heuristic and model flags into one entry per object id.
// Heuristic flags come first and keep the first reason seen for an id; model
// flags are appended only for ids not already present.
func MergeFlags(heuristic []plausibility.Flag, model []reasoning.Flag) []report.FlaggedObject {
	merged := make([]report.FlaggedObject, 0, len(heuristic)+len(model))
	seen := make(map[string]bool)

	for _, f := range heuristic {
		if seen[f.ObjectID] {
			continue
		}
		seen[f.ObjectID] = true
		merged = append(merged, report.FlaggedObject{ObjectID: f.ObjectID, Reason: HeuristicPrefix + f.Reason})
	}

	for _, f := range model {
		id := strings.TrimSpace(f.ObjectID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		reason := strings.TrimSpace(f.Reason)
		if reason == "" {
			reason = defaultReason
		}
		merged = append(merged, report.FlaggedObject{ObjectID: id, Reason: ModelPrefix + reason})
	}

	return merged
}

// Request describes one clip evaluation on disk.
type Request struct {
	ClipPath       string
	DetectionsPath string
	OutputsDir     string
	Overlay        bool
}

// Result is the outcome of Run.
type Result struct {
	Output      *report.Output
	ReportPath  string
	OverlayPath string // empty when no overlay was written
	Video       *media.VideoInfo
}

// Run loads the detections, evaluates them, writes the report and then
// tries to render the overlay. Overlay failures are logged and ignored.
func (g *Gatekeeper) Run(ctx context.Context, req Request) (*Result, error) {
	clip, err := detections.Load(req.DetectionsPath)
	if err != nil {
		return nil, err
	}
	return g.RunClip(ctx, clip, req)
}

// RunClip is Run for a document that is already decoded and validated.
// req.DetectionsPath is not read.
func (g *Gatekeeper) RunClip(ctx context.Context, clip *detections.Clip, req Request) (*Result, error) {
	res := &Result{Output: g.Evaluate(ctx, clip)}
	res.ReportPath = report.Path(req.OutputsDir, clip.Meta.ClipID)
	if err := report.Write(res.Output, res.ReportPath); err != nil {
		return nil, err
	}

	if req.ClipPath != "" && g.prober != nil {
		info := g.prober.Probe(ctx, req.ClipPath)
		res.Video = &info
		g.checkVideo(clip, info)
	}

	if req.Overlay && req.ClipPath != "" && g.overlay != nil {
		res.OverlayPath = g.renderOverlay(ctx, req, clip, res.Output)
	}
	return res, nil
}

func (g *Gatekeeper) renderOverlay(ctx context.Context, req Request, clip *detections.Clip, out *report.Output) string {
	logger := logging.WithClipID(g.logger, clip.Meta.ClipID)
	if _, err := os.Stat(req.ClipPath); err != nil {
		logger.Debug("overlay skipped", "error", err)
		return ""
	}

	path := report.OverlayPath(req.OutputsDir, clip.Meta.ClipID)
	if err := g.overlay.Render(ctx, req.ClipPath, clip, out.FlaggedIDs(), path); err != nil {
		logger.Debug("overlay skipped", "error", err)
		return ""
	}
	return path
}

// checkVideo logs when the probed clip disagrees with the document metadata.
func (g *Gatekeeper) checkVideo(clip *detections.Clip, info media.VideoInfo) {
	if info.Width == 0 && info.Height == 0 {
		return
	}
	m := clip.Meta
	if (m.FrameWidth > 0 && info.Width != m.FrameWidth) || (m.FrameHeight > 0 && info.Height != m.FrameHeight) ||
		math.Abs(info.FPS-m.FPS) > 0.5 {
		g.logger.Warn("clip metadata differs from video",
			"clip_id", m.ClipID,
			"meta_fps", m.FPS, "video_fps", info.FPS,
			"meta_size", fmt.Sprintf("%dx%d", m.FrameWidth, m.FrameHeight),
			"video_size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		)
	}
}
