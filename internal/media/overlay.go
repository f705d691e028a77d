package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/gatekeeper/internal/detections"
)

// ErrFFmpegUnavailable is returned when rendering is requested but ffmpeg
// could not be found.
var ErrFFmpegUnavailable = errors.New("ffmpeg unavailable")

// Box colors.
const (
	ColorDefault = "green"
	ColorFlagged = "red"
	ColorPlain   = "white"
)

// OverlayRenderer draws detection boxes onto a clip.
type OverlayRenderer interface {
	Render(ctx context.Context, clipPath string, clip *detections.Clip, flagged map[string]bool, outPath string) error
}

// FFmpegOverlay renders overlays with ffmpeg's drawbox filter.
type FFmpegOverlay struct {
	runner Runner
	doctor *CachedDoctor
	logger *slog.Logger
}

func NewFFmpegOverlay(runner Runner, doctor *CachedDoctor, logger *slog.Logger) *FFmpegOverlay {
	return &FFmpegOverlay{runner: runner, doctor: doctor, logger: logger}
}

// Render writes outPath with every detection boxed on the frame matching its
// position in the document: green by default, red when the object id is
// flagged.
func (o *FFmpegOverlay) Render(ctx context.Context, clipPath string, clip *detections.Clip, flagged map[string]bool, outPath string) error {
	if err := o.ensureFFmpeg(ctx); err != nil {
		return err
	}

	script := BuildFilterScript(clip, func(obj detections.Object) string {
		if flagged[obj.ID] {
			return ColorFlagged
		}
		return ColorDefault
	})
	return o.run(ctx, outPath, script, "-i", clipPath)
}

// RenderSynthetic draws the detections as white boxes on a black canvas sized
// from the clip metadata, one video frame per detections frame.
func (o *FFmpegOverlay) RenderSynthetic(ctx context.Context, clip *detections.Clip, outPath string) error {
	if err := o.ensureFFmpeg(ctx); err != nil {
		return err
	}

	w, h := clip.Meta.FrameWidth, clip.Meta.FrameHeight
	if w <= 0 {
		w = 640
	}
	if h <= 0 {
		h = 360
	}
	// libx264 needs even dimensions.
	w += w % 2
	h += h % 2
	frames := max(len(clip.Frames), 1)
	source := fmt.Sprintf("color=c=black:s=%dx%d:r=%s", w, h, formatNum(clip.Meta.FPS))

	script := BuildFilterScript(clip, func(detections.Object) string { return ColorPlain })
	return o.run(ctx, outPath, script, "-f", "lavfi", "-i", source, "-frames:v", fmt.Sprint(frames))
}

func (o *FFmpegOverlay) ensureFFmpeg(ctx context.Context) error {
	if o.doctor == nil {
		return nil
	}
	caps, err := o.doctor.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
	}
	if !caps.CanRender() {
		return fmt.Errorf("%w: %s", ErrFFmpegUnavailable, caps.FFmpeg.Error)
	}
	return nil
}

func (o *FFmpegOverlay) run(ctx context.Context, outPath, script string, input ...string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}
	scriptFile, err := os.CreateTemp(filepath.Dir(outPath), ".overlay-*.filter")
	if err != nil {
		return fmt.Errorf("create filter script: %w", err)
	}
	defer os.Remove(scriptFile.Name())

	if _, err := scriptFile.WriteString(script); err != nil {
		scriptFile.Close()
		return fmt.Errorf("write filter script: %w", err)
	}
	if err := scriptFile.Close(); err != nil {
		return fmt.Errorf("write filter script: %w", err)
	}

	args := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, input...)
	args = append(args,
		"-filter_script:v", scriptFile.Name(),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outPath,
	)

	res := o.runner.FFmpeg(ctx, outPath, args...)
	if !res.IsSuccess() {
		return fmt.Errorf("ffmpeg exited %d: %s", res.ExitCode, truncate(res.StderrTail, 512))
	}
	return nil
}

// BuildFilterScript returns a drawbox filter chain with one box per detection,
// enabled only on the video frame with the same index as its detections frame.
func BuildFilterScript(clip *detections.Clip, color func(detections.Object) string) string {
	var boxes []string
	for i, frame := range clip.Frames {
		for _, obj := range frame.Objects {
			boxes = append(boxes, drawbox(i, obj, color(obj)))
		}
	}
	if len(boxes) == 0 {
		return "null"
	}
	return strings.Join(boxes, ",\n")
}

func drawbox(frameIndex int, obj detections.Object, color string) string {
	b := obj.BBoxXYXY
	x1, x2 := math.Min(b[0], b[2]), math.Max(b[0], b[2])
	y1, y2 := math.Min(b[1], b[3]), math.Max(b[1], b[3])
	w := math.Max(1, math.Round(x2-x1))
	h := math.Max(1, math.Round(y2-y1))
	return fmt.Sprintf("drawbox=x=%d:y=%d:w=%d:h=%d:color=%s:t=2:enable='eq(n,%d)'",
		int(math.Round(x1)), int(math.Round(y1)), int(w), int(h), color, frameIndex)
}

func formatNum(v float64) string {
	if v <= 0 {
		v = DefaultFPS
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
