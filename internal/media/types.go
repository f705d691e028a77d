package media

import "time"

// RunResult captures the outcome of a single ffmpeg/ffprobe subprocess.
type RunResult struct {
	ExitCode   int
	OutputPath string
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true if the command exited with code 0.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}

// ToolInfo describes one external binary.
type ToolInfo struct {
	Path      string `json:"path"`
	Version   string `json:"version,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is the result of a doctor probe.
type Capabilities struct {
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	FFprobe  ToolInfo  `json:"ffprobe"`
	ProbedAt time.Time `json:"probed_at"`
}

// CanRender reports whether overlay rendering is possible.
func (c *Capabilities) CanRender() bool {
	return c != nil && c.FFmpeg.Available
}

// CanProbe reports whether video probing is possible.
func (c *Capabilities) CanProbe() bool {
	return c != nil && c.FFprobe.Available
}

// VideoInfo is the best-effort description of a video file.
type VideoInfo struct {
	Path       string  `json:"path"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frame_count"`
}

// DefaultFPS is assumed when the frame rate cannot be determined.
const DefaultFPS = 30.0

// FallbackVideoInfo is returned when probing fails.
func FallbackVideoInfo(path string) VideoInfo {
	return VideoInfo{Path: path, FPS: DefaultFPS}
}
