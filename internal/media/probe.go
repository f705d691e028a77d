package media

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

// Prober reads basic stream properties from a video file.
type Prober struct {
	runner Runner
	logger *slog.Logger
}

func NewProber(runner Runner, logger *slog.Logger) *Prober {
	return &Prober{runner: runner, logger: logger}
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// Probe returns the clip's frame rate, size and frame count. It never fails:
// any probe error yields FallbackVideoInfo.
func (p *Prober) Probe(ctx context.Context, path string) VideoInfo {
	out, res := p.runner.FFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames",
		"-of", "json",
		path,
	)
	if !res.IsSuccess() {
		p.logger.Debug("probe failed, using fallback", "exit_code", res.ExitCode)
		return FallbackVideoInfo(path)
	}

	info, ok := parseProbe(out)
	if !ok {
		p.logger.Debug("probe output unusable, using fallback")
		return FallbackVideoInfo(path)
	}
	info.Path = path
	return info
}

func parseProbe(data []byte) (VideoInfo, bool) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Streams) == 0 {
		return VideoInfo{}, false
	}
	s := parsed.Streams[0]

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	frames, _ := strconv.Atoi(s.NbFrames)

	return VideoInfo{
		FPS:        fps,
		Width:      max(s.Width, 0),
		Height:     max(s.Height, 0),
		FrameCount: max(frames, 0),
	}, true
}

// parseRate parses ffprobe rationals such as "30000/1001" or plain numbers.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
