// Package media drives ffmpeg and ffprobe as subprocesses to probe clips and
// render overlay videos.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 1 << 20
)

// Runner executes ffmpeg and ffprobe.
type Runner interface {
	// RunDoctor checks both binaries and reports their versions.
	RunDoctor(ctx context.Context) (*Capabilities, error)

	// FFprobe runs ffprobe with args and returns its stdout.
	FFprobe(ctx context.Context, args ...string) ([]byte, RunResult)

	// FFmpeg runs ffmpeg with args, writing to outPath.
	FFmpeg(ctx context.Context, outPath string, args ...string) RunResult
}

// Config holds the runner's configuration.
type Config struct {
	FFmpegPath    string        // default "ffmpeg"
	FFprobePath   string        // default "ffprobe"
	DoctorTimeout time.Duration // timeout for version probes
	ProbeTimeout  time.Duration // timeout for ffprobe on a clip
	RenderTimeout time.Duration // timeout for an overlay render
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(ffmpeg, ffprobe string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:    ffmpeg,
		FFprobePath:   ffprobe,
		DoctorTimeout: 10 * time.Second,
		ProbeTimeout:  30 * time.Second,
		RenderTimeout: 10 * time.Minute,
		Logger:        logger,
	}
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner. Binaries are resolved lazily so a
// missing ffmpeg only disables the features that need it.
func NewRunner(cfg Config) *SubprocessRunner {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &SubprocessRunner{cfg: cfg}
}

// RunDoctor probes both binaries with -version.
func (r *SubprocessRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{
		FFmpeg:   r.probeTool(ctx, r.cfg.FFmpegPath),
		FFprobe:  r.probeTool(ctx, r.cfg.FFprobePath),
		ProbedAt: time.Now(),
	}

	r.cfg.Logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpeg.Available,
		"ffprobe", caps.FFprobe.Available,
	)
	return caps, nil
}

func (r *SubprocessRunner) probeTool(ctx context.Context, name string) ToolInfo {
	info := ToolInfo{Path: name}
	path, err := exec.LookPath(name)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Path = path

	out, res := r.exec(ctx, path, "", "-version")
	if !res.IsSuccess() {
		info.Error = truncate(res.StderrTail, 256)
		return info
	}
	info.Available = true
	info.Version = parseVersionLine(string(out))
	return info
}

// parseVersionLine extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersionLine(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

func (r *SubprocessRunner) FFprobe(ctx context.Context, args ...string) ([]byte, RunResult) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()
	return r.exec(ctx, r.cfg.FFprobePath, "", args...)
}

func (r *SubprocessRunner) FFmpeg(ctx context.Context, outPath string, args ...string) RunResult {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()
	_, res := r.exec(ctx, r.cfg.FFmpegPath, outPath, args...)
	return res
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, bin, outPath string, args ...string) ([]byte, RunResult) {
	start := time.Now()

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return nil, RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	// Do not wait on pipes held open by orphaned children after a kill.
	cmd.WaitDelay = 2 * time.Second

	// Capture stderr with bounded buffer
	var stderrBuf, stdoutBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = &headWriter{w: &stdoutBuf, limit: maxStdoutBytes}

	r.cfg.Logger.Debug("executing media command",
		"bin", filepath.Base(bin),
		"args", len(args),
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}
	if ctx.Err() != nil && exitCode != 0 {
		stderrBuf.WriteString(fmt.Sprintf("\n%s: %v", filepath.Base(bin), ctx.Err()))
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("media command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else if outPath != "" {
		r.cfg.Logger.Info("media command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return stdoutBuf.Bytes(), RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}

// headWriter keeps the first `limit` bytes and discards the rest.
type headWriter struct {
	w     *bytes.Buffer
	limit int
}

func (hw *headWriter) Write(p []byte) (int, error) {
	if room := hw.limit - hw.w.Len(); room > 0 {
		if len(p) > room {
			hw.w.Write(p[:room])
		} else {
			hw.w.Write(p)
		}
	}
	return len(p), nil
}
