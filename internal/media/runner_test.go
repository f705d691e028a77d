package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		name string
		code int
		want bool
	}{
		{"success", 0, true},
		{"failure", 1, false},
		{"killed", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RunResult{ExitCode: tt.code}
			if got := r.IsSuccess(); got != tt.want {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestHeadWriter_KeepsOnlyHead(t *testing.T) {
	var buf bytes.Buffer
	hw := &headWriter{w: &buf, limit: 4}

	n, err := hw.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v; want 6, nil", n, err)
	}
	hw.Write([]byte("gh"))
	if buf.String() != "abcd" {
		t.Errorf("got %q, want %q", buf.String(), "abcd")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestParseVersionLine(t *testing.T) {
	out := "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc"
	if got := parseVersionLine(out); got != "6.1.1-3ubuntu5" {
		t.Errorf("parseVersionLine = %q", got)
	}
	if got := parseVersionLine("weird output"); got != "weird output" {
		t.Errorf("parseVersionLine fallback = %q", got)
	}
}

func TestSubprocessRunner_ExitCodeAndStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	r := NewRunner(Config{FFmpegPath: sh, RenderTimeout: 5 * time.Second, Logger: testLogger()})
	out := filepath.Join(t.TempDir(), "nested", "out.mp4")

	res := r.FFmpeg(context.Background(), out, "-c", "echo boom >&2; exit 3")
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.StderrTail, "boom") {
		t.Errorf("StderrTail = %q, want boom", res.StderrTail)
	}
	if _, err := os.Stat(filepath.Dir(out)); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
}

func TestSubprocessRunner_Timeout(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	r := NewRunner(Config{FFprobePath: sh, ProbeTimeout: 50 * time.Millisecond, Logger: testLogger()})

	_, res := r.FFprobe(context.Background(), "-c", "exec sleep 5")
	if res.IsSuccess() {
		t.Fatal("expected timeout failure")
	}
	if res.Duration > 4*time.Second {
		t.Errorf("command was not cancelled, took %v", res.Duration)
	}
}

func TestSubprocessRunner_MissingBinary(t *testing.T) {
	r := NewRunner(Config{
		FFmpegPath:    "/nonexistent/ffmpeg999",
		FFprobePath:   "/nonexistent/ffprobe999",
		DoctorTimeout: time.Second,
		Logger:        testLogger(),
	})
	caps, err := r.RunDoctor(context.Background())
	if err != nil {
		t.Fatalf("RunDoctor: %v", err)
	}
	if caps.CanRender() || caps.CanProbe() {
		t.Errorf("expected no capabilities, got %+v", caps)
	}
	if caps.FFmpeg.Error == "" {
		t.Error("expected an error description for missing ffmpeg")
	}
}

func TestSafePath_DebugMode(t *testing.T) {
	r := &SubprocessRunner{cfg: Config{DebugPaths: true}}
	path := "/Users/test/secret/clip.mp4"
	if got := r.safePath(path); got != path {
		t.Errorf("debug mode: safePath(%q) = %q, want full path", path, got)
	}
}

func TestSafePath_ProductionMode(t *testing.T) {
	r := &SubprocessRunner{cfg: Config{DebugPaths: false}}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}
	path := filepath.Join(home, "outputs", "videos", "clip_overlay.mp4")
	if got := r.safePath(path); got != "~/outputs/videos/clip_overlay.mp4" {
		t.Errorf("safePath() = %q, want %q", got, "~/outputs/videos/clip_overlay.mp4")
	}
}

func TestCachedDoctor_TTL(t *testing.T) {
	calls := 0
	fake := &fakeRunner{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			calls++
			return &Capabilities{FFmpeg: ToolInfo{Available: true}, ProbedAt: time.Now()}, nil
		},
	}

	doc := NewCachedDoctor(fake, testLogger())
	doc.ttl = 100 * time.Millisecond
	ctx := context.Background()

	caps1, err := doc.Get(ctx)
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if !caps1.CanRender() {
		t.Error("expected CanRender=true")
	}

	caps2, _ := doc.Get(ctx)
	if caps2.ProbedAt != caps1.ProbedAt || calls != 1 {
		t.Errorf("expected cached result on second call, calls=%d", calls)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := doc.Get(ctx); err != nil {
		t.Fatalf("third Get (after TTL): %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after TTL expiry, got %d", calls)
	}
}

func TestCachedDoctor_StaleOnError(t *testing.T) {
	fail := false
	fake := &fakeRunner{
		doctorFn: func(ctx context.Context) (*Capabilities, error) {
			if fail {
				return nil, errors.New("probe broke")
			}
			return &Capabilities{ProbedAt: time.Now()}, nil
		},
	}
	doc := NewCachedDoctor(fake, testLogger())
	ctx := context.Background()

	first, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fail = true
	second, err := doc.Refresh(ctx)
	if err != nil {
		t.Fatalf("expected stale cache, got error %v", err)
	}
	if second != first {
		t.Error("expected stale capabilities to be returned")
	}

	doc.Invalidate()
	if _, err := doc.Get(ctx); err == nil {
		t.Error("expected error with empty cache and failing probe")
	}
	if doc.Peek() != nil {
		t.Error("Peek should be nil after invalidate and failed probe")
	}
}

// fakeRunner records calls and returns canned results.
type fakeRunner struct {
	doctorFn  func(ctx context.Context) (*Capabilities, error)
	probeOut  []byte
	probeRes  RunResult
	ffmpegRes RunResult

	ffmpegArgs []string
	script     string
}

func (f *fakeRunner) RunDoctor(ctx context.Context) (*Capabilities, error) {
	if f.doctorFn != nil {
		return f.doctorFn(ctx)
	}
	return &Capabilities{
		FFmpeg:   ToolInfo{Available: true},
		FFprobe:  ToolInfo{Available: true},
		ProbedAt: time.Now(),
	}, nil
}

func (f *fakeRunner) FFprobe(ctx context.Context, args ...string) ([]byte, RunResult) {
	return f.probeOut, f.probeRes
}

func (f *fakeRunner) FFmpeg(ctx context.Context, outPath string, args ...string) RunResult {
	f.ffmpegArgs = args
	for i, a := range args {
		if a == "-filter_script:v" && i+1 < len(args) {
			data, _ := os.ReadFile(args[i+1])
			f.script = string(data)
		}
	}
	return f.ffmpegRes
}
