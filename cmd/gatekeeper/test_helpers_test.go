package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/heimdex/gatekeeper/internal/config"
)

const jumpDocument = `{
  "meta": {"clip_id": "jumpy", "fps": 10, "frame_width": 640, "frame_height": 360},
  "frames": [
    {"t": 0.0, "objects": [{"id": "car", "class": "car", "bbox_xyxy": [10, 10, 30, 30]}]},
    {"t": 0.1, "objects": [{"id": "car", "class": "car", "bbox_xyxy": [510, 10, 530, 30]}]}
  ]
}`

const steadyDocument = `{
  "meta": {"clip_id": "steady", "fps": 10, "frame_width": 640, "frame_height": 360},
  "frames": [
    {"t": 0.0, "objects": [{"id": "car", "class": "car", "bbox_xyxy": [10, 10, 30, 30]}]},
    {"t": 0.1, "objects": [{"id": "car", "class": "car", "bbox_xyxy": [15, 10, 35, 30]}]},
    {"t": 0.2, "objects": [{"id": "car", "class": "car", "bbox_xyxy": [20, 10, 40, 30]}]}
  ]
}`

// setupEnv isolates configuration from the host and points the media tools
// at binaries that do not exist.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{
		config.EnvConfigPath, config.EnvPort, config.EnvLogFormat,
		config.EnvOKThreshold, config.EnvQuestionableThreshold,
		config.EnvMaxSpeed, config.EnvMaxAccel, config.EnvMaxJump,
		config.EnvCosmosURL, config.EnvCosmosKey, config.EnvCosmosModel, config.EnvCosmosTimeout,
	} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvDataDir, filepath.Join(dir, "data"))
	t.Setenv(config.EnvOutputsDir, filepath.Join(dir, "outputs"))
	t.Setenv(config.EnvFFmpeg, filepath.Join(dir, "no-ffmpeg"))
	t.Setenv(config.EnvFFprobe, filepath.Join(dir, "no-ffprobe"))
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
