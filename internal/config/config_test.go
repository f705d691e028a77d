package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, EnvPort, EnvLogLevel, EnvLogFormat, EnvDataDir, EnvOutputsDir,
		EnvFFmpeg, EnvFFprobe, EnvOKThreshold, EnvQuestionableThreshold,
		EnvMaxSpeed, EnvMaxAccel, EnvMaxJump,
		EnvCosmosURL, EnvCosmosKey, EnvCosmosModel, EnvCosmosTimeout,
	} {
		t.Setenv(k, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OKThreshold() != 0.70 {
		t.Errorf("OKThreshold = %v, want 0.70", cfg.OKThreshold())
	}
	if cfg.QuestionableThreshold() != 0.45 {
		t.Errorf("QuestionableThreshold = %v, want 0.45", cfg.QuestionableThreshold())
	}
	if cfg.MaxSpeedPxS() != 900 || cfg.MaxAccelPxS2() != 6000 || cfg.MaxJumpPx() != 120 {
		t.Errorf("constraints = %v/%v/%v, want 900/6000/120",
			cfg.MaxSpeedPxS(), cfg.MaxAccelPxS2(), cfg.MaxJumpPx())
	}
	if cfg.CosmosModel() != "reason-2" {
		t.Errorf("CosmosModel = %q, want %q", cfg.CosmosModel(), "reason-2")
	}
	if cfg.CosmosTimeout() != 30*time.Second {
		t.Errorf("CosmosTimeout = %v, want 30s", cfg.CosmosTimeout())
	}
	if cfg.CosmosEnabled() {
		t.Error("CosmosEnabled should be false without URL and key")
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOKThreshold, "0.8")
	t.Setenv(EnvQuestionableThreshold, "0.5")
	t.Setenv(EnvMaxJump, "50")
	t.Setenv(EnvCosmosURL, "http://localhost:9000/v1/chat")
	t.Setenv(EnvCosmosKey, "secret-key")
	t.Setenv(EnvCosmosTimeout, "5")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OKThreshold() != 0.8 || cfg.QuestionableThreshold() != 0.5 {
		t.Errorf("thresholds = %v/%v, want 0.8/0.5", cfg.OKThreshold(), cfg.QuestionableThreshold())
	}
	if cfg.MaxJumpPx() != 50 {
		t.Errorf("MaxJumpPx = %v, want 50", cfg.MaxJumpPx())
	}
	if !cfg.CosmosEnabled() {
		t.Error("CosmosEnabled should be true")
	}
	if cfg.CosmosTimeout() != 5*time.Second {
		t.Errorf("CosmosTimeout = %v, want 5s", cfg.CosmosTimeout())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"malformed float", EnvMaxSpeed, "fast", EnvMaxSpeed},
		{"malformed port", EnvPort, "abc", EnvPort},
		{"port out of range", EnvPort, "70000", "port"},
		{"negative constraint", EnvMaxAccel, "-1", "positive"},
		{"threshold above one", EnvOKThreshold, "1.5", "ok threshold"},
		{"inverted thresholds", EnvQuestionableThreshold, "0.9", "greater than"},
		{"malformed timeout", EnvCosmosTimeout, "soon", EnvCosmosTimeout},
		{"non-finite threshold", EnvOKThreshold, "NaN", "finite"},
		{"bad log format", EnvLogFormat, "xml", "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)

			_, err := New()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "gatekeeper.toml")
	contents := `
[thresholds]
ok = 0.9
questionable = 0.6

[constraints]
max_speed_px_s = 400.0

[cosmos]
model = "reason-3"

[agent]
outputs_dir = "/tmp/out"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvCosmosModel, "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OKThreshold() != 0.9 || cfg.QuestionableThreshold() != 0.6 {
		t.Errorf("thresholds = %v/%v, want 0.9/0.6", cfg.OKThreshold(), cfg.QuestionableThreshold())
	}
	if cfg.MaxSpeedPxS() != 400 {
		t.Errorf("MaxSpeedPxS = %v, want 400", cfg.MaxSpeedPxS())
	}
	if cfg.MaxJumpPx() != DefaultMaxJumpPx {
		t.Errorf("MaxJumpPx = %v, want default %v", cfg.MaxJumpPx(), DefaultMaxJumpPx)
	}
	if cfg.CosmosModel() != "from-env" {
		t.Errorf("CosmosModel = %q, want env override %q", cfg.CosmosModel(), "from-env")
	}
	if cfg.OutputsDir() != "/tmp/out" {
		t.Errorf("OutputsDir = %q, want %q", cfg.OutputsDir(), "/tmp/out")
	}
	if cfg.SourcePath() != path {
		t.Errorf("SourcePath = %q, want %q", cfg.SourcePath(), path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "gatekeeper.toml")
	if err := os.WriteFile(path, []byte("[thresholds]\nokay = 0.5\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestDBPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, "/var/lib/gk")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath() != filepath.Join("/var/lib/gk", DBFilename) {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
	if cfg.LockPath() != filepath.Join("/var/lib/gk", LockFilename) {
		t.Errorf("LockPath = %q", cfg.LockPath())
	}
}
