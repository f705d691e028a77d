// Package config provides configuration management for the gatekeeper.
// Values come from built-in defaults, an optional TOML file, and environment
// variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort          = 8788
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "auto"
	DefaultDataDir       = ".gatekeeper"
	DefaultOutputsDir    = "outputs"
	DefaultFFmpegPath    = "ffmpeg"
	DefaultFFprobePath   = "ffprobe"
	DefaultCosmosModel   = "reason-2"
	DefaultCosmosTimeout = 30 // seconds

	DefaultOKThreshold           = 0.70
	DefaultQuestionableThreshold = 0.45
	DefaultMaxSpeedPxS           = 900.0
	DefaultMaxAccelPxS2          = 6000.0
	DefaultMaxJumpPx             = 120.0

	// Environment variable names
	EnvConfigPath = "GATEKEEPER_CONFIG"
	EnvPort       = "GATEKEEPER_PORT"
	EnvLogLevel   = "GATEKEEPER_LOG_LEVEL"
	EnvLogFormat  = "GATEKEEPER_LOG_FORMAT"
	EnvDataDir    = "GATEKEEPER_DATA_DIR"
	EnvOutputsDir = "GATEKEEPER_OUTPUTS_DIR"
	EnvFFmpeg     = "GATEKEEPER_FFMPEG"
	EnvFFprobe    = "GATEKEEPER_FFPROBE"

	EnvOKThreshold           = "GATEKEEPER_OK_THRESHOLD"
	EnvQuestionableThreshold = "GATEKEEPER_QUESTIONABLE_THRESHOLD"
	EnvMaxSpeed              = "MAX_SPEED_PX_S"
	EnvMaxAccel              = "MAX_ACCEL_PX_S2"
	EnvMaxJump               = "MAX_JUMP_PX"

	// Secondary reasoning service
	EnvCosmosURL     = "COSMOS_API_URL"
	EnvCosmosKey     = "COSMOS_API_KEY"
	EnvCosmosModel   = "COSMOS_MODEL"
	EnvCosmosTimeout = "COSMOS_TIMEOUT_S"

	// Database filename
	DBFilename = "gatekeeper.db"
	// Lock filename guarding a single serve instance per data dir
	LockFilename = "gatekeeper.lock"
)

// File mirrors the optional TOML configuration file.
type File struct {
	Thresholds  Thresholds  `toml:"thresholds"`
	Constraints Constraints `toml:"constraints"`
	Cosmos      Cosmos      `toml:"cosmos"`
	Agent       Agent       `toml:"agent"`
	Logging     Logging     `toml:"logging"`
}

// Thresholds holds verdict cut points.
type Thresholds struct {
	OK           float64 `toml:"ok"`
	Questionable float64 `toml:"questionable"`
}

// Constraints holds the kinematic limits used by the heuristic scorer.
type Constraints struct {
	MaxSpeedPxS  float64 `toml:"max_speed_px_s"`
	MaxAccelPxS2 float64 `toml:"max_accel_px_s2"`
	MaxJumpPx    float64 `toml:"max_jump_px"`
}

// Cosmos holds the secondary reasoning service connection settings.
type Cosmos struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Agent holds paths and binaries used by the CLI and agent mode.
type Agent struct {
	Port       int    `toml:"port"`
	DataDir    string `toml:"data_dir"`
	OutputsDir string `toml:"outputs_dir"`
	FFmpeg     string `toml:"ffmpeg"`
	FFprobe    string `toml:"ffprobe"`
}

// Logging holds log settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// EnvConfig is the resolved, immutable configuration.
type EnvConfig struct {
	port       int
	logLevel   string
	logFormat  string
	dataDir    string
	outputsDir string
	ffmpeg     string
	ffprobe    string

	okThreshold           float64
	questionableThreshold float64
	maxSpeed              float64
	maxAccel              float64
	maxJump               float64

	cosmosURL     string
	cosmosKey     string
	cosmosModel   string
	cosmosTimeout time.Duration

	sourcePath string
}

// Default returns the built-in file configuration.
func Default() File {
	return File{
		Thresholds: Thresholds{
			OK:           DefaultOKThreshold,
			Questionable: DefaultQuestionableThreshold,
		},
		Constraints: Constraints{
			MaxSpeedPxS:  DefaultMaxSpeedPxS,
			MaxAccelPxS2: DefaultMaxAccelPxS2,
			MaxJumpPx:    DefaultMaxJumpPx,
		},
		Cosmos: Cosmos{
			Model:          DefaultCosmosModel,
			TimeoutSeconds: DefaultCosmosTimeout,
		},
		Agent: Agent{
			Port:       DefaultPort,
			DataDir:    defaultDataDir(),
			OutputsDir: DefaultOutputsDir,
			FFmpeg:     DefaultFFmpegPath,
			FFprobe:    DefaultFFprobePath,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// New creates a new EnvConfig from defaults and environment variables only.
func New() (*EnvConfig, error) {
	return Load("")
}

// Load reads the TOML file at path (when non-empty, or when GATEKEEPER_CONFIG
// is set), applies environment overrides, and validates the result.
// A missing explicit file is an error.
func Load(path string) (*EnvConfig, error) {
	file := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		if err := decodeFile(expanded, &file); err != nil {
			return nil, err
		}
		path = expanded
	}

	if err := applyEnv(&file); err != nil {
		return nil, err
	}

	cfg := &EnvConfig{
		port:                  file.Agent.Port,
		logLevel:              file.Logging.Level,
		logFormat:             file.Logging.Format,
		dataDir:               file.Agent.DataDir,
		outputsDir:            file.Agent.OutputsDir,
		ffmpeg:                file.Agent.FFmpeg,
		ffprobe:               file.Agent.FFprobe,
		okThreshold:           file.Thresholds.OK,
		questionableThreshold: file.Thresholds.Questionable,
		maxSpeed:              file.Constraints.MaxSpeedPxS,
		maxAccel:              file.Constraints.MaxAccelPxS2,
		maxJump:               file.Constraints.MaxJumpPx,
		cosmosURL:             strings.TrimSpace(file.Cosmos.APIURL),
		cosmosKey:             strings.TrimSpace(file.Cosmos.APIKey),
		cosmosModel:           file.Cosmos.Model,
		cosmosTimeout:         time.Duration(file.Cosmos.TimeoutSeconds) * time.Second,
		sourcePath:            path,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, file *File) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	decoder := toml.NewDecoder(f)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(file *File) error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		file.Agent.Port = port
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{EnvOKThreshold, &file.Thresholds.OK},
		{EnvQuestionableThreshold, &file.Thresholds.Questionable},
		{EnvMaxSpeed, &file.Constraints.MaxSpeedPxS},
		{EnvMaxAccel, &file.Constraints.MaxAccelPxS2},
		{EnvMaxJump, &file.Constraints.MaxJumpPx},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.env, err)
		}
		if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return fmt.Errorf("invalid %s: must be a finite number", f.env)
		}
		*f.dst = parsed
	}

	if v := os.Getenv(EnvCosmosTimeout); v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCosmosTimeout, err)
		}
		file.Cosmos.TimeoutSeconds = secs
	}

	strs := []struct {
		env string
		dst *string
	}{
		{EnvLogLevel, &file.Logging.Level},
		{EnvLogFormat, &file.Logging.Format},
		{EnvDataDir, &file.Agent.DataDir},
		{EnvOutputsDir, &file.Agent.OutputsDir},
		{EnvFFmpeg, &file.Agent.FFmpeg},
		{EnvFFprobe, &file.Agent.FFprobe},
		{EnvCosmosURL, &file.Cosmos.APIURL},
		{EnvCosmosKey, &file.Cosmos.APIKey},
		{EnvCosmosModel, &file.Cosmos.Model},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate checks value ranges and threshold ordering.
func (c *EnvConfig) Validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.okThreshold < 0 || c.okThreshold > 1 {
		return fmt.Errorf("invalid ok threshold %v: must be within [0,1]", c.okThreshold)
	}
	if c.questionableThreshold < 0 || c.questionableThreshold > 1 {
		return fmt.Errorf("invalid questionable threshold %v: must be within [0,1]", c.questionableThreshold)
	}
	if c.okThreshold <= c.questionableThreshold {
		return fmt.Errorf("ok threshold %v must be greater than questionable threshold %v",
			c.okThreshold, c.questionableThreshold)
	}
	if c.maxSpeed <= 0 || c.maxAccel <= 0 || c.maxJump <= 0 {
		return errors.New("kinematic constraints must be positive")
	}
	if c.cosmosTimeout <= 0 {
		return fmt.Errorf("invalid cosmos timeout %v: must be positive", c.cosmosTimeout)
	}
	switch strings.ToLower(c.logFormat) {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("invalid log format %q: want auto, json or text", c.logFormat)
	}
	if strings.TrimSpace(c.dataDir) == "" {
		return errors.New("data dir must not be empty")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log format (auto, json, text)
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the path of the serve lock file
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// OutputsDir returns the root directory for reports and overlays
func (c *EnvConfig) OutputsDir() string {
	return c.outputsDir
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

func (c *EnvConfig) OKThreshold() float64 {
	return c.okThreshold
}

func (c *EnvConfig) QuestionableThreshold() float64 {
	return c.questionableThreshold
}

func (c *EnvConfig) MaxSpeedPxS() float64 {
	return c.maxSpeed
}

func (c *EnvConfig) MaxAccelPxS2() float64 {
	return c.maxAccel
}

func (c *EnvConfig) MaxJumpPx() float64 {
	return c.maxJump
}

func (c *EnvConfig) CosmosURL() string {
	return c.cosmosURL
}

func (c *EnvConfig) CosmosKey() string {
	return c.cosmosKey
}

func (c *EnvConfig) CosmosModel() string {
	return c.cosmosModel
}

func (c *EnvConfig) CosmosTimeout() time.Duration {
	return c.cosmosTimeout
}

// CosmosEnabled reports whether both the endpoint and credential are set.
func (c *EnvConfig) CosmosEnabled() bool {
	return c.cosmosURL != "" && c.cosmosKey != ""
}

// SourcePath returns the TOML file the config was loaded from, or "".
func (c *EnvConfig) SourcePath() string {
	return c.sourcePath
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
