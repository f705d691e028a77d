package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/config"
	"github.com/heimdex/gatekeeper/internal/db"
	"github.com/heimdex/gatekeeper/internal/logging"
	"github.com/heimdex/gatekeeper/internal/media"
	"github.com/heimdex/gatekeeper/internal/pipeline"
	"github.com/heimdex/gatekeeper/internal/reasoning"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger; it writes to stderr so stdout stays
// reserved for command output.
func (c *commandContext) loggerFor(cfg *config.EnvConfig) *slog.Logger {
	c.loggerOnce.Do(func() {
		level := cfg.LogLevel()
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.logger = logging.NewLogger(level, cfg.LogFormat(), os.Stderr)
	})
	return c.logger
}

// components bundles what the evaluating commands share.
type components struct {
	cfg        *config.EnvConfig
	logger     *slog.Logger
	reasoner   reasoning.Client
	runner     *media.SubprocessRunner
	doctor     *media.CachedDoctor
	overlay    *media.FFmpegOverlay
	gatekeeper *pipeline.Gatekeeper
}

func (c *commandContext) components() (*components, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.loggerFor(cfg)

	reasoner := reasoning.New(reasoning.Config{
		URL:     cfg.CosmosURL(),
		APIKey:  cfg.CosmosKey(),
		Model:   cfg.CosmosModel(),
		Timeout: cfg.CosmosTimeout(),
	}, logger)

	runner := media.NewRunner(media.DefaultConfig(cfg.FFmpegPath(), cfg.FFprobePath(), logger))
	doctor := media.NewCachedDoctor(runner, logger)
	overlay := media.NewFFmpegOverlay(runner, doctor, logger)

	gk := pipeline.New(pipeline.SettingsFromConfig(cfg), reasoner, logger,
		pipeline.WithOverlay(overlay),
		pipeline.WithProber(media.NewProber(runner, logger)),
	)

	return &components{
		cfg:        cfg,
		logger:     logger,
		reasoner:   reasoner,
		runner:     runner,
		doctor:     doctor,
		overlay:    overlay,
		gatekeeper: gk,
	}, nil
}

// openStore opens the history database under the data directory.
func (c *commandContext) openStore(cfg *config.EnvConfig, logger *slog.Logger) (*db.DB, *catalog.SQLiteRepository, error) {
	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return database, catalog.NewRepository(database.Conn()), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
