package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/api"
	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/config"
	"github.com/heimdex/gatekeeper/internal/logging"
	"github.com/heimdex/gatekeeper/internal/pipeline"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP agent and job runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.components()
			if err != nil {
				return err
			}
			return runServe(cmd, ctx, comp)
		},
	}
}

func runServe(cmd *cobra.Command, ctx *commandContext, comp *components) error {
	startTime := time.Now()
	cfg, logger := comp.cfg, comp.logger

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another gatekeeper agent is running (lock %s)", cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	logger.Info("starting gatekeeper agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, repo, err := ctx.openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	authToken, err := ensureAuthToken(cmd.Context(), repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  gatekeeper %s\n", config.Version)
	fmt.Fprintf(out, "  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Fprintf(out, "  Auth Token: %s\n", authToken)
	fmt.Fprintf(out, "  Reasoning:  %s\n", comp.reasoner.Mode())
	fmt.Fprintln(out)

	initCtx, initCancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	if caps, err := comp.doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else {
		logger.Info("media tools detected", "ffmpeg", caps.FFmpeg.Available, "ffprobe", caps.FFprobe.Available)
	}
	initCancel()

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := catalog.NewService(repo, logger)
	runner := catalog.NewRunner(svc, repo, comp.gatekeeper, logger)
	go runner.Start(runCtx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port(),
		OutputsDir:    cfg.OutputsDir(),
		Service:       svc,
		Repository:    repo,
		Runner:        runner,
		Evaluator:     comp.gatekeeper,
		Settings:      pipeline.SettingsFromConfig(cfg),
		Doctor:        comp.doctor,
		ReasoningMode: comp.reasoner.Mode(),
		Logger:        logging.WithComponent(logger, "api"),
		StartTime:     startTime,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start()
	}()

	select {
	case <-runCtx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(ctx context.Context, repo catalog.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
