package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/gatekeeper/internal/logging"
	"github.com/heimdex/gatekeeper/internal/pipeline"
)

// DefaultPollInterval is how often the runner looks for pending jobs.
const DefaultPollInterval = 2 * time.Second

// Evaluator runs one clip evaluation. *pipeline.Gatekeeper implements it.
type Evaluator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Runner struct {
	service      *Service
	repo         Repository
	evaluator    Evaluator
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(service *Service, repo Repository, evaluator Evaluator, logger *slog.Logger) *Runner {
	return &Runner{
		service:      service,
		repo:         repo,
		evaluator:    evaluator,
		logger:       logging.WithComponent(logger, "runner"),
		pollInterval: DefaultPollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// processNextJob runs the oldest pending job. It reports whether one ran.
func (r *Runner) processNextJob(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	job := jobs[0]
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing job", "type", job.Type)

	switch job.Type {
	case JobTypeEvaluate:
		r.processEvaluateJob(ctx, job, logger)
	default:
		logger.Warn("unknown job type", "type", job.Type)
		r.fail(ctx, job, "unknown job type")
	}
	return true
}

func (r *Runner) processEvaluateJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if r.evaluator == nil {
		r.fail(ctx, job, "evaluator not configured")
		return
	}

	if err := r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	req := pipeline.Request{
		ClipPath:       job.ClipPath,
		DetectionsPath: job.DetectionsPath,
		OutputsDir:     job.OutputsDir,
		Overlay:        job.Overlay,
	}
	start := time.Now()
	res, err := r.evaluator.Run(ctx, req)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		r.fail(ctx, job, fmt.Sprintf("evaluation failed: %v", err))
		return
	}
	r.setProgress(ctx, job.ID, 50)

	eval, err := r.service.RecordEvaluation(ctx, req, res)
	if err != nil {
		logger.Error("record evaluation failed", "error", err)
		r.fail(ctx, job, fmt.Sprintf("record evaluation: %v", err))
		return
	}
	if err := r.repo.SetJobEvaluation(ctx, job.ID, eval.ID); err != nil {
		logger.Warn("failed to link evaluation", "evaluation_id", eval.ID, "error", err)
	}
	r.setProgress(ctx, job.ID, 100)

	if err := r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, ""); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return
	}
	logger.Info("evaluate job completed",
		"clip_id", eval.ClipID,
		"verdict", eval.Verdict,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

func (r *Runner) fail(ctx context.Context, job *Job, msg string) {
	if err := r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg); err != nil {
		r.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}

func (r *Runner) setProgress(ctx context.Context, id string, progress int) {
	if err := r.repo.UpdateJobProgress(ctx, id, progress); err != nil {
		r.logger.Warn("failed to update progress", "job_id", id, "error", err)
	}
}

// GetActiveJobCount returns the number of running jobs.
func (r *Runner) GetActiveJobCount(ctx context.Context) int {
	counts, err := r.repo.CountJobsByStatus(ctx)
	if err != nil {
		return 0
	}
	return counts[JobStatusRunning]
}
