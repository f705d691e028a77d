package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/config"
	"github.com/heimdex/gatekeeper/internal/detections"
	"github.com/heimdex/gatekeeper/internal/logging"
	"github.com/heimdex/gatekeeper/internal/pipeline"
	"github.com/heimdex/gatekeeper/internal/report"
)

// maxDocumentBytes caps POST /evaluate bodies.
const maxDocumentBytes = 32 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/evaluate", evaluateHandler(cfg))
		r.Get("/evaluations", listEvaluationsHandler(cfg))
		r.Get("/evaluations/{id}", getEvaluationHandler(cfg))
		r.With(LoopbackGuard()).Get("/evaluations/{id}/overlay", overlayHandler(cfg))
		r.Post("/jobs", createJobHandler(cfg))
		r.Post("/scan", scanHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		counts, err := cfg.Repository.CountJobsByStatus(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count jobs", "INTERNAL_ERROR")
			return
		}
		evalCount, _ := cfg.Repository.CountEvaluations(ctx)
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Status == catalog.JobStatusRunning && activeJob == nil {
				state = "evaluating"
				resp := JobToResponse(j)
				activeJob = &resp
			}
			if j.Status == catalog.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		s := cfg.Settings
		resp := StatusResponse{
			State:            state,
			LastError:        lastError,
			EvaluationsCount: evalCount,
			JobsRunning:      counts[catalog.JobStatusRunning],
			JobsPending:      counts[catalog.JobStatusPending],
			JobCounts:        counts,
			ActiveJob:        activeJob,
			ReasoningMode:    cfg.ReasoningMode,
			Settings: SettingsResponse{
				OKThreshold:           s.OKThreshold,
				QuestionableThreshold: s.QuestionableThreshold,
				MaxSpeedPxS:           s.Constraints.MaxSpeedPxS,
				MaxAccelPxS2:          s.Constraints.MaxAccelPxS2,
				MaxJumpPx:             s.Constraints.MaxJumpPx,
			},
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				media := &MediaStatusResponse{
					FFmpeg:    caps.FFmpeg.Available,
					FFprobe:   caps.FFprobe.Available,
					FFmpegVer: caps.FFmpeg.Version,
				}
				if !caps.ProbedAt.IsZero() {
					media.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Media = media
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func evaluateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := detections.Decode(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
		if err != nil {
			if errors.Is(err, detections.ErrInvalidDocument) {
				WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_DOCUMENT")
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res, err := cfg.Evaluator.RunClip(r.Context(), clip, pipeline.Request{OutputsDir: cfg.OutputsDir})
		if err != nil {
			cfg.Logger.Error("evaluation failed", "clip_id", clip.Meta.ClipID, "error", err)
			WriteError(w, http.StatusInternalServerError, "evaluation failed", "INTERNAL_ERROR")
			return
		}

		resp := EvaluateResponse{ReportPath: res.ReportPath, Report: res.Output}
		eval, err := cfg.Service.RecordEvaluation(r.Context(), pipeline.Request{OutputsDir: cfg.OutputsDir}, res)
		if err != nil {
			cfg.Logger.Warn("failed to record evaluation", "clip_id", clip.Meta.ClipID, "error", err)
		} else {
			resp.EvaluationID = eval.ID
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listEvaluationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 50
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		evals, err := cfg.Service.ListEvaluations(r.Context(), q.Get("clip_id"), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list evaluations", "INTERNAL_ERROR")
			return
		}

		resp := EvaluationsResponse{Evaluations: make([]EvaluationResponse, len(evals))}
		for i, e := range evals {
			resp.Evaluations[i] = EvaluationToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// lookupEvaluation writes the error response itself and returns nil when
// the evaluation cannot be served.
func lookupEvaluation(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *catalog.Evaluation {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "evaluation id required", "BAD_REQUEST")
		return nil
	}

	eval, err := cfg.Service.GetEvaluation(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil
	}
	if eval == nil {
		WriteError(w, http.StatusNotFound, "evaluation not found", "NOT_FOUND")
		return nil
	}
	return eval
}

func getEvaluationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eval := lookupEvaluation(cfg, w, r)
		if eval == nil {
			return
		}

		out, err := report.Read(eval.ReportPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "report file missing", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

func overlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eval := lookupEvaluation(cfg, w, r)
		if eval == nil {
			return
		}
		if eval.OverlayPath == "" {
			WriteError(w, http.StatusNotFound, "no overlay for evaluation", "NOT_FOUND")
			return
		}

		f, err := os.Open(eval.OverlayPath)
		if err != nil {
			WriteError(w, http.StatusNotFound, "overlay file missing", "NOT_FOUND")
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			WriteError(w, http.StatusNotFound, "overlay file missing", "NOT_FOUND")
			return
		}

		cfg.Logger.Debug("serving overlay", "evaluation_id", eval.ID, "path", logging.SanitizePath(eval.OverlayPath))
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, filepath.Base(eval.OverlayPath), info.ModTime(), f)
	}
}

func (cfg ServerConfig) overlayDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func (cfg ServerConfig) outputsDir(dir string) string {
	if dir == "" {
		return cfg.OutputsDir
	}
	return dir
}

func createJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.DetectionsPath == "" {
			WriteError(w, http.StatusBadRequest, "detections_path is required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Service.EnqueueEvaluate(r.Context(), pipeline.Request{
			ClipPath:       req.ClipPath,
			DetectionsPath: req.DetectionsPath,
			OutputsDir:     cfg.outputsDir(req.OutputsDir),
			Overlay:        cfg.overlayDefault(req.Overlay),
		})
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusAccepted, CreateJobResponse{JobID: job.ID})
	}
}

func scanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := report.ValidateDir(req.Dir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		jobs, err := cfg.Service.ScanDir(r.Context(), req.Dir, cfg.outputsDir(req.OutputsDir), cfg.overlayDefault(req.Overlay))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		resp := ScanResponse{JobIDs: make([]string, len(jobs))}
		for i, j := range jobs {
			resp.JobIDs[i] = j.ID
		}
		WriteJSON(w, http.StatusAccepted, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Service.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Service.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}
