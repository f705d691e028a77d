package api

import (
	"time"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/report"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State            string               `json:"state"`
	LastError        string               `json:"last_error,omitempty"`
	EvaluationsCount int                  `json:"evaluations_count"`
	JobsRunning      int                  `json:"jobs_running"`
	JobsPending      int                  `json:"jobs_pending"`
	JobCounts        map[string]int       `json:"job_counts"`
	ActiveJob        *JobResponse         `json:"active_job,omitempty"`
	ReasoningMode    string               `json:"reasoning_mode"`
	Media            *MediaStatusResponse `json:"media,omitempty"`
	Settings         SettingsResponse     `json:"settings"`
}

type MediaStatusResponse struct {
	FFmpeg      bool   `json:"ffmpeg"`
	FFprobe     bool   `json:"ffprobe"`
	FFmpegVer   string `json:"ffmpeg_version,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type SettingsResponse struct {
	OKThreshold           float64 `json:"ok_threshold"`
	QuestionableThreshold float64 `json:"questionable_threshold"`
	MaxSpeedPxS           float64 `json:"max_speed_px_s"`
	MaxAccelPxS2          float64 `json:"max_accel_px_s2"`
	MaxJumpPx             float64 `json:"max_jump_px"`
}

type EvaluateResponse struct {
	EvaluationID string         `json:"evaluation_id,omitempty"`
	ReportPath   string         `json:"report_path"`
	Report       *report.Output `json:"report"`
}

type EvaluationResponse struct {
	ID              string             `json:"id"`
	ClipID          string             `json:"clip_id"`
	Verdict         string             `json:"verdict"`
	Score           float64            `json:"score"`
	HeuristicScore  *float64           `json:"heuristic_score,omitempty"`
	CombineMethod   string             `json:"combine_method"`
	ReasoningStatus string             `json:"reasoning_status"`
	Explanation     string             `json:"explanation"`
	ReportPath      string             `json:"report_path"`
	HasOverlay      bool               `json:"has_overlay"`
	Flags           []catalog.FlagItem `json:"flags,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

type EvaluationsResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
}

type CreateJobRequest struct {
	ClipPath       string `json:"clip_path,omitempty"`
	DetectionsPath string `json:"detections_path"`
	OutputsDir     string `json:"outputs_dir,omitempty"`
	Overlay        *bool  `json:"overlay,omitempty"`
}

type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

type ScanRequest struct {
	Dir        string `json:"dir"`
	OutputsDir string `json:"outputs_dir,omitempty"`
	Overlay    *bool  `json:"overlay,omitempty"`
}

type ScanResponse struct {
	JobIDs []string `json:"job_ids"`
}

type JobResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	ClipPath       string `json:"clip_path,omitempty"`
	DetectionsPath string `json:"detections_path"`
	EvaluationID   string `json:"evaluation_id,omitempty"`
	Progress       int    `json:"progress"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func EvaluationToResponse(e *catalog.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:              e.ID,
		ClipID:          e.ClipID,
		Verdict:         e.Verdict,
		Score:           e.Score,
		HeuristicScore:  e.HeuristicScore,
		CombineMethod:   e.CombineMethod,
		ReasoningStatus: e.ReasoningStatus,
		Explanation:     e.Explanation,
		ReportPath:      e.ReportPath,
		HasOverlay:      e.OverlayPath != "",
		Flags:           e.Flags,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		Type:           j.Type,
		Status:         j.Status,
		ClipPath:       j.ClipPath,
		DetectionsPath: j.DetectionsPath,
		EvaluationID:   j.EvaluationID,
		Progress:       j.Progress,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.Format(time.RFC3339),
	}
}
