package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeEvaluate = "evaluate"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Flag sources recorded in flagged_objects.
const (
	FlagSourceHeuristic = "heuristic"
	FlagSourceModel     = "model"
)

// DetectionsSuffix names the detections document paired with a clip.
const DetectionsSuffix = "_detections.json"

// Evaluation is one recorded gatekeeper run.
type Evaluation struct {
	ID              string     `json:"id"`
	ClipID          string     `json:"clip_id"`
	Verdict         string     `json:"verdict"`
	Score           float64    `json:"score"`
	HeuristicScore  *float64   `json:"heuristic_score,omitempty"`
	CombineMethod   string     `json:"combine_method"`
	ReasoningStatus string     `json:"reasoning_status"`
	Explanation     string     `json:"explanation"`
	ClipPath        string     `json:"clip_path,omitempty"`
	DetectionsPath  string     `json:"detections_path,omitempty"`
	ReportPath      string     `json:"report_path"`
	OverlayPath     string     `json:"overlay_path,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Flags           []FlagItem `json:"flags"`
}

// FlagItem is a flagged object as stored, with the prefix split into Source.
type FlagItem struct {
	ObjectID string `json:"object_id"`
	Source   string `json:"source"`
	Reason   string `json:"reason"`
}

type Job struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	ClipPath       string    `json:"clip_path,omitempty"`
	DetectionsPath string    `json:"detections_path"`
	OutputsDir     string    `json:"outputs_dir"`
	Overlay        bool      `json:"overlay"`
	EvaluationID   string    `json:"evaluation_id,omitempty"`
	Progress       int       `json:"progress"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ClipIDFromDetections returns the clip id encoded in a detections filename,
// or "" when the name does not carry the suffix.
func ClipIDFromDetections(filename string) string {
	base := filepath.Base(filename)
	if !strings.HasSuffix(base, DetectionsSuffix) {
		return ""
	}
	return strings.TrimSuffix(base, DetectionsSuffix)
}
