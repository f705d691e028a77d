package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/gatekeeper/internal/pipeline"
	"github.com/heimdex/gatekeeper/internal/report"
)

type CatalogService interface {
	RecordEvaluation(ctx context.Context, req pipeline.Request, res *pipeline.Result) (*Evaluation, error)
	GetEvaluation(ctx context.Context, id string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, clipID string, limit int) ([]*Evaluation, error)
	EnqueueEvaluate(ctx context.Context, req pipeline.Request) (*Job, error)
	ScanDir(ctx context.Context, dir, outputsDir string, overlay bool) ([]*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// RecordEvaluation stores the outcome of one pipeline run.
func (s *Service) RecordEvaluation(ctx context.Context, req pipeline.Request, res *pipeline.Result) (*Evaluation, error) {
	if res == nil || res.Output == nil {
		return nil, fmt.Errorf("record evaluation: empty result")
	}
	out := res.Output

	e := &Evaluation{
		ID:             NewID(),
		ClipID:         out.ClipID,
		Verdict:        string(out.Verdict),
		Score:          out.PlausibilityScore,
		Explanation:    out.Explanation,
		ClipPath:       req.ClipPath,
		DetectionsPath: req.DetectionsPath,
		ReportPath:     res.ReportPath,
		OverlayPath:    res.OverlayPath,
		CreatedAt:      time.Now(),
		Flags:          SplitFlags(out.FlaggedObjects),
	}
	if c, ok := out.Check(report.CheckHeuristicsScore); ok {
		if v, err := strconv.ParseFloat(c.Details, 64); err == nil {
			e.HeuristicScore = &v
		}
	}
	if c, ok := out.Check(report.CheckCombineMethod); ok {
		e.CombineMethod = c.Details
	}
	if c, ok := out.Check(report.CheckCosmosStatus); ok {
		e.ReasoningStatus = c.Details
	}

	if err := s.repo.CreateEvaluation(ctx, e); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("evaluation recorded", "evaluation_id", e.ID, "clip_id", e.ClipID, "verdict", e.Verdict)
	}
	return e, nil
}

// SplitFlags turns report flags into stored flags, moving the reason prefix
// into Source.
func SplitFlags(flags []report.FlaggedObject) []FlagItem {
	items := make([]FlagItem, 0, len(flags))
	for _, f := range flags {
		item := FlagItem{ObjectID: f.ObjectID, Reason: f.Reason}
		if rest, ok := strings.CutPrefix(f.Reason, pipeline.HeuristicPrefix); ok {
			item.Source, item.Reason = FlagSourceHeuristic, rest
		} else if rest, ok := strings.CutPrefix(f.Reason, pipeline.ModelPrefix); ok {
			item.Source, item.Reason = FlagSourceModel, rest
		}
		items = append(items, item)
	}
	return items
}

func (s *Service) GetEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	return s.repo.GetEvaluation(ctx, id)
}

func (s *Service) ListEvaluations(ctx context.Context, clipID string, limit int) ([]*Evaluation, error) {
	return s.repo.ListEvaluations(ctx, clipID, limit)
}

// EnqueueEvaluate creates a pending evaluate job. The detections file must
// exist; the clip is optional.
func (s *Service) EnqueueEvaluate(ctx context.Context, req pipeline.Request) (*Job, error) {
	if req.DetectionsPath == "" {
		return nil, fmt.Errorf("detections path is required")
	}
	detPath, err := filepath.Abs(req.DetectionsPath)
	if err != nil {
		return nil, fmt.Errorf("invalid detections path: %w", err)
	}
	info, err := os.Stat(detPath)
	if err != nil {
		return nil, fmt.Errorf("detections file does not exist: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("detections path is a directory")
	}

	clipPath := req.ClipPath
	if clipPath != "" {
		if clipPath, err = filepath.Abs(clipPath); err != nil {
			return nil, fmt.Errorf("invalid clip path: %w", err)
		}
	}
	if req.OutputsDir == "" {
		return nil, fmt.Errorf("outputs dir is required")
	}

	now := time.Now()
	job := &Job{
		ID:             NewID(),
		Type:           JobTypeEvaluate,
		Status:         JobStatusPending,
		ClipPath:       clipPath,
		DetectionsPath: detPath,
		OutputsDir:     req.OutputsDir,
		Overlay:        req.Overlay,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("evaluate job queued", "job_id", job.ID, "detections", filepath.Base(detPath))
	}
	return job, nil
}

// ScanDir queues an evaluate job for every detections document in dir.
func (s *Service) ScanDir(ctx context.Context, dir, outputsDir string, overlay bool) ([]*Job, error) {
	pairs, err := FindPairs(dir)
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(pairs))
	for _, p := range pairs {
		job, err := s.EnqueueEvaluate(ctx, pipeline.Request{
			ClipPath:       p.ClipPath,
			DetectionsPath: p.DetectionsPath,
			OutputsDir:     outputsDir,
			Overlay:        overlay,
		})
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

// Pair is a detections document and its clip, when one exists.
type Pair struct {
	ClipID         string
	DetectionsPath string
	ClipPath       string // empty when no video sits next to the detections
}

// FindPairs lists <id>_detections.json files in dir, sorted by clip id, and
// matches each with <id>.mp4 (or another video extension) in the same dir.
func FindPairs(dir string) ([]Pair, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("samples dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("samples dir: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	videos := make(map[string]string)
	var pairs []Pair
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if id := ClipIDFromDetections(name); id != "" {
			pairs = append(pairs, Pair{ClipID: id, DetectionsPath: filepath.Join(dir, name)})
			continue
		}
		if IsVideoFile(name) {
			id := strings.TrimSuffix(name, filepath.Ext(name))
			if prev, ok := videos[id]; !ok || strings.HasSuffix(name, ".mp4") && !strings.HasSuffix(prev, ".mp4") {
				videos[id] = filepath.Join(dir, name)
			}
		}
	}

	for i := range pairs {
		pairs[i].ClipPath = videos[pairs[i].ClipID]
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ClipID < pairs[j].ClipID })
	return pairs, nil
}
