package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/heimdex/gatekeeper/internal/pipeline"
	"github.com/heimdex/gatekeeper/internal/report"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindPairs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b_detections.json"))
	touch(t, filepath.Join(dir, "a_detections.json"))
	touch(t, filepath.Join(dir, "a.mp4"))
	touch(t, filepath.Join(dir, "c.mov"))
	touch(t, filepath.Join(dir, "notes.txt"))
	os.Mkdir(filepath.Join(dir, "x_detections.json"), 0o755)

	got, err := FindPairs(dir)
	if err != nil {
		t.Fatalf("FindPairs: %v", err)
	}
	want := []Pair{
		{ClipID: "a", DetectionsPath: filepath.Join(dir, "a_detections.json"), ClipPath: filepath.Join(dir, "a.mp4")},
		{ClipID: "b", DetectionsPath: filepath.Join(dir, "b_detections.json")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindPairs (-want +got):\n%s", diff)
	}
}

func TestFindPairs_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	touch(t, file)

	if _, err := FindPairs(file); err == nil {
		t.Error("FindPairs(file) should fail")
	}
	if _, err := FindPairs(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("FindPairs(missing) should fail")
	}
}

func TestClipIDFromDetections(t *testing.T) {
	tests := map[string]string{
		"clip_a_detections.json":     "clip_a",
		"/x/y/z_detections.json":     "z",
		"clip_a.json":                "",
		"clip_a_detections.json.bak": "",
	}
	for in, want := range tests {
		if got := ClipIDFromDetections(in); got != want {
			t.Errorf("ClipIDFromDetections(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitFlags(t *testing.T) {
	got := SplitFlags([]report.FlaggedObject{
		{ObjectID: "car", Reason: "[heuristic] speed 1000.0 px/s > 900.0"},
		{ObjectID: "ped", Reason: "[model] floats"},
		{ObjectID: "x", Reason: "other"},
	})
	want := []FlagItem{
		{ObjectID: "car", Source: FlagSourceHeuristic, Reason: "speed 1000.0 px/s > 900.0"},
		{ObjectID: "ped", Source: FlagSourceModel, Reason: "floats"},
		{ObjectID: "x", Reason: "other"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitFlags (-want +got):\n%s", diff)
	}
}

func TestService_RecordEvaluation(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)
	ctx := context.Background()

	res := &pipeline.Result{
		ReportPath: "/out/reports/a_verdict.json",
		Output: &report.Output{
			ClipID:            "a",
			PlausibilityScore: 0.52,
			Verdict:           "QUESTIONABLE",
			Explanation:       "odd",
			FlaggedObjects:    []report.FlaggedObject{{ObjectID: "car", Reason: "[heuristic] jump 500.0px > 120.0px"}},
			Evidence: &report.Evidence{Checks: []report.CheckResult{
				{Name: report.CheckHeuristicsScore, Passed: true, Details: "0.800"},
				{Name: report.CheckCombineMethod, Passed: true, Details: "blend_0.6_model_0.4_heuristic"},
				{Name: report.CheckCosmosStatus, Passed: true, Details: "ok"},
			}},
		},
	}
	req := pipeline.Request{DetectionsPath: "/data/a_detections.json"}

	e, err := svc.RecordEvaluation(ctx, req, res)
	if err != nil {
		t.Fatalf("RecordEvaluation: %v", err)
	}

	got, err := svc.GetEvaluation(ctx, e.ID)
	if err != nil || got == nil {
		t.Fatalf("GetEvaluation = %v, %v", got, err)
	}
	if got.HeuristicScore == nil || *got.HeuristicScore != 0.8 {
		t.Errorf("HeuristicScore = %v", got.HeuristicScore)
	}
	if got.CombineMethod != "blend_0.6_model_0.4_heuristic" || got.ReasoningStatus != "ok" {
		t.Errorf("method=%q status=%q", got.CombineMethod, got.ReasoningStatus)
	}
	want := []FlagItem{{ObjectID: "car", Source: FlagSourceHeuristic, Reason: "jump 500.0px > 120.0px"}}
	if diff := cmp.Diff(want, got.Flags); diff != "" {
		t.Errorf("flags (-want +got):\n%s", diff)
	}

	if _, err := svc.RecordEvaluation(ctx, req, nil); err == nil {
		t.Error("RecordEvaluation(nil) should fail")
	}
}

func TestService_EnqueueEvaluate(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)
	ctx := context.Background()
	dir := t.TempDir()
	det := filepath.Join(dir, "a_detections.json")
	touch(t, det)

	job, err := svc.EnqueueEvaluate(ctx, pipeline.Request{DetectionsPath: det, OutputsDir: "out", Overlay: true})
	if err != nil {
		t.Fatalf("EnqueueEvaluate: %v", err)
	}
	if job.Status != JobStatusPending || job.Type != JobTypeEvaluate || !job.Overlay {
		t.Errorf("job = %+v", job)
	}

	tests := []struct {
		name string
		req  pipeline.Request
	}{
		{"no detections", pipeline.Request{OutputsDir: "out"}},
		{"missing detections", pipeline.Request{DetectionsPath: filepath.Join(dir, "nope.json"), OutputsDir: "out"}},
		{"directory", pipeline.Request{DetectionsPath: dir, OutputsDir: "out"}},
		{"no outputs", pipeline.Request{DetectionsPath: det}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.EnqueueEvaluate(ctx, tt.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestService_ScanDir(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, nil)
	ctx := context.Background()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a_detections.json"))
	touch(t, filepath.Join(dir, "a.mp4"))
	touch(t, filepath.Join(dir, "b_detections.json"))

	jobs, err := svc.ScanDir(ctx, dir, "out", false)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].ClipPath != filepath.Join(dir, "a.mp4") || jobs[1].ClipPath != "" {
		t.Errorf("clip paths = %q, %q", jobs[0].ClipPath, jobs[1].ClipPath)
	}

	listed, err := svc.ListJobs(ctx, 10)
	if err != nil || len(listed) != 2 {
		t.Errorf("ListJobs = %d, %v", len(listed), err)
	}
}
