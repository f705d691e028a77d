package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/pipeline"
	"github.com/heimdex/gatekeeper/internal/plausibility"
	"github.com/heimdex/gatekeeper/internal/report"
)

type fakeBatchEvaluator struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	failID   string
}

func (f *fakeBatchEvaluator) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	id := catalog.ClipIDFromDetections(req.DetectionsPath)
	if id == f.failID {
		return nil, errors.New("broken document")
	}
	return &pipeline.Result{
		Output:     &report.Output{ClipID: id, PlausibilityScore: 1, Verdict: plausibility.VerdictOK, FlaggedObjects: []report.FlaggedObject{}},
		ReportPath: "/out/reports/" + id + "_verdict.json",
	}, nil
}

func TestRunBatch_LimitsWorkersAndKeepsOrder(t *testing.T) {
	var pairs []catalog.Pair
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		pairs = append(pairs, catalog.Pair{ClipID: id, DetectionsPath: id + "_detections.json", ClipPath: id + ".mp4"})
	}
	ev := &fakeBatchEvaluator{failID: "c"}

	outcomes, err := runBatch(context.Background(), ev, pairs, "/out", false, 2)
	if err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if peak := ev.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	for i, o := range outcomes {
		if o.pair.ClipID != pairs[i].ClipID {
			t.Errorf("outcome %d = %s, want %s", i, o.pair.ClipID, pairs[i].ClipID)
		}
	}
	if outcomes[2].err == nil || outcomes[0].err != nil {
		t.Errorf("errors = %v / %v", outcomes[0].err, outcomes[2].err)
	}

	table := renderBatchTable(outcomes)
	for _, want := range []string{"VERDICT", "OK", "1.000", "ERROR", "broken document"} {
		if !strings.Contains(table, want) {
			t.Errorf("table missing %q:\n%s", want, table)
		}
	}
}

func TestRunBatch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pairs := []catalog.Pair{{ClipID: "a", DetectionsPath: "a_detections.json"}}
	if _, err := runBatch(ctx, &fakeBatchEvaluator{}, pairs, "/out", false, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRenderTable_PadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Errorf("table = %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("empty headers should render nothing")
	}
}
