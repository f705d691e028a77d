package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/pipeline"
)

const defaultSamplesDir = "data/samples"

// batchEvaluator is the part of the pipeline the batch command drives.
type batchEvaluator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type batchOutcome struct {
	pair   catalog.Pair
	result *pipeline.Result
	err    error
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var samplesDir string
	var outputsDir string
	var workers int
	var noOverlay bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate every <id>_detections.json / <id>.mp4 pair in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.components()
			if err != nil {
				return err
			}
			if outputsDir == "" {
				outputsDir = comp.cfg.OutputsDir()
			}

			pairs, err := catalog.FindPairs(samplesDir)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				return fmt.Errorf("no *%s files in %s", catalog.DetectionsSuffix, samplesDir)
			}

			var ready []catalog.Pair
			for _, p := range pairs {
				if p.ClipPath == "" {
					comp.logger.Warn("skipping detections without clip", "clip_id", p.ClipID, "detections", filepath.Base(p.DetectionsPath))
					continue
				}
				ready = append(ready, p)
			}

			outcomes, err := runBatch(cmd.Context(), comp.gatekeeper, ready, outputsDir, !noOverlay, workers)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderBatchTable(outcomes))

			failed := 0
			for _, o := range outcomes {
				if o.err != nil {
					comp.logger.Error("evaluation failed", "clip_id", o.pair.ClipID, "error", o.err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d clips failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&samplesDir, "samples-dir", defaultSamplesDir, "Directory holding detections and clips")
	cmd.Flags().StringVar(&outputsDir, "outputs", "", "Outputs directory (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of clips evaluated in parallel")
	cmd.Flags().BoolVar(&noOverlay, "no-overlay", false, "Skip rendering overlay videos")

	return cmd
}

// runBatch evaluates pairs with at most workers in flight. Per-clip errors
// are kept in the outcome; only cancellation aborts the batch.
func runBatch(ctx context.Context, ev batchEvaluator, pairs []catalog.Pair, outputsDir string, overlay bool, workers int) ([]batchOutcome, error) {
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]batchOutcome, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := ev.Run(gctx, pipeline.Request{
				ClipPath:       p.ClipPath,
				DetectionsPath: p.DetectionsPath,
				OutputsDir:     outputsDir,
				Overlay:        overlay,
			})
			if errors.Is(err, context.Canceled) {
				return err
			}
			outcomes[i] = batchOutcome{pair: p, result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func renderBatchTable(outcomes []batchOutcome) string {
	headers := []string{"CLIP", "VERDICT", "SCORE", "FLAGGED", "REPORT"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			rows = append(rows, []string{o.pair.ClipID, "ERROR", "-", "-", o.err.Error()})
			continue
		}
		out := o.result.Output
		rows = append(rows, []string{
			out.ClipID,
			string(out.Verdict),
			strconv.FormatFloat(out.PlausibilityScore, 'f', 3, 64),
			strconv.Itoa(len(out.FlaggedObjects)),
			o.result.ReportPath,
		})
	}
	return renderTable(headers, rows, aligns)
}
