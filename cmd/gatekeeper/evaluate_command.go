package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/pipeline"
)

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	var clipPath string
	var detectionsPath string
	var outputsDir string
	var noOverlay bool
	var record bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one clip and print its verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(detectionsPath) == "" {
				return errors.New("--detections is required")
			}

			comp, err := ctx.components()
			if err != nil {
				return err
			}
			if outputsDir == "" {
				outputsDir = comp.cfg.OutputsDir()
			}

			req := pipeline.Request{
				ClipPath:       clipPath,
				DetectionsPath: detectionsPath,
				OutputsDir:     outputsDir,
				Overlay:        !noOverlay,
			}
			res, err := comp.gatekeeper.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			if record {
				recordEvaluation(cmd, ctx, comp, req, res)
			}

			return writeJSON(cmd, res.Output)
		},
	}

	cmd.Flags().StringVar(&clipPath, "clip", "", "Path to the video clip (optional; used for the overlay)")
	cmd.Flags().StringVar(&detectionsPath, "detections", "", "Path to the detections JSON document")
	cmd.Flags().StringVar(&outputsDir, "outputs", "", "Outputs directory (default from config)")
	cmd.Flags().BoolVar(&noOverlay, "no-overlay", false, "Skip rendering the overlay video")
	cmd.Flags().BoolVar(&record, "record", false, "Store the evaluation in the history database")

	return cmd
}

// recordEvaluation stores the result; failures only warn because the
// report is already on disk.
func recordEvaluation(cmd *cobra.Command, ctx *commandContext, comp *components, req pipeline.Request, res *pipeline.Result) {
	database, repo, err := ctx.openStore(comp.cfg, comp.logger)
	if err != nil {
		comp.logger.Warn("history unavailable", "error", err)
		return
	}
	defer database.Close()

	eval, err := catalog.NewService(repo, comp.logger).RecordEvaluation(cmd.Context(), req, res)
	if err != nil {
		comp.logger.Warn("failed to record evaluation", "clip_id", res.Output.ClipID, "error", err)
		return
	}
	comp.logger.Debug("evaluation stored", "evaluation_id", eval.ID)
}
