package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/detections"
	"github.com/heimdex/gatekeeper/internal/report"
)

func newSynthCommand(ctx *commandContext) *cobra.Command {
	var detectionsPath string
	var outPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Render a synthetic clip (boxes on black) for a detections document",
		Long: "Render a synthetic clip for a detections document so it can be evaluated " +
			"with an overlay when no source video exists. By default the clip is written " +
			"next to the document as <clip_id>.mp4, which is the name batch pairs on.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(detectionsPath) == "" {
				return errors.New("--detections is required")
			}

			clip, err := detections.Load(detectionsPath)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = filepath.Join(filepath.Dir(detectionsPath), report.SanitizeName(clip.Meta.ClipID)+".mp4")
			}
			if _, err := os.Stat(outPath); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", outPath)
			}

			comp, err := ctx.components()
			if err != nil {
				return err
			}
			if err := comp.overlay.RenderSynthetic(cmd.Context(), clip, outPath); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&detectionsPath, "detections", "", "Path to the detections JSON document")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output video path")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing output file")

	return cmd
}
