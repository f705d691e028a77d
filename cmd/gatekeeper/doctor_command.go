package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/media"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg/ffprobe availability and the reasoning service mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := ctx.components()
			if err != nil {
				return err
			}

			caps, err := comp.doctor.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("doctor probe: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderToolsTable(caps))
			fmt.Fprintf(out, "Overlay rendering: %s\n", yesNo(caps.CanRender()))
			fmt.Fprintf(out, "Video probing:     %s\n", yesNo(caps.CanProbe()))

			mode := comp.reasoner.Mode()
			if comp.cfg.CosmosEnabled() {
				mode = fmt.Sprintf("%s (%s)", mode, comp.cfg.CosmosModel())
			}
			fmt.Fprintf(out, "Reasoning service: %s\n", mode)
			return nil
		},
	}
}

func renderToolsTable(caps *media.Capabilities) string {
	headers := []string{"TOOL", "AVAILABLE", "VERSION", "PATH"}
	rows := [][]string{
		toolRow("ffmpeg", caps.FFmpeg),
		toolRow("ffprobe", caps.FFprobe),
	}
	return renderTable(headers, rows, nil)
}

func toolRow(name string, info media.ToolInfo) []string {
	version := info.Version
	if !info.Available && info.Error != "" {
		version = info.Error
	}
	return []string{name, yesNo(info.Available), version, info.Path}
}
