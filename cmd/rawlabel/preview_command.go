package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/textutil"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var output string

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Export the cached preview or thumbnail of a RAW file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := sourceArg(args[0])
			if err != nil {
				return err
			}
			kind, err := assetstore.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			previews, err := ctx.previewCache(cmd.Context())
			if err != nil {
				return err
			}
			data, err := previews.GetPreview(cmd.Context(), source, kind)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(output)
			if target == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if target == "" {
				target = textutil.PreviewFileName(filepath.Base(source), string(kind))
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", target, humanize.Bytes(uint64(len(data))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(assetstore.KindPreview), "Asset kind: preview or thumbnail")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file, or - for stdout (default <name>.<kind>.jpg)")
	return cmd
}
