package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rawlabel/internal/assetstore"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the preview asset store",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheStatusCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and sizes for the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.assetStore(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:  %s\n", cfg.Cache.Backend)
			fmt.Fprintf(out, "Location: %s\n", stats.Root)
			fmt.Fprintf(out, "Entries:  %s (%s)\n", humanize.Comma(int64(stats.Entries)), humanize.Bytes(uint64(stats.TotalBytes)))
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Free:     %s of %s\n", humanize.Bytes(stats.FreeBytes), humanize.Bytes(stats.TotalFSBytes))
			}
			if len(stats.ByKind) == 0 {
				return nil
			}
			kinds := make([]string, 0, len(stats.ByKind))
			for kind := range stats.ByKind {
				kinds = append(kinds, string(kind))
			}
			sort.Strings(kinds)
			rows := make([][]string, 0, len(kinds))
			for _, kind := range kinds {
				rows = append(rows, []string{kind, strconv.Itoa(stats.ByKind[assetstore.Kind(kind)])})
			}
			fmt.Fprintln(out, renderTable([]string{"Kind", "Entries"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newCacheStatusCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "status <file>",
		Short: "Report whether a fresh asset is stored for a RAW file",
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
			status, err := previews.Stat(cmd.Context(), source, kind)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source:  %s\n", source)
			fmt.Fprintf(out, "Kind:    %s\n", kind)
			fmt.Fprintf(out, "Stored:  %s\n", yesNo(status.Exists))
			if !status.Exists {
				return nil
			}
			fmt.Fprintf(out, "Fresh:   %s\n", yesNo(status.Fresh))
			fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(status.Bytes)))
			if !status.GeneratedAt.IsZero() {
				fmt.Fprintf(out, "Created: %s\n", humanize.Time(status.GeneratedAt))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(assetstore.KindPreview), "Asset kind: preview or thumbnail")
	return cmd
}
