package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rawlabel/internal/assetstore"
	"rawlabel/internal/batch"
	"rawlabel/internal/sources"
)

func newWarmCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "warm [file-or-dir...]",
		Short: "Generate previews ahead of time",
		Long: "Generate previews (or thumbnails) for RAW files. Directory arguments are scanned\n" +
			"for files matching paths.raw_extensions; with no arguments the data root is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			kind, err := assetstore.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.Batch.Concurrency
			}
			if len(args) == 0 {
				args = []string{cfg.Paths.DataRoot}
			}

			previews, err := ctx.previewCache(cmd.Context())
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			warmer := batch.New(previews, cfg.Paths.RawExtensions, logger)

			var report batch.Report
			if dir, ok := singleDirectory(args); ok {
				if report, err = warmer.WarmDirectory(cmd.Context(), dir, kind, concurrency); err != nil {
					return err
				}
			} else {
				ids, err := collectSources(cmd, cfg.Paths.RawExtensions, args)
				if err != nil {
					return err
				}
				report = warmer.Warm(cmd.Context(), ids, kind, concurrency)
			}
			if len(report.Results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No RAW files found")
				return nil
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, toWarmJSON(report)); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderWarmReport(report))
			}
			if failed := len(report.Failed()); failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(report.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindFlag, "kind", "k", string(assetstore.KindPreview), "Asset kind: preview or thumbnail")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Parallel decodes (default batch.concurrency)")
	return cmd
}

// singleDirectory reports whether args name exactly one directory.
func singleDirectory(args []string) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	dir, err := sourceArg(args[0])
	if err != nil {
		return "", false
	}
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}

// collectSources expands directory arguments into their RAW files.
func collectSources(cmd *cobra.Command, extensions []string, args []string) ([]string, error) {
	var ids []string
	for _, arg := range args {
		id, err := sourceArg(arg)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(id); err == nil && info.IsDir() {
			entries, err := sources.Scan(cmd.Context(), id, extensions)
			if err != nil {
				return nil, err
			}
			ids = append(ids, sources.Paths(entries)...)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type warmResultJSON struct {
	Source   string `json:"source"`
	OK       bool   `json:"ok"`
	Bytes    int    `json:"bytes,omitempty"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type warmReportJSON struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Elapsed   string           `json:"elapsed"`
	Results   []warmResultJSON `json:"results"`
}

func sortedSources(report batch.Report) []string {
	ids := make([]string, 0, len(report.Results))
	for id := range report.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func toWarmJSON(report batch.Report) warmReportJSON {
	out := warmReportJSON{
		ID:        report.ID,
		Kind:      string(report.Kind),
		Succeeded: len(report.Succeeded()),
		Failed:    len(report.Failed()),
		Elapsed:   report.Elapsed().String(),
	}
	for _, id := range sortedSources(report) {
		res := report.Results[id]
		entry := warmResultJSON{Source: id, OK: res.OK, Bytes: res.Bytes, Duration: res.Duration.String()}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		out.Results = append(out.Results, entry)
	}
	return out
}

func renderWarmReport(report batch.Report) string {
	rows := make([][]string, 0, len(report.Results))
	for _, id := range sortedSources(report) {
		res := report.Results[id]
		status, detail := "ok", humanize.Bytes(uint64(res.Bytes))
		if !res.OK {
			status, detail = "failed", res.Err.Error()
		}
		rows = append(rows, []string{filepath.Base(id), status, detail, res.Duration.Round(time.Millisecond).String()})
	}
	table := renderTable([]string{"Source", "Status", "Detail", "Time"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
	return fmt.Sprintf("%s\n%d succeeded, %d failed in %s\n", table,
		len(report.Succeeded()), len(report.Failed()), report.Elapsed().Round(time.Millisecond))
}
