package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"rawlabel/internal/annotation"
	"rawlabel/internal/api"
)

func newImagesCommand(ctx *commandContext) *cobra.Command {
	var search string
	var orderBy string
	var pageToken string
	var pageSize int
	var filters []string

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List registered images with their accepted labels",
		Long: "List registered images. Criteria come from --search (a JSON object) and/or\n" +
			"repeated --where field=value flags; string fields match by case-insensitive\n" +
			"substring. --order-by takes a field name, prefixed with - for descending.",
		Example: `  rawlabel images --where make=sony --order-by -model
  rawlabel images --search '{"id": 3}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseCriteria(search, filters)
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			page, err := store.ListImages(cmd.Context(), criteria, orderBy, annotation.PageRequest{Token: pageToken, Size: pageSize})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.FromPage(page))
			}

			out := cmd.OutOrStdout()
			if len(page.Images) == 0 {
				fmt.Fprintln(out, "No images match")
				return nil
			}
			headers := []string{"ID", "Filename"}
			for _, key := range annotation.Keys {
				headers = append(headers, string(key))
			}
			rows := make([][]string, 0, len(page.Images))
			for _, img := range page.Images {
				row := []string{fmt.Sprint(img.ID), img.Filename}
				for _, key := range annotation.Keys {
					row = append(row, img.Annotations[key])
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignRight}))
			fmt.Fprintf(out, "%d of %s images\n", len(page.Images), humanize.Comma(int64(page.Total)))
			if page.NextToken != "" {
				fmt.Fprintf(out, "Next page: --page-token %s\n", page.NextToken)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Criteria as a JSON object")
	cmd.Flags().StringArrayVarP(&filters, "where", "w", nil, "Criterion as field=value (repeatable)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "Sort field, prefix with - for descending (default filename)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continuation token from a previous page")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Images per page (default annotation.page_size)")
	return cmd
}

// parseCriteria merges the JSON search object with field=value pairs. Pair
// values stay strings; typed columns cast them.
func parseCriteria(search string, pairs []string) (map[string]any, error) {
	criteria := map[string]any{}
	if search = strings.TrimSpace(search); search != "" {
		if err := json.Unmarshal([]byte(search), &criteria); err != nil {
			return nil, fmt.Errorf("--search must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("--where %q: expected field=value", pair)
		}
		criteria[strings.TrimSpace(field)] = value
	}
	return criteria, nil
}
