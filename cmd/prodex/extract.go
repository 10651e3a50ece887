package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/prodex/models"
)

var (
	extractWithMeta *bool
	fieldsTable     *bool
)

func init() {
	extractWithMeta = extractCmd.Flags().Bool("meta", false, "Include stage and timing metadata in the output.")
	fieldsTable = fieldsCmd.Flags().Bool("table", false, "Render the report as tables instead of JSON.")
	rootCmd.AddCommand(extractCmd, fieldsCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extracts one product record and prints it as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := models.ValidateTargetURL(args[0]); err != nil {
			return err
		}
		a, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.pipeline.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var out any = res.Record
		if *extractWithMeta {
			out = models.ExtractResponse{
				Data: res.Record,
				Meta: models.ExtractMeta{
					URL:      res.URL,
					Stage:    res.Stage,
					Source:   res.Source,
					Rendered: res.Rendered,
					Verdict:  string(res.Verdict),
					Timing: models.TimingInfo{
						TotalMs:   res.TotalDuration.Milliseconds(),
						AcquireMs: res.AcquireDuration.Milliseconds(),
						ExtractMs: res.ExtractDuration.Milliseconds(),
					},
				},
			}
		}
		return printJSON(out)
	},
}

var fieldsCmd = &cobra.Command{
	Use:   "fields <url> [--table]",
	Short: "Lists the structured keys, itemprops and meta tags a page exposes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := models.ValidateTargetURL(args[0]); err != nil {
			return err
		}
		a, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.pipeline.Fields(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !*fieldsTable {
			return printJSON(models.FieldsResponse{Data: *report})
		}
		renderFields(report)
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// maxValueWidth truncates long meta values in table output.
const maxValueWidth = 80

func renderFields(report *models.FieldsReport) {
	fmt.Printf("%s (rendered: %t)\n", report.URL, report.Rendered)

	meta := table.NewWriter()
	meta.SetOutputMirror(os.Stdout)
	meta.AppendHeader(table.Row{"Meta key", "Value"})
	for _, m := range report.Meta {
		meta.AppendRow(table.Row{m.Key, truncate(m.Value, maxValueWidth)})
	}
	meta.SetStyle(table.StyleRounded)
	meta.Render()

	evidence := table.NewWriter()
	evidence.SetOutputMirror(os.Stdout)
	evidence.AppendHeader(table.Row{"Itemprop", "Structured key"})
	rows := max(len(report.Itemprops), len(report.StructuredKeys))
	for i := range rows {
		row := make(table.Row, 2)
		if i < len(report.Itemprops) {
			row[0] = report.Itemprops[i]
		}
		if i < len(report.StructuredKeys) {
			row[1] = report.StructuredKeys[i]
		}
		evidence.AppendRow(row)
	}
	evidence.SetStyle(table.StyleRounded)
	evidence.Render()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
