package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-scanner/internal/report"
	consts "github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

// Report output formats.
const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatHTML     = "html"
	formatPDF      = "pdf"
	formatPrompt   = "prompt"
)

// checklistArtifact is where a PDF checklist is stored when no --output is given.
const checklistArtifact = "checklist.pdf"

var reportCmd = &cobra.Command{
	Use:   "report <jobId>",
	Short: "Render the report of a finished job",
	Long: `Render a job's report.

Formats:
  json      the stored unified report
  markdown  GitHub-flavoured summary with remediation checklist
  html      standalone page
  pdf       printable remediation checklist
  prompt    remediation prompt listing every finding (--grouped for sections)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		grouped, _ := cmd.Flags().GetBool("grouped")
		output, _ := cmd.Flags().GetString("output")
		jobID := args[0]

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var data []byte
		switch format {
		case formatJSON:
			unified, err := services.Scans.Report(ctx, jobID)
			if err != nil {
				return err
			}
			if data, err = json.MarshalIndent(unified, "", "  "); err != nil {
				return err
			}
			data = append(data, '\n')
		case formatPrompt:
			unified, err := services.Scans.Report(ctx, jobID)
			if err != nil {
				return err
			}
			prompt := report.Prompt(unified, grouped)
			if prompt == nil {
				fmt.Fprintln(cmd.OutOrStdout(), colorSuccess("No findings, nothing to remediate."))
				return nil
			}
			data = []byte(prompt.PromptText + "\n")
		case formatMarkdown, formatHTML, formatPDF:
			processed, err := services.Scans.ProcessedReport(ctx, jobID)
			if err != nil {
				return err
			}
			if data, err = renderProcessed(format, processed); err != nil {
				return err
			}
			if format == formatPDF && output == "" {
				if err := services.Reports.WriteArtifact(ctx, jobID, checklistArtifact, data); err != nil {
					return err
				}
				path := filepath.Join(services.Reports.Dir(), jobID, checklistArtifact)
				fmt.Fprintf(cmd.OutOrStdout(), "%s Checklist written to %s\n", colorSuccess("✓"), path)
				return nil
			}
		default:
			return fmt.Errorf("unknown format %q (want json, markdown, html, pdf or prompt)", format)
		}

		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(output, data, consts.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Report written to %s\n", colorSuccess("✓"), output)
		return nil
	},
}

func renderProcessed(format string, processed *report.ProcessedReport) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case formatMarkdown:
		if err := report.WriteMarkdown(&buf, processed); err != nil {
			return nil, err
		}
	case formatHTML:
		if err := report.WriteHTML(&buf, processed); err != nil {
			return nil, err
		}
	case formatPDF:
		return report.RenderChecklistPDF(processed)
	}
	return buf.Bytes(), nil
}

func init() {
	reportCmd.Flags().StringP("format", "f", formatMarkdown, "Output format: json, markdown, html, pdf or prompt")
	reportCmd.Flags().Bool("grouped", false, "Group prompt findings by section")
	reportCmd.Flags().String("output", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
