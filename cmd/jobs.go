package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	scanapp "github.com/khanhnv2901/seca-scanner/internal/application/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scan jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		filter := job.ListFilter{Limit: limit, Offset: offset}
		if statusFilter != "" {
			for _, part := range strings.Split(statusFilter, ",") {
				status, err := job.ParseStatus(strings.ToUpper(strings.TrimSpace(part)))
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
		}

		services, err := appCtx.Services()
		if err != nil {
			return err
		}
		jobs, err := services.Scans.ListJobs(cmd.Context(), filter)
		if err != nil {
			return err
		}
		printJobsTable(cmd.OutOrStdout(), jobs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <jobId>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.Services()
		if err != nil {
			return err
		}
		j, err := services.Scans.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJob(cmd.OutOrStdout(), j)
	},
}

func printJobsTable(out io.Writer, jobs []*job.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, colorWarn("No jobs found."))
		return
	}

	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tTYPE\tREQUESTED BY\tCREATED\tERROR")
	for _, j := range jobs {
		errCode := j.ErrorCode()
		if errCode == "" {
			errCode = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID(),
			formatStatusWithColor(string(j.Status())),
			j.ScanType(),
			j.RequestedBy(),
			formatShortTimestamp(j.CreatedAt()),
			errCode,
		)
	}
	_ = tw.Flush()
}

func printJob(out io.Writer, j *job.Job) error {
	fmt.Fprintf(out, "%s %s\n", colorBold("Job"), j.ID())
	fmt.Fprintf(out, "  Status:       %s\n", formatStatusWithColor(string(j.Status())))
	fmt.Fprintf(out, "  Target:       %s\n", j.TargetID())
	fmt.Fprintf(out, "  Scan type:    %s\n", j.ScanType())
	fmt.Fprintf(out, "  Requested by: %s\n", j.RequestedBy())
	fmt.Fprintf(out, "  Created:      %s\n", formatShortTimestamp(j.CreatedAt()))
	if !j.StartedAt().IsZero() {
		fmt.Fprintf(out, "  Started:      %s\n", formatShortTimestamp(j.StartedAt()))
	}
	if !j.FinishedAt().IsZero() {
		fmt.Fprintf(out, "  Finished:     %s\n", formatShortTimestamp(j.FinishedAt()))
	}
	if j.IPsRecorded() {
		ips := strings.Join(j.ResolvedIPs(), ", ")
		if ips == "" {
			ips = "(none)"
		}
		fmt.Fprintf(out, "  Resolved IPs: %s\n", ips)
	}
	if j.ErrorCode() != "" {
		fmt.Fprintf(out, "  Error:        %s\n", colorError(j.ErrorCode()))
		fmt.Fprintf(out, "  Message:      %s\n", j.ErrorMessage())
	}

	if raw := j.Summary(); len(raw) > 0 {
		var summary scanapp.Summary
		if err := json.Unmarshal(raw, &summary); err != nil {
			return fmt.Errorf("failed to decode job summary: %w", err)
		}
		fmt.Fprintf(out, "  Pages:        %d\n", summary.PagesScanned)
		fmt.Fprintf(out, "  Issues:       %d\n", summary.IssuesFound)
		fmt.Fprintf(out, "  Headers:      %s good, %s weak, %s missing\n",
			colorSuccess(summary.Good), colorWarn(summary.Weak), colorError(summary.Missing))
		if summary.TLSProtocol != "" {
			fmt.Fprintf(out, "  TLS:          %s\n", summary.TLSProtocol)
		}
		for _, finding := range summary.CriticalFindings {
			fmt.Fprintf(out, "  %s %s\n", colorError("!"), finding)
		}
	}
	return nil
}

func formatShortTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func init() {
	jobsListCmd.Flags().String("status", "", "Comma-separated statuses to include (QUEUED,RUNNING,SUCCEEDED,FAILED)")
	jobsListCmd.Flags().Int("limit", 25, "Maximum jobs to list")
	jobsListCmd.Flags().Int("offset", 0, "Jobs to skip")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
