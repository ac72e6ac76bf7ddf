package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/service"
)

var (
	jobsLimit    int
	jobsOutput   string
	jobsInterval time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List or inspect ingestion jobs",
	Long: `List ingestion jobs or inspect a specific job by ID.

Examples:
  pricecat jobs list              # Most recent jobs first
  pricecat jobs show abc12345     # Show details for job abc12345
  pricecat jobs show abc12345 -o yaml
  pricecat jobs watch abc12345    # Follow a job until it finishes`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		jobs, err := b.ListJobs(ctx, jobsLimit)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		printJobList(os.Stdout, jobs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		job, err := b.GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		return writeJob(os.Stdout, *job, jobsOutput)
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it completes or fails",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		b, err := getBackend(ctx)
		if err != nil {
			return err
		}
		job, err := b.GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}

		if term.IsTerminal(int(os.Stdout.Fd())) {
			return RunJobProgress(b, job, jobsInterval)
		}

		// Not a TTY: one line per change.
		var lastLogs int
		final, err := service.WaitForJob(ctx, b.GetJob, job.ID, jobsInterval, func(j models.IngestionJob) {
			for _, line := range j.Logs[min(lastLogs, len(j.Logs)):] {
				fmt.Printf("[%s %3d%%] %s\n", j.Status, j.Progress, line)
			}
			lastLogs = len(j.Logs)
		})
		if err != nil {
			return err
		}
		if final.Status == models.JobStatusFailed {
			return fmt.Errorf("job %s failed: %s", final.ID, deref(final.Error))
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs")
	jobsShowCmd.Flags().StringVarP(&jobsOutput, "output", "o", "text", "output format: text, json or yaml")
	jobsWatchCmd.Flags().DurationVar(&jobsInterval, "interval", pollInterval, "poll interval")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsWatchCmd)
}

func printJobList(w io.Writer, jobs []models.IngestionJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-10s %-11s %-9s %-7s %-20s %s\n", "ID", "STATUS", "PROGRESS", "ITEMS", "CREATED", "FILE")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, job := range jobs {
		fmt.Fprintf(w, "%-10s %-11s %-9s %-7d %-20s %s\n",
			job.ID, job.Status, fmt.Sprintf("%d%%", job.Progress), job.TotalItems,
			job.CreatedAt.Format("2006-01-02 15:04:05"), job.FileName)
	}
}

// writeJob renders one job in the requested format.
func writeJob(w io.Writer, job models.IngestionJob, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(job); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	case "text", "":
		printJob(w, job)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printJob(w io.Writer, job models.IngestionJob) {
	fmt.Fprintf(w, "Job: %s\n", job.ID)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	fmt.Fprintf(w, "  Progress: %d%%\n", job.Progress)
	fmt.Fprintf(w, "  File: %s\n", job.FileName)
	if job.FileSourceRef != "" {
		fmt.Fprintf(w, "  Source: %s\n", job.FileSourceRef)
	}
	fmt.Fprintf(w, "  Items: %d\n", job.TotalItems)
	fmt.Fprintf(w, "  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Status.IsTerminal() {
		fmt.Fprintf(w, "  Duration: %s\n", job.UpdatedAt.Sub(job.CreatedAt).Round(time.Second))
	}
	if job.Error != nil && *job.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", *job.Error)
	}

	if m := job.CurrentMeta; m != nil {
		fmt.Fprintln(w, "\nPosition:")
		if m.TotalPages > 0 {
			fmt.Fprintf(w, "  Page: %d/%d\n", m.PageNumber, m.TotalPages)
		}
		if m.CurrentChapter != "" {
			fmt.Fprintf(w, "  Chapter: %s\n", m.CurrentChapter)
		}
		if m.LastItem != nil {
			fmt.Fprintf(w, "  Last item: %s %s\n", m.LastItem.Code, m.LastItem.Description)
		}
	}

	if len(job.Logs) > 0 {
		fmt.Fprintf(w, "\nLogs (%d):\n", len(job.Logs))
		for _, line := range job.Logs {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
