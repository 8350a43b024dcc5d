package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/bootfit/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the job server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/{id}/status
type jobStatus struct {
	server.Job
	Elapsed float64 `json:"elapsed"`
	Rate    float64 `json:"rate"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func getJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(cmd *cobra.Command, url string) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s (%s)\n", job.State, job.Phase)
		fmt.Fprintf(out, "  Config: %s\n", job.Config.ConfigPath)
		if job.Model != "" {
			fmt.Fprintf(out, "  Model: %s, %s via %s\n", job.Model, job.Statistic, job.Backend)
		}
		if job.Total > 0 {
			fmt.Fprintf(out, "  Bootstrap: %d/%d (%d failed)\n", job.Completed, job.Total, job.Failed)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func getJobStatus(cmd *cobra.Command, url, jobID string) error {
	var status jobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintf(out, "Phase: %s\n", status.Phase)
	fmt.Fprintln(out)

	cfg := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Config: %s\n", cfg.ConfigPath)
	if cfg.Statistic != "" {
		fmt.Fprintf(out, "  Statistic: %s\n", cfg.Statistic)
	}
	if cfg.Iterations > 0 {
		fmt.Fprintf(out, "  Iterations: %d\n", cfg.Iterations)
	}
	if cfg.Workers > 0 {
		fmt.Fprintf(out, "  Workers: %d\n", cfg.Workers)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	if status.Backend != "" {
		fmt.Fprintf(out, "  Fit: %s %s = %.6g\n", status.Backend, status.Statistic, float64(status.FitStat))
	}
	if status.Total > 0 {
		fmt.Fprintf(out, "  Bootstrap: %d/%d refits, %d failed\n", status.Completed, status.Total, status.Failed)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.Rate > 0 {
		fmt.Fprintf(out, "  Throughput: %.1f refits/sec\n", status.Rate)
	}
	if status.RunID != "" {
		fmt.Fprintf(out, "  Saved run: %s\n", status.RunID)
	}

	if len(status.Summaries) > 0 {
		newReporter(out).Summaries(status.Summaries, status.Total)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
