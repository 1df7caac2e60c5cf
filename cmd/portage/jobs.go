package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/portage/internal/model"
)

var jobsAPIBase string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs on a running portage server",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished jobs",
	RunE:  runJobsHistory,
}

func init() {
	jobsCmd.PersistentFlags().StringVar(&jobsAPIBase, "api", "http://localhost:8080", "Base URL of the portage API")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsHistoryCmd)
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func runJobsList(cmd *cobra.Command, args []string) error {
	resp, err := apiClient().Get(jobsAPIBase + "/api/jobs")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var jobs []model.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, j := range jobs {
		fmt.Printf("%s  %-9s %-10s created %s\n",
			j.ID, j.Type, j.Status, j.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	resp, err := apiClient().Post(jobsAPIBase+"/api/jobs/"+args[0]+"/cancel", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cancel failed: %s", resp.Status)
	}
	fmt.Println("cancelled " + args[0])
	return nil
}

func runJobsHistory(cmd *cobra.Command, args []string) error {
	resp, err := apiClient().Get(jobsAPIBase + "/api/history")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var sums []model.JobSummary
	if err := json.NewDecoder(resp.Body).Decode(&sums); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(sums) == 0 {
		fmt.Println("no history")
		return nil
	}
	for _, s := range sums {
		line := fmt.Sprintf("%s  %-9s %-10s %s (%s)",
			s.JobID, s.Type, s.Status, s.CompletedAt.Format(time.RFC3339), s.Duration.Round(time.Second))
		if s.ErrorMessage != "" {
			line += "  " + s.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}
