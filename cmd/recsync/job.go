package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/recsync/internal/models"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect queued writes",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show job details and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	RunE:  runStatus,
}

var (
	jobStatus string
	jobLimit  int
)

func init() {
	jobCmd.AddCommand(jobListCmd, jobShowCmd)

	jobListCmd.Flags().StringVar(&jobStatus, "status", "", "Filter by status (submitted, pending, completed, failed)")
	jobListCmd.Flags().IntVar(&jobLimit, "limit", 50, "Maximum number of jobs")
}

func runJobList(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/jobs?limit=%d", jobLimit)
	if jobStatus != "" {
		path += "&status=" + jobStatus
	}
	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var jobs []*models.Job
	if err := json.Unmarshal(resp, &jobs); err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println(dimStyle.Render("No jobs found"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("OPERATION")+"\t"+
		headerStyle.Render("STATUS")+"\t"+headerStyle.Render("ATTEMPT")+"\t"+headerStyle.Render("CREATED"))
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			truncateID(j.ID), j.Operation, statusStyle(j.Status).Render(string(j.Status)),
			j.Attempt, j.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

type jobDetail struct {
	models.Job
	Response json.RawMessage   `json:"response"`
	History  []models.PDREntry `json:"history"`
}

func runJobShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/jobs/" + args[0])
	if err != nil {
		return err
	}
	var d jobDetail
	if err := json.Unmarshal(resp, &d); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Job " + d.ID))
	fmt.Println(field("Operation", d.Operation))
	fmt.Println(field("Status", statusStyle(d.Status).Render(string(d.Status))))
	fmt.Println(field("Attempt", fmt.Sprint(d.Attempt)))
	claims := make([]string, len(d.Claims))
	for i, c := range d.Claims {
		claims[i] = fmt.Sprintf("%s/%d#%d", c.Entity.Kind, c.Entity.ID, c.SequenceNumber)
	}
	fmt.Println(field("Claims", strings.Join(claims, " ")))
	if d.Error != "" {
		fmt.Println(field("Error", errStyle.Render(d.Error)))
	}
	fmt.Println(field("Created", d.CreatedAt.Local().Format(time.DateTime)))
	if d.FinishedAt != nil {
		fmt.Println(field("Finished", d.FinishedAt.Local().Format(time.DateTime)))
	}
	if len(d.Response) > 0 {
		fmt.Println(field("Response", string(d.Response)))
	}

	if len(d.History) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("History"))
		for _, e := range d.History {
			line := fmt.Sprintf("%s  %-14s %s", e.Timestamp.Local().Format(time.TimeOnly), e.Action, e.Outcome)
			if e.Details != "" {
				line += "  " + dimStyle.Render(e.Details)
			}
			fmt.Println(line)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := checkHealth()
	if health != nil {
		state := okStyle.Render("healthy")
		if !health.OK {
			state = errStyle.Render("unhealthy")
		}
		fmt.Println(field("Daemon", state))
		fmt.Println(field("Database", health.DB))
		fmt.Println(field("Client", health.Client))
		fmt.Println(field("Version", health.Version))
		if n, ok := health.Scheduler["active_workers"]; ok {
			fmt.Println(field("In flight", fmt.Sprint(n)))
		}
	}
	return err
}
