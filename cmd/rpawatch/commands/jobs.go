package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/jobs"
	"github.com/teranos/rpawatch/logger"
	"github.com/teranos/rpawatch/records"
)

// JobsCmd represents the jobs command
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs",
	Long: `Inspect the per-execution jobs the pipeline works through.

Examples:
  rpawatch jobs ls                          # Most recent jobs
  rpawatch jobs ls --status WaitingForReply # Jobs awaiting approval
  rpawatch jobs show <job-id>               # One job with its audit trail`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE:  runJobsLs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job, its execution and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var (
	jobsStatusFlag string
	jobsLimitFlag  int
)

func init() {
	JobsCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (NotStarted, Started, WaitingForReply, EmailReceived, Completed)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 50, "Maximum jobs to list")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	var status *jobs.Status
	if jobsStatusFlag != "" {
		if !jobs.IsValidStatus(jobsStatusFlag) {
			return errors.Newf("unknown status %q", jobsStatusFlag)
		}
		st := jobs.Status(jobsStatusFlag)
		status = &st
	}

	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	list, err := jobs.NewStore(database, logger.Logger).List(status, jobsLimitFlag)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}

	data := pterm.TableData{{"ID", "Execution", "Status", "RCA", "Mail", "Updated"}}
	for _, j := range list {
		data = append(data, []string{
			j.ID,
			j.ExecutionID,
			string(j.Status),
			j.RCAID,
			fmt.Sprint(j.MailSent),
			j.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	job, err := jobs.NewStore(database, logger.Logger).Get(args[0])
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printf("Job %s\n", job.ID)
	rows := pterm.TableData{
		{"Status", string(job.Status)},
		{"Execution", job.ExecutionID},
		{"Type", job.JobType},
		{"RCA", job.RCAID},
		{"Token", job.Token},
		{"Mail sent", fmt.Sprint(job.MailSent)},
		{"Created", job.CreatedAt.Local().Format(time.DateTime)},
		{"Updated", job.UpdatedAt.Local().Format(time.DateTime)},
	}
	if job.RCAConfidence != nil {
		rows = append(rows, []string{"Confidence", fmt.Sprintf("%.2f", *job.RCAConfidence)})
	}
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		return err
	}

	exec, err := records.NewExecutionStore(database, logger.Logger).Get(job.ExecutionID)
	switch {
	case err == nil:
		pterm.Printf("\nProcess %s on robot %s (%s)\n", exec.Process, exec.Robot, exec.State)
	case errors.IsNotFound(err):
		pterm.Warning.Println("Execution not stored")
	default:
		return err
	}

	if job.MailReceivedText != "" {
		pterm.DefaultSection.Println("Reply")
		pterm.Println(job.MailReceivedText)
	}

	entries, err := jobs.NewAuditStore(database).List(job.ID, 100)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		pterm.DefaultSection.Println("Audit trail")
		data := pterm.TableData{{"Time", "Actor", "Message"}}
		for _, e := range entries {
			data = append(data, []string{e.Timestamp.Local().Format(time.DateTime), e.Actor, e.Message})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	return nil
}
