package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Queue writes to the recommendation service",
	Long: `Queues writes in the local outbox. Each write claims its sequence numbers
immediately; the daemon sends it.`,
}

var (
	syncWait     bool
	syncTimeout  time.Duration
	syncStarts   string
	syncEnds     string
	syncCorrect  bool
	syncGoalPEs  int
	syncGoalSPEs int
)

func init() {
	syncCmd.PersistentFlags().BoolVar(&syncWait, "wait", false, "Wait until the daemon has sent the write")
	syncCmd.PersistentFlags().DurationVar(&syncTimeout, "timeout", time.Minute, "How long --wait waits")

	syncCmd.AddCommand(
		&cobra.Command{
			Use:   "ecosystem [ecosystem-uuid]",
			Short: "Send an ecosystem",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				job, err := s.CreateEcosystem(ctx, args[0])
				return reportJob(ctx, job, err)
			}),
		},
		&cobra.Command{
			Use:   "course [course-uuid]",
			Short: "Send a new course",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				job, err := s.CreateCourse(ctx, args[0])
				return reportJob(ctx, job, err)
			}),
		},
		&cobra.Command{
			Use:   "migrate [course-uuid] [ecosystem-uuid]",
			Short: "Move a course to another ecosystem",
			Args:  cobra.ExactArgs(2),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				prepare, update, err := s.SequentiallyPrepareAndUpdateCourseEcosystem(ctx, args[0], args[1])
				if prepare != nil {
					if perr := reportJob(ctx, prepare, nil); perr != nil {
						return perr
					}
				}
				return reportJob(ctx, update, err)
			}),
		},
		&cobra.Command{
			Use:   "rosters [course-uuid...]",
			Short: "Send course rosters",
			Args:  cobra.MinimumNArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				report, err := s.UpdateRosters(ctx, args)
				return reportBatch(ctx, report, err)
			}),
		},
		&cobra.Command{
			Use:   "global-exclusions [excluded-ids]",
			Short: `Exclude exercises from every course, e.g. "12, 34@2"`,
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				report, err := s.UpdateGloballyExcludedExercises(ctx, args[0])
				return reportBatch(ctx, report, err)
			}),
		},
		&cobra.Command{
			Use:   "course-exclusions [course-uuid] [number...]",
			Short: "Set a course's excluded exercise numbers",
			Args:  cobra.MinimumNArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				numbers := make([]int64, 0, len(args)-1)
				for _, a := range args[1:] {
					n, err := strconv.ParseInt(a, 10, 64)
					if err != nil {
						return fmt.Errorf("bad exercise number %q", a)
					}
					numbers = append(numbers, n)
				}
				job, err := s.UpdateCourseExcludedExercises(ctx, args[0], numbers)
				return reportJob(ctx, job, err)
			}),
		},
		datesCmd,
		assignmentsCmd,
		answerCmd,
	)

	datesCmd.Flags().StringVar(&syncStarts, "starts", "", "Start time (RFC 3339)")
	datesCmd.Flags().StringVar(&syncEnds, "ends", "", "End time (RFC 3339)")
	datesCmd.MarkFlagRequired("starts")
	datesCmd.MarkFlagRequired("ends")

	assignmentsCmd.Flags().IntVar(&syncGoalPEs, "goal-pes", -1, "Override the number of personalized exercises")
	assignmentsCmd.Flags().IntVar(&syncGoalSPEs, "goal-spes", -1, "Override the number of spaced-practice exercises")

	answerCmd.Flags().BoolVar(&syncCorrect, "correct", false, "Whether the answer was correct")
}

var datesCmd = &cobra.Command{
	Use:   "dates [course-uuid]",
	Short: "Send a course's active dates",
	Args:  cobra.ExactArgs(1),
	RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
		starts, err := time.Parse(time.RFC3339, syncStarts)
		if err != nil {
			return fmt.Errorf("--starts: %w", err)
		}
		ends, err := time.Parse(time.RFC3339, syncEnds)
		if err != nil {
			return fmt.Errorf("--ends: %w", err)
		}
		job, err := s.UpdateCourseActiveDates(ctx, args[0], starts, ends)
		return reportJob(ctx, job, err)
	}),
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments [task-uuid...]",
	Short: "Send tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
		updates := make([]controlplane.AssignmentUpdate, len(args))
		for i, u := range args {
			updates[i] = controlplane.AssignmentUpdate{TaskUUID: u}
			if syncGoalPEs >= 0 {
				n := syncGoalPEs
				updates[i].GoalPEs = &n
			}
			if syncGoalSPEs >= 0 {
				n := syncGoalSPEs
				updates[i].GoalSPEs = &n
			}
		}
		report, err := s.CreateUpdateAssignments(ctx, updates)
		return reportBatch(ctx, report, err)
	}),
}

var answerCmd = &cobra.Command{
	Use:   "answer [task-uuid] [trial-uuid]",
	Short: "Record and send an answer",
	Args:  cobra.ExactArgs(2),
	RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
		job, err := s.RecordAnswer(ctx, controlplane.Answer{TaskUUID: args[0], TrialUUID: args[1]}, syncCorrect)
		return reportJob(ctx, job, err)
	}),
}

// withService opens the database and service for one command.
func withService(fn func(ctx context.Context, s *controlplane.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a.service, args)
	}
}

func reportJob(ctx context.Context, job *controlplane.Job, err error) error {
	if err != nil {
		return err
	}
	claims := make([]string, len(job.Claims))
	for i, c := range job.Claims {
		claims[i] = fmt.Sprintf("%s/%d#%d", c.Entity.Kind, c.Entity.ID, c.SequenceNumber)
	}
	fmt.Printf("%s %s %s %s\n", okStyle.Render("Queued"), job.Operation, truncateID(job.ID), dimStyle.Render(strings.Join(claims, " ")))
	if !syncWait {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	rec, err := job.Wait(wctx, 0)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", job.ID, err)
	}
	fmt.Println(field("Status", statusStyle(rec.Status).Render(string(rec.Status))))
	if rec.Error != "" {
		return fmt.Errorf("job %s: %s", job.ID, rec.Error)
	}
	return nil
}

func reportBatch(ctx context.Context, report *controlplane.BatchReport, err error) error {
	if report != nil {
		for _, f := range report.Failures {
			fmt.Printf("%s %s: %v\n", errStyle.Render("Skipped"), f.Key, f.Err)
		}
		for _, job := range report.Jobs {
			if jerr := reportJob(ctx, job, nil); jerr != nil {
				return jerr
			}
		}
	}
	return err
}
