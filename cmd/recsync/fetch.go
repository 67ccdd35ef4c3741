package main

import (
	"context"
	"fmt"

	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch recommendations and clues",
}

var fetchMax int

func init() {
	fetchCmd.PersistentFlags().IntVar(&fetchMax, "max", -1, "Maximum number of exercises")

	fetchCmd.AddCommand(
		&cobra.Command{
			Use:   "pes [task-uuid]",
			Short: "Fetch personalized exercises for a task",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				res, err := s.FetchAssignmentPEs(ctx, exercisesRequest(controlplane.ExercisesRequest{AssignmentUUID: args[0]}))
				return printExercises(res, err)
			}),
		},
		&cobra.Command{
			Use:   "spes [task-uuid]",
			Short: "Fetch spaced-practice exercises for a task",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				res, err := s.FetchAssignmentSPEs(ctx, exercisesRequest(controlplane.ExercisesRequest{AssignmentUUID: args[0]}))
				return printExercises(res, err)
			}),
		},
		&cobra.Command{
			Use:   "worst-areas [student-uuid]",
			Short: "Fetch practice exercises from a student's weakest pages",
			Args:  cobra.ExactArgs(1),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				res, err := s.FetchPracticeWorstAreasExercises(ctx, exercisesRequest(controlplane.ExercisesRequest{StudentUUID: args[0]}))
				return printExercises(res, err)
			}),
		},
		&cobra.Command{
			Use:   "student-clue [student-uuid] [book-container-uuid]",
			Short: "Fetch a student's mastery clue",
			Args:  cobra.ExactArgs(2),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				res, err := s.FetchStudentClues(ctx, []controlplane.ClueRequest{{StudentUUID: args[0], BookContainerUUID: args[1]}})
				return printClues(res, err)
			}),
		},
		&cobra.Command{
			Use:   "teacher-clue [period-uuid] [book-container-uuid]",
			Short: "Fetch a period's mastery clue",
			Args:  cobra.ExactArgs(2),
			RunE: withService(func(ctx context.Context, s *controlplane.Service, args []string) error {
				res, err := s.FetchTeacherClues(ctx, []controlplane.ClueRequest{{PeriodUUID: args[0], BookContainerUUID: args[1]}})
				return printClues(res, err)
			}),
		},
	)
}

func exercisesRequest(req controlplane.ExercisesRequest) controlplane.ExercisesRequest {
	if fetchMax >= 0 {
		n := fetchMax
		req.Max = &n
	}
	return req
}

func printExercises(res *controlplane.ExercisesResult, err error) error {
	if err != nil {
		return err
	}
	source := okStyle.Render("service")
	if !res.Accepted {
		source = warnStyle.Render("fallback")
	}
	fmt.Println(field("Source", source))
	fmt.Println(field("Attempts", fmt.Sprint(res.Attempts)))
	if len(res.Exercises) == 0 {
		fmt.Println(dimStyle.Render("No exercises"))
		return nil
	}
	fmt.Println(headerStyle.Render("Exercises"))
	for _, ex := range res.Exercises {
		fmt.Printf("  %s %s\n", ex.UUID, dimStyle.Render(fmt.Sprintf("#%d v%d", ex.Number, ex.Version)))
	}
	return nil
}

func printClues(res []controlplane.ClueResult, err error) error {
	if err != nil {
		return err
	}
	for _, r := range res {
		source := "service"
		if r.Local {
			source = "local"
		}
		fmt.Println(headerStyle.Render(r.Request.BookContainerUUID), dimStyle.Render(source+", "+r.Status))
		fmt.Println(field("Most likely", fmt.Sprintf("%.3f", r.Data.MostLikely)))
		fmt.Println(field("Interval", fmt.Sprintf("[%.3f, %.3f]", r.Data.Minimum, r.Data.Maximum)))
		if in := r.Data.Interpretation; in != nil {
			fmt.Println(field("Level", in.Level))
			fmt.Println(field("Confidence", in.Confidence))
		}
	}
	return nil
}
