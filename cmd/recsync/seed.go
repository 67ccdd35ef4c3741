package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fentz26/recsync/internal/clue"
	"github.com/fentz26/recsync/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [fixture.yaml]",
	Short: "Load ecosystems, courses, rosters and tasks into the local database",
	Long: `Loads a YAML fixture into the local database. Without a file the built-in
sample data is loaded. Nothing is sent; use the sync commands afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

var clueCmd = &cobra.Command{
	Use:   "clue [responses]",
	Short: "Estimate mastery locally from correctness outcomes",
	Long:  `Estimates mastery from a comma separated list of outcomes, e.g. "1,0,1,1".`,
	Args:  cobra.ExactArgs(1),
	RunE:  runClue,
}

func runSeed(cmd *cobra.Command, args []string) error {
	data := seed.Sample
	if len(args) == 1 {
		var err error
		if data, err = os.ReadFile(args[0]); err != nil {
			return err
		}
	}
	f, err := seed.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := seed.Load(cmd.Context(), a.store, f)
	if err != nil {
		return err
	}
	fmt.Println(okStyle.Render("Seeded"), fmt.Sprintf("%d ecosystems, %d courses, %d students, %d tasks, %d settings",
		res.Ecosystems, res.Courses, res.Students, res.Tasks, res.Settings))
	return nil
}

func runClue(cmd *cobra.Command, args []string) error {
	var responses []bool
	for _, f := range strings.FieldsFunc(args[0], func(r rune) bool { return r == ',' || r == ' ' }) {
		b, err := strconv.ParseBool(f)
		if err != nil {
			return fmt.Errorf("bad outcome %q", f)
		}
		responses = append(responses, b)
	}

	c := clue.NewWilson().Estimate(responses)
	fmt.Println(field("Most likely", fmt.Sprintf("%.3f", c.Value)))
	fmt.Println(field("Interval", fmt.Sprintf("[%.3f, %.3f]", c.Left, c.Right)))
	fmt.Println(field("Level", c.Level))
	fmt.Println(field("Confidence", c.Confidence))
	fmt.Println(field("Sample", fmt.Sprintf("%s (%d)", c.SampleSize, c.N)))
	return nil
}
