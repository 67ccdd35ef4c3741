package main

import (
	"fmt"

	"github.com/fentz26/recsync/internal/tui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the interactive outbox dashboard",
	Long:  `Shows queued, in-flight, completed and failed writes from a running daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := checkHealth(); err != nil {
			fmt.Println(warnStyle.Render("Daemon not reachable at " + apiAddr + "; the dashboard will keep retrying."))
		}
		return tui.New(apiAddr).Run()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
