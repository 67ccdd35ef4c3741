package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recsync",
	Short: "recsync - recommendation service sync client",
	Long: `recsync keeps courses, rosters, assignments and responses in sync with the
recommendation service and fetches personalized exercises and mastery clues.`,
	SilenceUsage: true,
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7467", "Daemon status API address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(clueCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
