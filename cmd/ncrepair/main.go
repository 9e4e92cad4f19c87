package main

import (
	"fmt"
	"os"

	"github.com/cuemby/noteforge/pkg/elog"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ncrepair",
	Short: "Administrative tool for a noteforge Storage Directory",
	Long: `ncrepair operates directly on a Storage Directory (SD) on
disk: it validates append-only log integrity, runs crash recovery
(prune incomplete snapshots and log files a snapshot already covers), and dumps a note's
recovered vector clock for debugging sync issues.

It never touches the cloud file-sync client; it only ever reads and
writes files under the SD root it is pointed at.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ncrepair version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(recoverCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	elog.Init(elog.Config{
		Level:      elog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
