package main

import (
	"fmt"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/logstore"
	"github.com/cuemby/noteforge/pkg/snapshot"
	"github.com/cuemby/noteforge/pkg/syncdir"
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <sd-path> <note-id>",
	Short: "Dump one note's snapshot vector clock and log file integrity",
	Long: `recover reports what crash recovery would see for a single
note: the vector clock carried by its newest complete snapshot, and
every log file with its instance, valid-record count and validity. It never decodes
the CRDT document itself — that stays behind the opaque CRDT library
boundary, out of scope for this tool.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := fsx.NewOS()
		dir := syncdir.New(fs, args[0])
		noteID := args[1]
		logs, snapshots, _, _ := dir.NotePaths(noteID)

		reader := snapshot.NewReader(fs, snapshots)
		snap, file, found, err := reader.FindBest()
		if err != nil {
			return fmt.Errorf("reading snapshots: %w", err)
		}
		if !found {
			fmt.Println("no complete snapshot found")
		} else {
			fmt.Printf("best snapshot: %s (instance %s)\n", file.Filename, file.InstanceID)
			for _, entry := range snap.VectorClock {
				fmt.Printf("  %s: sequence=%d offset=%d file=%s\n", entry.InstanceID, entry.Sequence, entry.Offset, entry.Filename)
			}
		}

		files, err := logstore.ListLogFiles(fs, logs)
		if err != nil {
			return fmt.Errorf("listing logs: %w", err)
		}
		fmt.Printf("\n%d log file(s):\n", len(files))
		for _, f := range files {
			result := logstore.ValidateLogIntegrity(fs, f.Path)
			fmt.Printf("  %s (instance %s): %d valid records, valid=%v\n", f.Filename, f.InstanceID, result.RecordCount, result.Valid)
		}
		return nil
	},
}
