package main

import (
	"fmt"

	"github.com/cuemby/noteforge/pkg/config"
	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/notestore"
	"github.com/cuemby/noteforge/pkg/syncdir"
	"github.com/spf13/cobra"
)

var gcKeepSnapshots int

var gcCmd = &cobra.Command{
	Use:   "gc <sd-path>",
	Short: "Run crash recovery over every note in an SD",
	Long: `gc deletes incomplete snapshots, prunes complete snapshots
down to --keep-snapshots per note, and deletes each note's log files
that are older than the watermark file recorded in the newest remaining
complete snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := fsx.NewOS()
		dir := syncdir.New(fs, args[0])

		noteIDs, err := fs.ListDirs(dir.Path("notes"))
		if err != nil {
			return fmt.Errorf("listing notes: %w", err)
		}

		for _, noteID := range noteIDs {
			logs, snapshots, _, _ := dir.NotePaths(noteID)
			paths := notestore.Paths{Logs: logs, Snapshots: snapshots}
			if err := notestore.RecoverNoteDirectory(fs, paths, notestore.RecoveryOptions{KeepSnapshots: gcKeepSnapshots}); err != nil {
				return fmt.Errorf("recovering %s: %w", noteID, err)
			}
			fmt.Printf("recovered %s\n", noteID)
		}
		return nil
	},
}

func init() {
	gcCmd.Flags().IntVar(&gcKeepSnapshots, "keep-snapshots", config.Default().SnapshotKeepCount, "Number of most-recent complete snapshots to keep per note (0 keeps all)")
}
