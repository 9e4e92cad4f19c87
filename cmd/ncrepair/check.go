package main

import (
	"fmt"

	"github.com/cuemby/noteforge/pkg/fsx"
	"github.com/cuemby/noteforge/pkg/logstore"
	"github.com/cuemby/noteforge/pkg/syncdir"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <sd-path>",
	Short: "Validate append-only log integrity for every note in an SD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := fsx.NewOS()
		dir := syncdir.New(fs, args[0])

		noteIDs, err := fs.ListDirs(dir.Path("notes"))
		if err != nil {
			return fmt.Errorf("listing notes: %w", err)
		}

		var truncated, corrupt int
		for _, noteID := range noteIDs {
			logs, _, _, _ := dir.NotePaths(noteID)
			files, err := logstore.ListLogFiles(fs, logs)
			if err != nil {
				return fmt.Errorf("listing logs for %s: %w", noteID, err)
			}
			for _, f := range files {
				result := logstore.ValidateLogIntegrity(fs, f.Path)
				switch {
				case !result.Valid:
					corrupt++
					fmt.Printf("CORRUPT   %s/%s: %v\n", noteID, f.Filename, result.Err)
				case result.Err != nil:
					truncated++
					fmt.Printf("TRUNCATED %s/%s: %d valid records, then %v\n", noteID, f.Filename, result.RecordCount, result.Err)
				default:
					fmt.Printf("OK        %s/%s: %d records\n", noteID, f.Filename, result.RecordCount)
				}
			}
		}

		fmt.Printf("\n%d notes checked, %d truncated, %d corrupt\n", len(noteIDs), truncated, corrupt)

		lock, err := dir.ProbeLock()
		if err != nil {
			return fmt.Errorf("probing profile.lock: %w", err)
		}
		switch {
		case !lock.Exists:
			fmt.Println("profile.lock: absent")
		case lock.Stale:
			fmt.Printf("profile.lock: STALE (pid %d no longer alive)\n", lock.PID)
		default:
			fmt.Printf("profile.lock: held by live pid %d\n", lock.PID)
		}
		return nil
	},
}
