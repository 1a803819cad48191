package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/viant/docvec/vecsync"
)

// change is a log entry with its decoded document payload.
type change struct {
	vecsync.LogEntry
	Payload map[string]any `json:"payload,omitempty"`
}

var changesCmd = &cobra.Command{
	Use:   "changes <collection>",
	Short: "Print change-log entries of a collection recorded by SQLite triggers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt("limit")
		env, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if env.SQLite == nil {
			return errors.New("the change log requires sqlite storage")
		}
		if _, err := env.Store.Collection(args[0]); err != nil {
			return err
		}
		entries, err := env.SQLite.Changes(cmd.Context(), args[0], after, limit)
		if err != nil {
			return err
		}
		changes := make([]change, 0, len(entries))
		for n := range entries {
			row, err := entries[n].Row()
			if err != nil {
				return err
			}
			changes = append(changes, change{LogEntry: entries[n], Payload: row.Payload})
		}
		return printJSON(cmd, changes)
	},
}

func init() {
	changesCmd.Flags().Int64("after", 0, "only entries with a larger SCN")
	changesCmd.Flags().Int("limit", 100, "maximum number of entries")
	rootCmd.AddCommand(changesCmd)
}
