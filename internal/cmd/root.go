package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memhook",
		Short: "Conversation-memory hooks for agent sessions",
		Long: "memhook captures agent conversation turns into a remote memory backend,\n" +
			"triggers summarization when enough unsummarized volume accumulates, and\n" +
			"defers indexing work that could not complete synchronously.",
	}

	rootCmd.AddCommand(
		newHandleHookCmd(),
		newDrainCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
