package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"memhook/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the memhook version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.DisplayVersion())
		},
	}
}
