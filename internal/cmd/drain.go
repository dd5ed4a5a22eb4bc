package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memhook/internal/config"
	"memhook/internal/deferred"
	"memhook/internal/memstore"
	"memhook/internal/pipeline"
	"memhook/internal/project"
)

func newDrainCmd() *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Drain pending deferred jobs for the current project",
		Long: `Attempts one delivery of each pending deferred job (rag-index,
docs-reindex) in the project's queue. The same drain runs opportunistically
on every prompt-submission hook; this command exists for manual retries,
e.g. after clearing a stale lock file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := workDir
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
				dir = wd
			}

			projectID, ok := project.Resolve(dir)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no project identity found; nothing to drain")
				return nil
			}
			root := project.Root(dir)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := newActivityLogger(cfg, root, projectID, "")
			defer log.Close()

			client := memstore.New(cfg.BaseURL, cfg.ConnectTimeout(), cfg.RequestTimeout(), cfg.DispatchTimeout())
			queue := deferred.NewQueue(root)
			p := pipeline.New(client, queue, cfg.SummaryThreshold, projectID, root, log)
			p.Drain()

			for _, kind := range []deferred.Kind{deferred.KindRAGIndex, deferred.KindDocsReindex} {
				if queue.Pending(kind) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: still pending\n", kind)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: clear\n", kind)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workDir, "dir", "", "Working directory (defaults to the process cwd)")

	return cmd
}
