package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"memhook/internal/activitylog"
	"memhook/internal/config"
	"memhook/internal/deferred"
	"memhook/internal/hookevent"
	"memhook/internal/memstore"
	"memhook/internal/pipeline"
	"memhook/internal/project"
)

func newHandleHookCmd() *cobra.Command {
	var eventHint string
	var workDir string

	cmd := &cobra.Command{
		Use:   "handle-hook",
		Short: "Handle an agent lifecycle hook event",
		Long: `Reads a hook JSON payload from stdin, captures the turn in the project's
conversation memory, and runs the summarization and deferred-indexing
pipeline for it.

Designed to be registered as the hook command for all lifecycle events in
the agent runtime's settings. Always exits 0 with JSON on stdout: memory
capture must never fail the calling hook.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err == nil {
				runHook(data, eventHint, workDir)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "{}")
			return nil
		},
	}

	cmd.Flags().StringVar(&eventHint, "event", "", "Lifecycle event name (fallback when the payload omits hook_event_name)")
	cmd.Flags().StringVar(&workDir, "dir", "", "Working directory (defaults to the payload's cwd, then the process cwd)")

	return cmd
}

// runHook executes the pipeline for one hook payload. Best-effort all the
// way down: every failure degrades to a logged skip, never an error to
// the calling hook.
func runHook(payload []byte, eventHint, workDir string) {
	name := hookevent.Name(payload, eventHint)
	if name == "" {
		return
	}

	dir := resolveWorkDir(payload, workDir)
	projectID, ok := project.Resolve(dir)
	root := project.Root(dir)

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	log := newActivityLogger(cfg, root, projectID, hookevent.SessionID(payload))
	defer log.Close()

	log.HookReceived(name)
	if !ok {
		// No project identity: the pipeline is inert for this invocation.
		log.Skipped("resolve", "no project identity")
		return
	}

	client := memstore.New(cfg.BaseURL, cfg.ConnectTimeout(), cfg.RequestTimeout(), cfg.DispatchTimeout())
	p := pipeline.New(client, deferred.NewQueue(root), cfg.SummaryThreshold, projectID, root, log)
	p.HandleEvent(name, payload)
}

// resolveWorkDir picks the directory the invocation operates on: explicit
// flag, then the payload's cwd, then the process cwd.
func resolveWorkDir(payload []byte, workDir string) string {
	if workDir != "" {
		return workDir
	}
	if cwd := hookevent.CWD(payload); cwd != "" {
		return cwd
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func newActivityLogger(cfg *config.Config, root, projectID, sessionID string) *activitylog.Logger {
	enabled := cfg.ActivityLog != nil && cfg.ActivityLog.Enabled
	path := filepath.Join(root, filepath.FromSlash(deferred.LogsDir), "activity.log")
	return activitylog.New(enabled, path, projectID, sessionID)
}
