// Package summarize decides when accumulated conversation volume justifies
// a summarization job and drives it through an explicit state machine:
//
//	Idle -> Resetting -> Dispatching -> Done | Fallback
//
// The watermark is advanced in Resetting, before the expensive dispatch,
// so a hung or failed job leaves the counter at zero instead of
// re-triggering on every subsequent event.
package summarize

import (
	"memhook/internal/activitylog"
	"memhook/internal/memstore"
	"memhook/internal/transcript"
)

// Store is the slice of the backend client the orchestrator needs.
type Store interface {
	ShouldSummarize(projectID string, threshold int) (needed bool, since int, err error)
	LatestMessageID(projectID string) (string, error)
	RecordSummary(projectID, trigger, insights, watermarkID string) error
	DispatchSummarize(projectDir string) error
}

// Summarizer extracts a local best-effort summary from a transcript file.
type Summarizer func(transcriptPath string) string

// Outcome is the terminal state of one orchestration run.
type Outcome string

const (
	// OutcomeSkipped: below threshold, or the threshold check failed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDone: the remote summarizer acknowledged within the wait.
	OutcomeDone Outcome = "done"
	// OutcomeBackground: the dispatch timed out; the job is presumed to
	// be running detached. Not a failure, no fallback.
	OutcomeBackground Outcome = "background"
	// OutcomeFallback: the dispatch failed and a locally extracted
	// summary was recorded instead.
	OutcomeFallback Outcome = "fallback"
)

// Record-summary trigger labels understood by the backend.
const (
	triggerReset      = "hook_reset"
	triggerSessionEnd = "session_end"

	placeholderInsight = "placeholder"
)

type state int

const (
	stateIdle state = iota
	stateResetting
	stateDispatching
)

// Orchestrator runs the trigger check and the summarization state machine.
type Orchestrator struct {
	store     Store
	threshold int
	local     Summarizer
	log       *activitylog.Logger
}

// New creates an Orchestrator. A nil local summarizer defaults to
// transcript.Summarize; a nil logger to a no-op.
func New(store Store, threshold int, local Summarizer, log *activitylog.Logger) *Orchestrator {
	if local == nil {
		local = transcript.Summarize
	}
	if log == nil {
		log = activitylog.Nop()
	}
	return &Orchestrator{store: store, threshold: threshold, local: local, log: log}
}

// Run performs one turn-stop orchestration for the project. It never
// returns an error: every failure degrades to the next tier and ends in a
// terminal Outcome.
func (o *Orchestrator) Run(projectID, projectDir, transcriptPath string) Outcome {
	var watermark string

	for st := stateIdle; ; {
		switch st {
		case stateIdle:
			needed, since, err := o.store.ShouldSummarize(projectID, o.threshold)
			if err != nil {
				o.log.Skipped("threshold", err.Error())
				return OutcomeSkipped
			}
			if !needed {
				o.log.SummarySkipped(since)
				return OutcomeSkipped
			}
			o.log.SummaryTriggered(since)
			st = stateResetting

		case stateResetting:
			// Advance the watermark before the expensive work. If this
			// fails the only cost is one extra future trigger, so the
			// run proceeds either way.
			latest, err := o.store.LatestMessageID(projectID)
			if err == nil {
				watermark = latest
				err = o.store.RecordSummary(projectID, triggerReset, placeholderInsight, watermark)
			}
			o.log.WatermarkReset(watermark, err)
			st = stateDispatching

		case stateDispatching:
			err := o.store.DispatchSummarize(projectDir)
			switch {
			case err == nil:
				o.log.SummaryDispatched("ok", nil)
				return OutcomeDone
			case memstore.IsTimeout(err):
				// The job runs longer than the client waits; a timeout
				// means it is underway, not that it failed.
				o.log.SummaryDispatched("background", err)
				return OutcomeBackground
			default:
				o.log.SummaryDispatched("failed", err)
				return o.fallback(projectID, transcriptPath, watermark)
			}
		}
	}
}

// fallback records a locally extracted summary against the watermark that
// was already advanced in Resetting.
func (o *Orchestrator) fallback(projectID, transcriptPath, watermark string) Outcome {
	insight := o.local(transcriptPath)
	err := o.store.RecordSummary(projectID, triggerSessionEnd, insight, watermark)
	o.log.SummaryFallback(insight, err)
	return OutcomeFallback
}
