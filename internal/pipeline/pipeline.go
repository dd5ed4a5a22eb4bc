// Package pipeline wires the hook pipeline together: capture the turn,
// check the summarization threshold, detect protected-branch pushes, and
// drain the deferred-job queue. Every stage fails closed toward inaction:
// a hook invocation always completes.
package pipeline

import (
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"memhook/internal/activitylog"
	"memhook/internal/deferred"
	"memhook/internal/gitpush"
	"memhook/internal/hookevent"
	"memhook/internal/memstore"
	"memhook/internal/summarize"
)

// Backend is the full backend surface the pipeline needs; *memstore.Client
// satisfies it.
type Backend interface {
	summarize.Store
	Append(ev *hookevent.Event, projectID string) (string, error)
	IndexCommitFiles(projectDir string, paths []string) error
	DispatchReindexDocs(projectDir string) error
}

// Pipeline handles one hook invocation for one resolved project.
type Pipeline struct {
	store       Backend
	queue       *deferred.Queue
	orch        *summarize.Orchestrator
	log         *activitylog.Logger
	projectID   string
	projectRoot string
}

// New assembles a Pipeline. A nil logger defaults to a no-op.
func New(store Backend, queue *deferred.Queue, threshold int, projectID, projectRoot string, log *activitylog.Logger) *Pipeline {
	if log == nil {
		log = activitylog.Nop()
	}
	return &Pipeline{
		store:       store,
		queue:       queue,
		orch:        summarize.New(store, threshold, nil, log),
		log:         log,
		projectID:   projectID,
		projectRoot: projectRoot,
	}
}

// HandleEvent runs the pipeline stages that apply to the named lifecycle
// event. It never fails.
func (p *Pipeline) HandleEvent(name string, payload []byte) {
	switch name {
	case hookevent.EventUserPromptSubmit:
		// Prompt submission is the qualifying event that drains
		// deferred work queued by earlier invocations.
		p.Drain()
		p.capture(name, payload)

	case hookevent.EventStop:
		p.capture(name, payload)
		p.orch.Run(p.projectID, p.projectRoot, hookevent.TranscriptPath(payload))

	case hookevent.EventPostToolUse:
		p.handlePostTool(payload)
	}
}

// capture appends the turn to the message log. Best-effort, one attempt:
// on transport error the event is dropped, never queued.
func (p *Pipeline) capture(name string, payload []byte) {
	ev := hookevent.Parse(payload, name)
	if ev == nil {
		p.log.Skipped("capture", "no capturable event")
		return
	}
	id, err := p.store.Append(ev, p.projectID)
	if err != nil {
		p.log.CaptureDropped(string(ev.Kind), err)
		return
	}
	p.log.Captured(string(ev.Kind), id)
}

// handlePostTool inspects a completed tool command for a push onto a
// protected branch and produces indexing work from it.
func (p *Pipeline) handlePostTool(payload []byte) {
	command := hookevent.ShellCommand(payload)
	if command == "" {
		return
	}
	push, ok := gitpush.Detect(command, p.projectRoot)
	if !ok {
		return
	}

	if push.DocsTagged() {
		if err := p.queue.Enqueue(deferred.KindDocsReindex, nil); err == nil {
			p.log.DeferredEnqueued(string(deferred.KindDocsReindex), 0)
			// Attempt immediately; on failure the marker is re-armed.
			p.drainKind(deferred.KindDocsReindex)
		}
	}

	if len(push.Files) > 0 {
		if err := p.store.IndexCommitFiles(p.projectRoot, push.Files); err != nil {
			marker, merr := json.Marshal(push.Files)
			if merr == nil && p.queue.Enqueue(deferred.KindRAGIndex, marker) == nil {
				p.log.DeferredEnqueued(string(deferred.KindRAGIndex), len(marker))
			}
		}
	}
}

// Drain attempts one consumption of each deferred-job kind. The kinds are
// independent and drained concurrently.
func (p *Pipeline) Drain() {
	var g errgroup.Group
	g.Go(func() error {
		p.drainKind(deferred.KindRAGIndex)
		return nil
	})
	g.Go(func() error {
		p.drainKind(deferred.KindDocsReindex)
		return nil
	})
	_ = g.Wait()
}

func (p *Pipeline) drainKind(kind deferred.Kind) {
	attempted, err := p.queue.Consume(kind, func(payload []byte) error {
		switch kind {
		case deferred.KindDocsReindex:
			err := p.store.DispatchReindexDocs(p.projectRoot)
			if memstore.IsTimeout(err) {
				// Dispatches outlive the client's wait; a timeout
				// means the job is underway.
				return nil
			}
			return err
		default:
			var paths []string
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &paths); err != nil {
					// Unreadable payload is treated as no data.
					return nil
				}
			}
			if len(paths) == 0 {
				return nil
			}
			return p.store.IndexCommitFiles(p.projectRoot, paths)
		}
	})
	if attempted || err != nil {
		p.log.DeferredConsumed(string(kind), err)
	}
}
