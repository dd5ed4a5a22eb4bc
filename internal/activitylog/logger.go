// Package activitylog writes an append-only JSONL record of pipeline
// activity. It is the only user-visible failure surface: every skipped,
// dropped, or fallback path leaves a line here and nowhere else.
package activitylog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// Logger appends one JSON object per event. All methods are best-effort:
// a logger that cannot write stays silent rather than failing the hook.
type Logger struct {
	enabled      bool
	f            *os.File
	actor        string
	sessionID    string
	invocationID string
	echo         bool
}

// New creates a Logger writing to path. Each invocation gets a fresh
// correlation id so concurrent hook processes can be told apart in a
// shared log file. When stderr is a terminal, entries are echoed there.
func New(enabled bool, path, actor, sessionID string) *Logger {
	l := &Logger{
		enabled:      enabled,
		actor:        actor,
		sessionID:    sessionID,
		invocationID: uuid.NewString(),
		echo:         isatty.IsTerminal(os.Stderr.Fd()),
	}
	if !enabled {
		return l
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.enabled = false
		return l
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.enabled = false
		return l
	}
	l.f = f
	return l
}

// Nop returns a disabled Logger.
func Nop() *Logger {
	return &Logger{}
}

// Close releases the log file.
func (l *Logger) Close() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

// HookReceived records an incoming lifecycle event.
func (l *Logger) HookReceived(eventName string) {
	l.write("hook_received", map[string]any{"hook_event": eventName})
}

// Skipped records a stage that did no work and why.
func (l *Logger) Skipped(stage, reason string) {
	l.write("skipped", map[string]any{"stage": stage, "reason": reason})
}

// Captured records a stored event and the id the backend assigned.
func (l *Logger) Captured(kind, messageID string) {
	fields := map[string]any{"kind": kind}
	if messageID != "" {
		fields["message_id"] = messageID
	}
	l.write("captured", fields)
}

// CaptureDropped records an event lost to a transport failure.
func (l *Logger) CaptureDropped(kind string, err error) {
	l.write("capture_dropped", map[string]any{"kind": kind, "error": err.Error()})
}

// SummaryTriggered records a threshold crossing.
func (l *Logger) SummaryTriggered(since int) {
	l.write("summary_triggered", map[string]any{"messages_since": since})
}

// SummarySkipped records a below-threshold check.
func (l *Logger) SummarySkipped(since int) {
	l.write("summary_skipped", map[string]any{"messages_since": since})
}

// WatermarkReset records the pre-dispatch counter reset.
func (l *Logger) WatermarkReset(watermarkID string, err error) {
	fields := map[string]any{"watermark": watermarkID}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.write("watermark_reset", fields)
}

// SummaryDispatched records the outcome of the remote dispatch:
// "ok", "background" (timed out, presumed running), or "failed".
func (l *Logger) SummaryDispatched(outcome string, err error) {
	fields := map[string]any{"outcome": outcome}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.write("summary_dispatched", fields)
}

// SummaryFallback records a locally extracted summary being recorded.
func (l *Logger) SummaryFallback(insight string, err error) {
	fields := map[string]any{"insight": insight}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.write("summary_fallback", fields)
}

// DeferredEnqueued records a marker write.
func (l *Logger) DeferredEnqueued(kind string, payloadLen int) {
	l.write("deferred_enqueued", map[string]any{"job_kind": kind, "payload_len": payloadLen})
}

// DeferredConsumed records a consumption attempt. A non-nil err means the
// job was re-armed.
func (l *Logger) DeferredConsumed(kind string, err error) {
	fields := map[string]any{"job_kind": kind}
	if err != nil {
		fields["error"] = err.Error()
		fields["requeued"] = true
	}
	l.write("deferred_consumed", fields)
}

func (l *Logger) write(event string, fields map[string]any) {
	if !l.enabled || l.f == nil {
		return
	}
	entry := map[string]any{
		"ts":         time.Now().Format(time.RFC3339Nano),
		"event":      event,
		"invocation": l.invocationID,
	}
	if l.actor != "" {
		entry["actor"] = l.actor
	}
	if l.sessionID != "" {
		entry["session_id"] = l.sessionID
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.f.Write(append(data, '\n'))
	if l.echo {
		fmt.Fprintf(os.Stderr, "%s\n", data)
	}
}
