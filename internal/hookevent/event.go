// Package hookevent normalizes the heterogeneous JSON payloads delivered
// by the agent runtime's lifecycle hooks into canonical events.
package hookevent

import (
	"encoding/json"

	"memhook/internal/transcript"
)

// Kind distinguishes who authored a captured turn.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
)

// MaxContentLen caps event content before transmission.
const MaxContentLen = 2000

// Event is one captured turn. It lives for the duration of a single hook
// invocation and is never persisted locally.
type Event struct {
	Kind      Kind
	Content   string
	SessionID string
}

// Lifecycle event names emitted by the agent runtime.
const (
	EventUserPromptSubmit = "UserPromptSubmit"
	EventStop             = "Stop"
	EventPostToolUse      = "PostToolUse"
)

// envelope covers the union of payload fields across lifecycle points.
type envelope struct {
	HookEventName  string `json:"hook_event_name"`
	Prompt         string `json:"prompt"`
	UserPrompt     string `json:"userPrompt"`
	TranscriptPath string `json:"transcript_path"`
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
}

// Name resolves the lifecycle event name: the payload's explicit
// hook_event_name field wins, then the caller's hint, then structural
// inference from distinctive fields. Returns "" when nothing matches.
func Name(payload []byte, hint string) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return hint
	}
	if env.HookEventName != "" {
		return env.HookEventName
	}
	if hint != "" {
		return hint
	}
	if env.Prompt != "" || env.UserPrompt != "" {
		return EventUserPromptSubmit
	}
	if env.TranscriptPath != "" {
		return EventStop
	}
	return ""
}

// Parse produces a canonical Event from a raw hook payload, or nil when the
// lifecycle point yields nothing capturable. Parse never fails: malformed
// payloads degrade to nil.
func Parse(payload []byte, hint string) *Event {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}

	switch Name(payload, hint) {
	case EventUserPromptSubmit:
		text := env.Prompt
		if text == "" {
			text = env.UserPrompt
		}
		if text == "" {
			return nil
		}
		return &Event{
			Kind:      KindUser,
			Content:   Truncate(text),
			SessionID: env.SessionID,
		}

	case EventStop:
		if env.TranscriptPath == "" {
			return nil
		}
		text := transcript.LastAssistantText(env.TranscriptPath)
		if text == "" {
			return nil
		}
		return &Event{
			Kind:      KindAssistant,
			Content:   Truncate(text),
			SessionID: env.SessionID,
		}
	}
	return nil
}

// CWD returns the working directory carried in the payload, if any.
func CWD(payload []byte) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.CWD
}

// SessionID returns the session correlation id carried in the payload.
func SessionID(payload []byte) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.SessionID
}

// TranscriptPath returns the transcript file path carried in the payload.
func TranscriptPath(payload []byte) string {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.TranscriptPath
}

// toolEnvelope is the payload shape of tool lifecycle events.
type toolEnvelope struct {
	ToolName  string `json:"tool_name"`
	ToolInput struct {
		Command string `json:"command"`
	} `json:"tool_input"`
}

// ShellCommand returns the shell command from a post-tool payload, or ""
// when the tool was not a shell invocation.
func ShellCommand(payload []byte) string {
	var env toolEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	if env.ToolName != "Bash" {
		return ""
	}
	return env.ToolInput.Command
}

// Truncate bounds s to MaxContentLen characters without splitting a rune.
func Truncate(s string) string {
	if len(s) <= MaxContentLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxContentLen {
		return s
	}
	return string(runes[:MaxContentLen])
}
