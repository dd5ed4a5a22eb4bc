// Package transcript extracts terse session insights from an agent's
// newline-delimited JSON transcript file. It is deliberately crude: it
// exists so a summary record always carries something human-readable,
// not to compete with the remote summarizer.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Placeholder is recorded when no task line or edited file can be
// extracted from the transcript.
const Placeholder = "Session ended (no extractable insights)"

const (
	minTaskLen   = 10
	maxTaskLen   = 200
	maxBasenames = 5
)

// editingTools are the assistant tool invocations that reference a file
// being modified.
var editingTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// line is one transcript record. Only the fields the heuristics need.
type line struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type toolInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
}

// Summarize scans the transcript at path and composes a one-line summary:
// the most recent short user task line, plus the distinct basenames of
// files touched by editing tools. Always returns a non-empty string;
// unreadable or empty transcripts yield Placeholder.
func Summarize(path string) string {
	var lastTask string
	var files []string
	seen := map[string]bool{}

	scanLines(path, func(l line) {
		var msg message
		if len(l.Message) == 0 || json.Unmarshal(l.Message, &msg) != nil {
			return
		}
		switch l.Type {
		case "user":
			if task := taskCandidate(msg.Content); task != "" {
				lastTask = task
			}
		case "assistant":
			for _, name := range editedFiles(msg.Content) {
				base := filepath.Base(name)
				if !seen[base] {
					seen[base] = true
					files = append(files, base)
				}
			}
		}
	})

	var parts []string
	if lastTask != "" {
		parts = append(parts, "Task: "+lastTask)
	}
	if len(files) > 0 {
		shown := files
		if len(shown) > maxBasenames {
			shown = shown[:maxBasenames]
		}
		parts = append(parts, fmt.Sprintf("Files(%d): %s", len(files), strings.Join(shown, ",")))
	}
	if len(parts) == 0 {
		return Placeholder
	}
	return strings.Join(parts, " | ")
}

// LastAssistantText returns the text of the most recent assistant message
// in the transcript, or "" if none can be read.
func LastAssistantText(path string) string {
	var last string
	scanLines(path, func(l line) {
		if l.Type != "assistant" || len(l.Message) == 0 {
			return
		}
		var msg message
		if json.Unmarshal(l.Message, &msg) != nil {
			return
		}
		if text := messageText(msg.Content); text != "" {
			last = text
		}
	})
	return last
}

// scanLines reads the transcript line by line, calling fn for every record
// that parses. Malformed lines and read errors are skipped: a broken
// transcript is treated the same as no data.
func scanLines(path string, fn func(line)) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Transcript lines carry full tool payloads and can be large.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var l line
		if json.Unmarshal(scanner.Bytes(), &l) != nil {
			continue
		}
		fn(l)
	}
}

// taskCandidate extracts a task line from user message content.
// Candidates are 10-200 characters and not commands or pasted markup
// (no leading "/", "[", or "<").
func taskCandidate(content json.RawMessage) string {
	text := messageText(content)
	for _, candidate := range strings.Split(text, "\n") {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) < minTaskLen || len(candidate) > maxTaskLen {
			continue
		}
		switch candidate[0] {
		case '/', '[', '<':
			continue
		}
		return candidate
	}
	return ""
}

// editedFiles returns the file paths referenced by editing tool_use blocks.
func editedFiles(content json.RawMessage) []string {
	var blocks []contentBlock
	if json.Unmarshal(content, &blocks) != nil {
		return nil
	}
	var paths []string
	for _, b := range blocks {
		if b.Type != "tool_use" || !editingTools[b.Name] {
			continue
		}
		var in toolInput
		if json.Unmarshal(b.Input, &in) != nil {
			continue
		}
		switch {
		case in.FilePath != "":
			paths = append(paths, in.FilePath)
		case in.NotebookPath != "":
			paths = append(paths, in.NotebookPath)
		}
	}
	return paths
}

// messageText flattens message content to plain text. Content is either a
// raw string or an array of typed blocks.
func messageText(content json.RawMessage) string {
	var s string
	if json.Unmarshal(content, &s) == nil {
		return s
	}
	var blocks []contentBlock
	if json.Unmarshal(content, &blocks) != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}
