package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"memhook/internal/config"
	"memhook/internal/project"
)

// newProjectDir creates a directory carrying a project manifest for id.
func newProjectDir(t *testing.T, id string) string {
	t.Helper()
	dir := t.TempDir()
	manifestDir := filepath.Join(dir, project.ManifestDir)
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "project:\n  id: " + id + "\n"
	if err := os.WriteFile(filepath.Join(manifestDir, project.ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// recordingServer collects the method+path of every request it serves.
type recordingServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls []string
	body  map[string]string
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{body: map[string]string{}}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		key := r.Method + " " + r.URL.Path
		rs.calls = append(rs.calls, key)
		rs.body[key] = string(data)
		rs.mu.Unlock()
		w.Write([]byte(`{"id":"m-1","should_summarize":false,"messages_since_last_summary":0}`))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) saw(call string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, c := range rs.calls {
		if c == call {
			return true
		}
	}
	return false
}

func runCommand(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return out.String()
}

func TestHandleHook_CapturesPromptSubmit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := newProjectDir(t, "proj-1")
	srv := newRecordingServer(t)
	t.Setenv(config.EnvBaseURL, srv.URL)

	payload, _ := json.Marshal(map[string]any{
		"hook_event_name": "UserPromptSubmit",
		"prompt":          "add retry logic to the uploader",
		"session_id":      "s-1",
		"cwd":             dir,
	})

	out := runCommand(t, string(payload), "handle-hook")

	if strings.TrimSpace(out) != "{}" {
		t.Errorf("stdout = %q, want {}", out)
	}
	if !srv.saw("POST /projects/proj-1/memory/messages") {
		t.Errorf("backend never received the message append; calls: %v", srv.calls)
	}
	var body struct {
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	}
	json.Unmarshal([]byte(srv.body["POST /projects/proj-1/memory/messages"]), &body)
	if body.MessageType != "user" || body.Content != "add retry logic to the uploader" {
		t.Errorf("append body = %+v", body)
	}
}

func TestHandleHook_DirFlagOverridesPayloadCWD(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := newProjectDir(t, "proj-flag")
	srv := newRecordingServer(t)
	t.Setenv(config.EnvBaseURL, srv.URL)

	payload, _ := json.Marshal(map[string]any{
		"hook_event_name": "UserPromptSubmit",
		"prompt":          "hello",
		"cwd":             t.TempDir(),
	})

	runCommand(t, string(payload), "handle-hook", "--dir", dir)

	if !srv.saw("POST /projects/proj-flag/memory/messages") {
		t.Errorf("flag directory was not used; calls: %v", srv.calls)
	}
}

func TestHandleHook_NoProjectIdentity(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(project.EnvProjectID, "")
	srv := newRecordingServer(t)
	t.Setenv(config.EnvBaseURL, srv.URL)

	payload, _ := json.Marshal(map[string]any{
		"hook_event_name": "UserPromptSubmit",
		"prompt":          "hello",
		"cwd":             t.TempDir(),
	})

	out := runCommand(t, string(payload), "handle-hook")

	if strings.TrimSpace(out) != "{}" {
		t.Errorf("stdout = %q, want {}", out)
	}
	if len(srv.calls) != 0 {
		t.Errorf("backend was called without a project identity: %v", srv.calls)
	}
}

func TestHandleHook_MalformedPayloadStillSucceeds(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(project.EnvProjectID, "")

	out := runCommand(t, "not json at all", "handle-hook")

	if strings.TrimSpace(out) != "{}" {
		t.Errorf("stdout = %q, want {}", out)
	}
}

func TestHandleHook_EventHintFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := newProjectDir(t, "proj-hint")
	srv := newRecordingServer(t)
	t.Setenv(config.EnvBaseURL, srv.URL)

	// No hook_event_name; the flag supplies it.
	payload, _ := json.Marshal(map[string]any{
		"prompt": "what does the scheduler do",
		"cwd":    dir,
	})

	runCommand(t, string(payload), "handle-hook", "--event", "UserPromptSubmit")

	if !srv.saw("POST /projects/proj-hint/memory/messages") {
		t.Errorf("hinted event was not captured; calls: %v", srv.calls)
	}
}

func TestHandleHook_WritesActivityLog(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := newProjectDir(t, "proj-log")
	srv := newRecordingServer(t)
	t.Setenv(config.EnvBaseURL, srv.URL)

	payload, _ := json.Marshal(map[string]any{
		"hook_event_name": "UserPromptSubmit",
		"prompt":          "hello",
		"cwd":             dir,
	})

	runCommand(t, string(payload), "handle-hook")

	data, err := os.ReadFile(filepath.Join(dir, ".memhook", "logs", "activity.log"))
	if err != nil {
		t.Fatalf("activity log not written: %v", err)
	}
	if !strings.Contains(string(data), `"event":"hook_received"`) {
		t.Errorf("activity log missing hook_received entry: %s", data)
	}
}

func TestVersionCmd(t *testing.T) {
	out := runCommand(t, "", "version")
	if !strings.HasPrefix(strings.TrimSpace(out), "v") {
		t.Errorf("version output = %q, want v-prefixed", out)
	}
}
