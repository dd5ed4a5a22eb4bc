package summarize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// timeoutErr satisfies net.Error with Timeout() == true.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "context deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// summaryCall records one RecordSummary invocation.
type summaryCall struct {
	trigger   string
	insights  string
	watermark string
}

// fakeStore simulates the backend's server-owned counter: RecordSummary
// with a watermark resets the since-last-summary count to zero.
type fakeStore struct {
	since     int
	latestID  string
	summaries []summaryCall

	shouldErr   error
	latestErr   error
	recordErr   error
	dispatchErr error

	dispatches int
}

func (s *fakeStore) ShouldSummarize(projectID string, threshold int) (bool, int, error) {
	if s.shouldErr != nil {
		return false, 0, s.shouldErr
	}
	return s.since >= threshold, s.since, nil
}

func (s *fakeStore) LatestMessageID(projectID string) (string, error) {
	if s.latestErr != nil {
		return "", s.latestErr
	}
	return s.latestID, nil
}

func (s *fakeStore) RecordSummary(projectID, trigger, insights, watermarkID string) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.summaries = append(s.summaries, summaryCall{trigger, insights, watermarkID})
	if watermarkID != "" {
		s.since = 0
	}
	return nil
}

func (s *fakeStore) DispatchSummarize(projectDir string) error {
	s.dispatches++
	return s.dispatchErr
}

func writeScenarioTranscript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	lines := `{"type":"user","message":{"role":"user","content":"fix login bug"}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/repo/auth.py"}}]}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/repo/session.py"}}]}}
`
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBelowThresholdSkips(t *testing.T) {
	store := &fakeStore{since: 3}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeSkipped {
		t.Errorf("Outcome = %q, want skipped", got)
	}
	if store.dispatches != 0 || len(store.summaries) != 0 {
		t.Error("no backend work expected below threshold")
	}
}

func TestThresholdCheckErrorSkips(t *testing.T) {
	store := &fakeStore{shouldErr: errors.New("connection refused")}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeSkipped {
		t.Errorf("Outcome = %q, want skipped", got)
	}
	if store.dispatches != 0 {
		t.Error("dispatch should not run when the threshold check fails")
	}
}

func TestTriggerResetsWatermarkBeforeDispatch(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M100"}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeDone {
		t.Errorf("Outcome = %q, want done", got)
	}
	if store.dispatches != 1 {
		t.Fatalf("dispatches = %d, want 1", store.dispatches)
	}
	if len(store.summaries) != 1 {
		t.Fatalf("summaries = %d, want exactly the reset", len(store.summaries))
	}
	reset := store.summaries[0]
	if reset.trigger != "hook_reset" || reset.insights != "placeholder" || reset.watermark != "M100" {
		t.Errorf("reset call = %+v", reset)
	}
}

func TestDispatchTimeoutIsSuccess(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M100", dispatchErr: timeoutErr{}}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeBackground {
		t.Errorf("Outcome = %q, want background", got)
	}
	// Only the reset summary; no fallback on timeout.
	if len(store.summaries) != 1 {
		t.Errorf("summaries = %d, want 1 (no fallback)", len(store.summaries))
	}
}

func TestDispatchFailureFallsBack(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M100", dispatchErr: errors.New("connection refused")}
	o := New(store, 30, nil, nil)
	transcriptPath := writeScenarioTranscript(t)

	if got := o.Run("p", "/work", transcriptPath); got != OutcomeFallback {
		t.Errorf("Outcome = %q, want fallback", got)
	}
	if len(store.summaries) != 2 {
		t.Fatalf("summaries = %d, want reset + fallback", len(store.summaries))
	}
	fb := store.summaries[1]
	if fb.trigger != "session_end" {
		t.Errorf("fallback trigger = %q", fb.trigger)
	}
	if fb.insights != "Task: fix login bug | Files(2): auth.py,session.py" {
		t.Errorf("fallback insights = %q", fb.insights)
	}
	if fb.watermark != "M100" {
		t.Errorf("fallback watermark = %q, want same id as reset", fb.watermark)
	}
}

func TestFallbackInsightsNeverEmpty(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M1", dispatchErr: errors.New("boom")}
	o := New(store, 30, nil, nil)

	o.Run("p", "/work", filepath.Join(t.TempDir(), "missing.jsonl"))

	fb := store.summaries[len(store.summaries)-1]
	if fb.insights == "" {
		t.Error("fallback recorded empty insights")
	}
}

func TestPreResetFailureStillDispatches(t *testing.T) {
	store := &fakeStore{since: 31, latestErr: errors.New("unavailable")}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeDone {
		t.Errorf("Outcome = %q, want done despite failed pre-reset", got)
	}
	if store.dispatches != 1 {
		t.Errorf("dispatches = %d, want 1", store.dispatches)
	}
}

func TestRecordResetFailureStillDispatches(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M100", recordErr: errors.New("500")}
	o := New(store, 30, nil, nil)

	if got := o.Run("p", "/work", ""); got != OutcomeDone {
		t.Errorf("Outcome = %q, want done", got)
	}
	if store.dispatches != 1 {
		t.Errorf("dispatches = %d, want 1", store.dispatches)
	}
}

// A second trigger cannot fire until the store reports a fresh threshold
// crossing after the reset, even when dispatches never acknowledge.
func TestIdempotentTriggerAcrossRuns(t *testing.T) {
	store := &fakeStore{since: 31, latestID: "M100", dispatchErr: timeoutErr{}}
	o := New(store, 30, nil, nil)

	outcomes := []Outcome{
		o.Run("p", "/work", ""),
		o.Run("p", "/work", ""),
		o.Run("p", "/work", ""),
	}

	if store.dispatches != 1 {
		t.Errorf("dispatches = %d, want 1 across repeated turn-stops", store.dispatches)
	}
	if outcomes[0] != OutcomeBackground || outcomes[1] != OutcomeSkipped || outcomes[2] != OutcomeSkipped {
		t.Errorf("outcomes = %v", outcomes)
	}

	// A fresh threshold crossing re-arms the trigger.
	store.since = 35
	if got := o.Run("p", "/work", ""); got != OutcomeBackground {
		t.Errorf("Outcome = %q, want background after fresh crossing", got)
	}
	if store.dispatches != 2 {
		t.Errorf("dispatches = %d, want 2", store.dispatches)
	}
}
