// Package memstore is the HTTP client for the memory backend: message
// append, summary-counter queries, summary records, and the dispatch
// endpoints for summarization and indexing jobs.
//
// Every call makes exactly one attempt inside a bounded timeout. Capture
// is best-effort: a dropped chat-log line is cheap, retry storms against
// a down backend are not.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"memhook/internal/hookevent"
)

// Client talks to the memory backend.
type Client struct {
	baseURL string
	// request serves the store endpoints; dispatch serves the
	// fire-and-forget command endpoints with a shorter wait.
	request  *http.Client
	dispatch *http.Client
}

// New creates a Client for the given base URL. connectTimeout bounds the
// dial, requestTimeout the whole store call, dispatchTimeout the wait on
// command dispatches (which are expected to keep running server-side after
// the client stops waiting).
func New(baseURL string, connectTimeout, requestTimeout, dispatchTimeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &Client{
		baseURL:  baseURL,
		request:  &http.Client{Transport: transport, Timeout: requestTimeout},
		dispatch: &http.Client{Transport: transport, Timeout: dispatchTimeout},
	}
}

// IsTimeout reports whether err is a timeout, as opposed to any other
// transport failure. The orchestrator treats a dispatch timeout as
// success-in-background.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

type appendRequest struct {
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	SessionID   string `json:"session_id,omitempty"`
}

type appendResponse struct {
	ID string `json:"id"`
}

// Append persists one event. One outbound attempt, no retry and no local
// queue: on transport error the event is dropped. Returns the assigned
// message id when the backend includes one.
func (c *Client) Append(ev *hookevent.Event, projectID string) (string, error) {
	body := appendRequest{
		MessageType: string(ev.Kind),
		Content:     ev.Content,
		SessionID:   ev.SessionID,
	}
	var resp appendResponse
	if err := c.postJSON(c.request, c.projectPath(projectID, "memory/messages"), body, &resp); err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	return resp.ID, nil
}

type shouldSummarizeResponse struct {
	ShouldSummarize          bool `json:"should_summarize"`
	MessagesSinceLastSummary int  `json:"messages_since_last_summary"`
}

// ShouldSummarize asks the backend whether the accumulated message count
// has crossed threshold. The counter is server-authoritative: no local
// cache, so concurrent sessions writing to the same project stay correct.
func (c *Client) ShouldSummarize(projectID string, threshold int) (needed bool, since int, err error) {
	u := c.projectPath(projectID, "memory/should-summarize") + "?threshold=" + strconv.Itoa(threshold)
	var resp shouldSummarizeResponse
	if err := c.getJSON(u, &resp); err != nil {
		return false, 0, fmt.Errorf("should-summarize: %w", err)
	}
	return resp.ShouldSummarize, resp.MessagesSinceLastSummary, nil
}

type messagesResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// LatestMessageID returns the id of the most recent stored message, or ""
// when the project has none.
func (c *Client) LatestMessageID(projectID string) (string, error) {
	u := c.projectPath(projectID, "memory/messages") + "?limit=1"
	var resp messagesResponse
	if err := c.getJSON(u, &resp); err != nil {
		return "", fmt.Errorf("latest message: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

type summaryUpdateRequest struct {
	Trigger                 string `json:"trigger"`
	NewInsights             string `json:"new_insights"`
	LastSummarizedMessageID string `json:"last_summarized_message_id,omitempty"`
}

// RecordSummary records a summary and advances the watermark to
// watermarkID, resetting the since-last-summary counter.
func (c *Client) RecordSummary(projectID, trigger, insights, watermarkID string) error {
	body := summaryUpdateRequest{
		Trigger:                 trigger,
		NewInsights:             insights,
		LastSummarizedMessageID: watermarkID,
	}
	if err := c.postJSON(c.request, c.projectPath(projectID, "memory/summary/update"), body, nil); err != nil {
		return fmt.Errorf("record summary: %w", err)
	}
	return nil
}

// DispatchSummarize asks the backend to run the summarization command for
// projectDir. The job normally outlives the client's wait; callers must
// check IsTimeout on the returned error before treating it as a failure.
func (c *Client) DispatchSummarize(projectDir string) error {
	return c.executeCommand("/summarize-project", projectDir)
}

// DispatchReindexDocs asks the backend to reindex the project documentation.
func (c *Client) DispatchReindexDocs(projectDir string) error {
	return c.executeCommand("/reindex-docs", projectDir)
}

func (c *Client) executeCommand(command, projectDir string) error {
	u := c.baseURL + "/claude-sessions/execute-command?command=" + url.QueryEscape(command) +
		"&project_dir=" + url.QueryEscape(projectDir)
	if err := c.postJSON(c.dispatch, u, nil, nil); err != nil {
		return fmt.Errorf("execute %s: %w", command, err)
	}
	return nil
}

type indexFilesRequest struct {
	FilePaths []string `json:"file_paths"`
}

// IndexCommitFiles asks the backend to (re)index the given files.
func (c *Client) IndexCommitFiles(projectDir string, paths []string) error {
	u := c.baseURL + "/rag/index-commit-files?project_dir=" + url.QueryEscape(projectDir)
	if err := c.postJSON(c.request, u, indexFilesRequest{FilePaths: paths}, nil); err != nil {
		return fmt.Errorf("index commit files: %w", err)
	}
	return nil
}

func (c *Client) projectPath(projectID, suffix string) string {
	return c.baseURL + "/projects/" + url.PathEscape(projectID) + "/" + suffix
}

func (c *Client) getJSON(u string, out any) error {
	resp, err := c.request.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(hc *http.Client, u string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := hc.Post(u, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out != nil {
		// The id is informational; a body that doesn't decode is not
		// a failed append.
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
