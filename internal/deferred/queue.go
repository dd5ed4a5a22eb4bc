// Package deferred is a filesystem-backed work queue for expensive side
// jobs that could not complete synchronously. A marker file's presence
// means work is pending (its content is the payload); a lock file's
// presence means a consumer is mid-flight. Retries are opportunistic,
// driven by the next qualifying hook event, never by a timer.
//
// The queue provides single-host, single-directory mutual exclusion only.
// A crashed consumer that leaves its lock behind wedges future retries for
// that kind until the lock is removed by hand.
package deferred

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Kind names a deferred-job family. Each kind has one marker/lock pair
// per working directory.
type Kind string

const (
	// KindRAGIndex re-indexes files whose synchronous indexing call failed.
	KindRAGIndex Kind = "rag-index"
	// KindDocsReindex reindexes documentation after a docs push.
	KindDocsReindex Kind = "docs-reindex"
)

// Queue manages the marker and lock files for one directory.
type Queue struct {
	dir string
	mu  *flock.Flock
}

// LogsDir is where markers and locks live, relative to the project root.
const LogsDir = ".memhook/logs"

// NewQueue creates a queue rooted at projectRoot.
func NewQueue(projectRoot string) *Queue {
	dir := filepath.Join(projectRoot, filepath.FromSlash(LogsDir))
	return &Queue{
		dir: dir,
		mu:  flock.New(filepath.Join(dir, ".queue.lock")),
	}
}

// Enqueue writes payload to the marker for kind, overwriting any existing
// marker. A pending job for the same kind coalesces: only the newest
// payload survives. A nil payload is a valid presence-only signal.
func (q *Queue) Enqueue(kind Kind, payload []byte) error {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	unlock, err := q.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.WriteFile(q.markerPath(kind), payload, 0o644); err != nil {
		return fmt.Errorf("write marker %s: %w", kind, err)
	}
	return nil
}

// TryConsume claims the pending job for kind. If a lock file exists another
// consumer is mid-flight and (nil, false) is returned with the marker left
// untouched. Otherwise the marker is deleted before its payload is
// returned: the caller owns the one delivery and must re-enqueue on
// failure.
func (q *Queue) TryConsume(kind Kind) ([]byte, bool, error) {
	unlock, err := q.lockDir()
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if _, err := os.Stat(q.lockPath(kind)); err == nil {
		return nil, false, nil
	}

	payload, err := os.ReadFile(q.markerPath(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read marker %s: %w", kind, err)
	}
	if err := os.Remove(q.markerPath(kind)); err != nil {
		return nil, false, fmt.Errorf("remove marker %s: %w", kind, err)
	}
	return payload, true, nil
}

// MarkInFlight creates the lock file for kind. Fails if it already exists.
func (q *Queue) MarkInFlight(kind Kind) error {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	f, err := os.OpenFile(q.lockPath(kind), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mark in-flight %s: %w", kind, err)
	}
	return f.Close()
}

// ClearInFlight removes the lock file for kind. Callers must pair this
// with MarkInFlight on every exit path.
func (q *Queue) ClearInFlight(kind Kind) error {
	if err := os.Remove(q.lockPath(kind)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear in-flight %s: %w", kind, err)
	}
	return nil
}

// Pending reports whether a marker exists for kind.
func (q *Queue) Pending(kind Kind) bool {
	_, err := os.Stat(q.markerPath(kind))
	return err == nil
}

// Consume runs one delivery attempt for kind: claim the marker, run fn
// under the in-flight lock, and re-enqueue the identical payload if fn
// fails. Returns attempted=false when there was nothing to consume (no
// marker, or another consumer holds the lock).
func (q *Queue) Consume(kind Kind, fn func(payload []byte) error) (attempted bool, err error) {
	payload, ok, err := q.TryConsume(kind)
	if err != nil || !ok {
		return false, err
	}

	if err := q.MarkInFlight(kind); err != nil {
		// Lost the claim race after consuming: put the work back.
		if reqErr := q.Enqueue(kind, payload); reqErr != nil {
			return false, reqErr
		}
		return false, nil
	}
	defer q.ClearInFlight(kind)

	if err := fn(payload); err != nil {
		// Re-arm for the next qualifying event.
		if reqErr := q.Enqueue(kind, payload); reqErr != nil {
			return true, fmt.Errorf("re-enqueue %s after failure: %w (original: %v)", kind, reqErr, err)
		}
		return true, err
	}
	return true, nil
}

func (q *Queue) markerPath(kind Kind) string {
	return filepath.Join(q.dir, string(kind)+".pending.json")
}

func (q *Queue) lockPath(kind Kind) string {
	return filepath.Join(q.dir, string(kind)+".lock")
}

// lockDir takes the directory-wide mutation lock so racing producers and
// consumers in the same directory cannot interleave a read-modify-write
// on the marker files.
func (q *Queue) lockDir() (func(), error) {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	if err := q.mu.Lock(); err != nil {
		return nil, fmt.Errorf("lock queue dir: %w", err)
	}
	return func() { _ = q.mu.Unlock() }, nil
}
