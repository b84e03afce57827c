// Package journal records the progress event stream of flow runs so that
// a run can be inspected or replayed after it finished.
package journal

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

// Version is the current entry format version.
// Increment when making breaking changes to Entry.
const Version = 1

// Entry is one recorded progress event.
type Entry struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	Event runflow.ProgressEvent `json:"event"`
}

// NewEntry wraps a progress event. The sequence is assigned by the store.
func NewEntry(evt runflow.ProgressEvent) *Entry {
	return &Entry{
		Version:   Version,
		ID:        uuid.New().String(),
		RunID:     evt.RunID,
		Timestamp: time.Now().UTC(),
		Event:     evt,
	}
}

// Marshal serializes an entry to JSON.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an entry from JSON.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores an entry at the end of its run and sets its Sequence.
	Append(e *Entry) error

	// List returns all entries of a run, ordered by sequence.
	// Returns empty slice (not error) if the run has no entries.
	List(runID string) ([]Entry, error)

	// Latest returns the most recent entry of a node in a run.
	// Returns ErrNotFound if the node has no entries.
	Latest(runID, nodeID string) (*Entry, error)

	// Runs summarizes every recorded run, oldest first.
	Runs() ([]RunInfo, error)

	// DeleteRun removes all entries of a run.
	// Returns nil if the run has no entries.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// RunInfo summarizes a recorded run without loading its entries.
type RunInfo struct {
	RunID     string
	Entries   int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Sentinel errors for journal operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("journal entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")

	// ErrMissingRunID indicates an entry without a run id.
	ErrMissingRunID = errors.New("journal entry has no run id")
)
