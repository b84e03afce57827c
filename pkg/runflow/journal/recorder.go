package journal

import (
	"log/slog"
	"sync"

	"github.com/randalmurphal/runflow/pkg/runflow"
)

// Recorder is a ProgressObserver that appends every event to a Store.
//
// OnProgress cannot fail, so append errors are logged and the first one
// is kept for Err. Recording continues after an error.
//
// Example:
//
//	store, _ := journal.NewSQLiteStore("./journal.db")
//	rec := journal.NewRecorder(store, logger)
//	params.ProgressObserver = rec
//	result, err := runflow.RunFlow(ctx, params, runflow.WithRunID("run-1"))
//	if err := rec.Err(); err != nil { ... }
type Recorder struct {
	store  Store
	logger *slog.Logger

	mu        sync.Mutex
	err       error
	recorded  int
	completed bool
}

var _ runflow.ProgressObserver = (*Recorder)(nil)

// NewRecorder creates a recorder on store. A nil logger uses slog.Default().
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// OnProgress appends evt to the store.
func (r *Recorder) OnProgress(evt runflow.ProgressEvent) {
	err := r.store.Append(NewEntry(evt))

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Error("journal append failed",
			slog.String("run_id", evt.RunID),
			slog.String("node_id", evt.NodeID),
			slog.String("error", err.Error()),
		)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.recorded++
}

// OnComplete marks the recording complete.
func (r *Recorder) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}

// Err returns the first append error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Recorded returns how many events were stored.
func (r *Recorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

// Completed reports whether the run's event stream ended.
func (r *Recorder) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Replay delivers the recorded events of a run to observer in sequence
// order, then completes it.
func Replay(store Store, runID string, observer runflow.ProgressObserver) error {
	entries, err := store.List(runID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		observer.OnProgress(e.Event)
	}
	observer.OnComplete()
	return nil
}

// NodeStates returns the last Finished state of every node in entries.
// Nodes inside loop bodies report their state in the final iteration.
func NodeStates(entries []Entry) map[string]runflow.NodeState {
	states := make(map[string]runflow.NodeState)
	for _, e := range entries {
		if e.Event.Type == runflow.ProgressFinished {
			states[e.Event.NodeID] = e.Event.State
		}
	}
	return states
}
