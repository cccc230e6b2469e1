package checkpoint

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/snapetech/streamcheck/internal/catalog"
)

// Manager owns the run's processing state: the accumulated results and the
// processed-URL set derived from them. All mutation goes through Record under
// one lock; Flush persists a snapshot taken under that lock, so a flush never
// observes a half-applied record. A nil store disables persistence but keeps
// the in-memory result set.
type Manager struct {
	store    Store
	interval int
	log      *log.Logger
	now      func() time.Time

	// OnFlush, when set, observes every persistence attempt.
	OnFlush func(d time.Duration, results int, err error)

	flushMu sync.Mutex // serializes Save calls; never held with mu during I/O

	mu         sync.Mutex
	runID      string
	results    []catalog.CheckResult
	index      map[string]struct{}
	chain      chain
	sinceFlush int
	resumed    bool
}

// NewManager returns a manager that flushes every interval results.
// store may be nil; logger may be nil.
func NewManager(store Store, interval int, logger *log.Logger) *Manager {
	if interval <= 0 {
		interval = 100
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	m := &Manager{
		store:    store,
		interval: interval,
		log:      logger,
		now:      time.Now,
		index:    make(map[string]struct{}),
	}
	m.reset(uuid.NewString())
	return m
}

func (m *Manager) reset(runID string) {
	m.runID = runID
	m.results = nil
	m.index = make(map[string]struct{})
	m.chain = newChain(runID)
	m.sinceFlush = 0
	m.resumed = false
}

// Load restores state from the store. A missing, unreadable, corrupt or
// version-mismatched snapshot is logged and treated as absent; Load never
// fails a run. It returns the number of results restored.
func (m *Manager) Load(ctx context.Context) int {
	if m.store == nil {
		return 0
	}
	st, err := m.store.Load(ctx)
	if err == nil && st != nil {
		err = st.Validate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.log.Warn("ignoring checkpoint, starting fresh", "path", m.store.Location(), "err", err)
		return 0
	}
	if st == nil {
		return 0
	}
	m.reset(st.RunID)
	for _, r := range st.Results {
		m.addLocked(r)
	}
	m.resumed = true
	m.log.Info("resuming from checkpoint", "path", m.store.Location(), "results", len(st.Results), "saved_at", st.SavedAt.Format(time.RFC3339))
	return len(st.Results)
}

// Record adds r. It reports false, and changes nothing, if a result for the
// same URL is already held.
func (m *Manager) Record(r catalog.CheckResult) bool {
	r = storable(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.index[r.URL]; dup {
		return false
	}
	m.addLocked(r)
	m.sinceFlush++
	return true
}

func (m *Manager) addLocked(r catalog.CheckResult) {
	m.results = append(m.results, r)
	m.index[r.URL] = struct{}{}
	m.chain.add(r)
}

// MaybeFlush persists when at least interval results arrived since the last flush.
func (m *Manager) MaybeFlush(ctx context.Context) error {
	m.mu.Lock()
	due := m.sinceFlush >= m.interval
	m.mu.Unlock()
	if !due {
		return nil
	}
	return m.Flush(ctx)
}

// Flush persists the current state. Failures are *PersistError.
func (m *Manager) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	st := m.snapshotLocked()
	pending := m.sinceFlush
	m.mu.Unlock()

	start := time.Now()
	err := m.store.Save(ctx, st)
	if m.OnFlush != nil {
		m.OnFlush(time.Since(start), len(st.Results), err)
	}
	if err != nil {
		return &PersistError{Path: m.store.Location(), Err: err}
	}
	m.mu.Lock()
	m.sinceFlush -= pending
	m.mu.Unlock()
	m.log.Debug("checkpoint saved", "path", m.store.Location(), "results", len(st.Results))
	return nil
}

// snapshotLocked shares the results backing array: records only ever append
// past len, so the snapshot's elements are never written again.
func (m *Manager) snapshotLocked() *State {
	n := len(m.results)
	results := m.results[:n:n]
	processed := make([]string, n)
	for i, r := range results {
		processed[i] = r.URL
	}
	return &State{
		Version:   Version,
		RunID:     m.runID,
		Processed: processed,
		Results:   results,
		SavedAt:   m.now().UTC(),
		Checksum:  m.chain.String(),
	}
}

// Finalize deletes the persisted state. Call it only after the run's output
// is durably written.
func (m *Manager) Finalize(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	if err := m.store.Remove(ctx); err != nil {
		return &PersistError{Path: m.store.Location(), Err: err}
	}
	m.log.Debug("checkpoint removed", "path", m.store.Location())
	return nil
}

// Close releases the store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Results returns a copy of all results held, restored ones first.
func (m *Manager) Results() []catalog.CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.CheckResult, len(m.results))
	copy(out, m.results)
	return out
}

// Processed returns the URLs that already have a result.
func (m *Manager) Processed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.results))
	for i, r := range m.results {
		out[i] = r.URL
	}
	return out
}

// Len returns the number of results held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// RunID identifies the run; it survives resumption.
func (m *Manager) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// Resumed reports whether Load restored a snapshot.
func (m *Manager) Resumed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumed
}

// Enabled reports whether state is persisted.
func (m *Manager) Enabled() bool { return m.store != nil }

// Location returns the store location, or "" when disabled.
func (m *Manager) Location() string {
	if m.store == nil {
		return ""
	}
	return m.store.Location()
}
