// Package checkpoint persists run progress so an interrupted check can resume
// without re-probing work that already finished.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/snapetech/streamcheck/internal/catalog"
)

// Version is the snapshot schema version. A stored snapshot with any other
// version is treated as absent.
const Version = 1

var (
	// ErrCorrupt marks a snapshot that failed to decode or validate.
	ErrCorrupt = errors.New("checkpoint corrupt")
	// ErrVersion marks a snapshot written by an incompatible schema.
	ErrVersion = errors.New("checkpoint version mismatch")
)

// State is one durable snapshot of run progress. Processed is always the set
// of URLs in Results; it is stored so the snapshot is self-describing.
type State struct {
	Version   int                   `json:"version"`
	RunID     string                `json:"run_id"`
	Processed []string              `json:"processed"`
	Results   []catalog.CheckResult `json:"results"`
	SavedAt   time.Time             `json:"saved_at"`
	Checksum  string                `json:"checksum"`
}

// Validate checks the schema version, that Processed and the result URLs
// are the same set with no duplicates, and the checksum.
func (s *State) Validate() error {
	if s.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersion, s.Version, Version)
	}
	seen := make(map[string]bool, len(s.Results))
	for _, r := range s.Results {
		if seen[r.URL] {
			return fmt.Errorf("%w: duplicate result for %s", ErrCorrupt, r.URL)
		}
		seen[r.URL] = true
	}
	if len(s.Processed) != len(seen) {
		return fmt.Errorf("%w: %d processed urls for %d results", ErrCorrupt, len(s.Processed), len(seen))
	}
	for _, u := range s.Processed {
		if !seen[u] {
			return fmt.Errorf("%w: processed url without result", ErrCorrupt)
		}
	}
	if sum := checksum(s.RunID, s.Results); sum != s.Checksum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}

// chain is a running sha256 over results in record order. Results are
// append-only, so the manager extends it per record instead of rehashing
// everything on each flush.
type chain struct {
	sum []byte
}

func newChain(runID string) chain {
	h := sha256.Sum256([]byte(fmt.Sprintf("streamcheck/checkpoint/v%d/%s", Version, runID)))
	return chain{sum: h[:]}
}

func (c *chain) add(r catalog.CheckResult) {
	r = storable(r)
	r.CheckedAt = r.CheckedAt.UTC()
	b, _ := json.Marshal(r)
	h := sha256.New()
	h.Write(c.sum)
	h.Write(b)
	c.sum = h.Sum(nil)
}

func (c chain) String() string { return hex.EncodeToString(c.sum) }

func checksum(runID string, results []catalog.CheckResult) string {
	c := newChain(runID)
	for _, r := range results {
		c.add(r)
	}
	return c.String()
}

// storable returns r with its text fields as valid UTF-8, the form they take
// after being written and read back. Hashing and holding results in this form
// keeps a reloaded snapshot identical to the one that was saved.
func storable(r catalog.CheckResult) catalog.CheckResult {
	r.Name = catalog.ValidText(r.Name)
	r.URL = catalog.ValidText(r.URL)
	r.Category = catalog.ValidText(r.Category)
	r.Detail = catalog.ValidText(r.Detail)
	return r
}

// PersistError reports a failed checkpoint write with the location it targeted.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("checkpoint persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
