package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/snapetech/streamcheck/internal/catalog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoint_meta (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	version      INTEGER NOT NULL,
	run_id       TEXT NOT NULL,
	saved_at     TEXT NOT NULL,
	checksum     TEXT NOT NULL,
	result_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoint_results (
	ord     INTEGER PRIMARY KEY,
	url     TEXT NOT NULL UNIQUE,
	payload TEXT NOT NULL
);`

// SQLiteStore keeps the snapshot in a SQLite database. Results are
// append-only within a run, so each Save inserts only rows added since the
// previous one; meta and new rows commit in one transaction.
type SQLiteStore struct {
	path string

	mu      sync.Mutex
	db      *sql.DB
	runID   string
	written int
}

// OpenSQLite opens or creates the database at path. A file that is not a
// usable SQLite database is moved aside to path+".corrupt" and replaced.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("checkpoint sqlite %s: mkdir: %w", path, err)
	}
	db, err := openSQLiteDB(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, err
		}
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			return nil, fmt.Errorf("%w (quarantine failed: %v)", err, renameErr)
		}
		removeSidecars(path)
		if db, err = openSQLiteDB(path); err != nil {
			return nil, err
		}
	}
	return &SQLiteStore{path: path, db: db}, nil
}

// OpenSQLiteReadOnly opens an existing database for inspection. Nothing is
// created, migrated or quarantined; a damaged file surfaces as ErrCorrupt
// from Load.
func OpenSQLiteReadOnly(path string) (*SQLiteStore, error) {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("checkpoint sqlite %s: %w", path, err)
	}
	dsn := "file:" + (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath() + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite %s: open: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{path: path, db: db}, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite %s: open: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=FULL`,
		`PRAGMA busy_timeout=5000`,
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("checkpoint sqlite %s: init: %w", path, err)
		}
	}
	return db, nil
}

func (s *SQLiteStore) Location() string { return s.path }

func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, nil
	}
	var (
		st      State
		savedAt string
		count   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, run_id, saved_at, checksum, result_count FROM checkpoint_meta WHERE id = 1`,
	).Scan(&st.Version, &st.RunID, &savedAt, &st.Checksum, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read meta: %v", ErrCorrupt, err)
	}
	if st.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("%w: saved_at: %v", ErrCorrupt, err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM checkpoint_results ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("%w: read results: %v", ErrCorrupt, err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ErrCorrupt, err)
		}
		var r catalog.CheckResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", ErrCorrupt, err)
		}
		st.Results = append(st.Results, r)
		st.Processed = append(st.Processed, r.URL)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read results: %v", ErrCorrupt, err)
	}
	if len(st.Results) != count {
		return nil, fmt.Errorf("%w: %d result rows, meta says %d", ErrCorrupt, len(st.Results), count)
	}
	s.runID, s.written = st.RunID, len(st.Results)
	return &st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("store removed")
	}
	from := s.written
	if st.RunID != s.runID || len(st.Results) < from {
		from = 0
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if from == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_results`); err != nil {
			return err
		}
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO checkpoint_results (ord, url, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for i := from; i < len(st.Results); i++ {
		payload, err := json.Marshal(st.Results[i])
		if err != nil {
			return err
		}
		if _, err := ins.ExecContext(ctx, i, st.Results[i].URL, string(payload)); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO checkpoint_meta (id, version, run_id, saved_at, checksum, result_count)
		VALUES (1, ?, ?, ?, ?, ?)`,
		st.Version, st.RunID, st.SavedAt.UTC().Format(time.RFC3339Nano), st.Checksum, len(st.Results))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.runID, s.written = st.RunID, len(st.Results)
	return nil
}

// Remove closes the database and deletes its files.
func (s *SQLiteStore) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.written = 0
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	removeSidecars(s.path)
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func removeSidecars(path string) {
	os.Remove(path + "-wal")
	os.Remove(path + "-shm")
}
