// Package sqlite persists the in-memory workflow state to an embedded SQLite
// file, snapshotting after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"assaycore/internal/infra/persistence/memory"
	"assaycore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	bucketWorkflows = "workflows"
	bucketAudit     = "audit"
)

// Store persists state to a single SQLite table as JSON buckets.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the SQLite file and hydrates the in-memory
// state from any existing snapshot.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "assaycore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		found = true
		switch bucket {
		case bucketWorkflows:
			if err := json.Unmarshal(payload, &snapshot.Workflows); err != nil {
				return fmt.Errorf("decode workflows: %w", err)
			}
		case bucketAudit:
			if err := json.Unmarshal(payload, &snapshot.Audit); err != nil {
				return fmt.Errorf("decode audit: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	buckets := map[string]any{
		bucketWorkflows: snapshot.Workflows,
		bucketAudit:     snapshot.Audit,
	}
	for bucket, value := range buckets {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.Exec(`INSERT INTO state(bucket, payload) VALUES(?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn via the in-memory store, then snapshots to
// SQLite on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
