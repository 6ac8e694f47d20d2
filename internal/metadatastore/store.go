// Package metadatastore is the embedded relational store described in
// component A: collections, documents, chunks, conversations, messages,
// usage metrics, and encrypted settings, backed by SQLite in
// write-ahead-logging mode for single-writer/multi-reader concurrency.
package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"ragcore/internal/crypto"
)

// ErrNotFound is returned by repository lookups for a missing row. Callers
// at the API boundary translate it to apperr.NotFound.
var ErrNotFound = errors.New("metadatastore: not found")

// Store owns the single *sql.DB handle for the process and the per-writer
// mutex that serializes metadata-store writes per conversation/collection.
type Store struct {
	db *sql.DB

	mu          sync.Mutex
	convMutexes map[string]*sync.Mutex
	collMutexes map[string]*sync.Mutex

	cipher *crypto.Cipher
}

// Open creates the database file (and parent directories) if needed, enables
// write-ahead logging and foreign keys, and returns a Store. Open failures
// are fatal to the process per the component contract.
func Open(path string, passphrase string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("metadatastore: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("metadatastore: open: %w", err)
	}
	// The sqlite3 driver serializes writers internally; a single physical
	// connection avoids "database is locked" under WAL with concurrent Go
	// goroutines each holding their own *sql.Conn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("metadatastore: ping: %w", err)
	}

	s := &Store{
		db:          db,
		convMutexes: make(map[string]*sync.Mutex),
		collMutexes: make(map[string]*sync.Mutex),
	}

	if passphrase != "" {
		c, err := crypto.NewCipher(passphrase)
		if err != nil {
			return nil, fmt.Errorf("metadatastore: settings cipher: %w", err)
		}
		s.cipher = c
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying connection is still usable, for the
// component health checker (§4.J get_system_health/check_component_health).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithConnection runs fn with the shared *sql.DB, guaranteeing no resource
// is leaked on any exit path. Individual repositories still issue their own
// queries through *sql.DB's built-in connection pooling; WithConnection
// exists so callers that need an explicit transaction can get one uniformly.
func (s *Store) WithConnection(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("metadatastore: acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// WithTx runs fn inside a short transaction, rolling back on error or panic
// and committing otherwise. Metadata-store writes are never retried
// automatically; callers that need retries wrap at a higher layer.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadatastore: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// conversationLock returns the mutex serializing writes for one
// conversation, creating it on first use. Entries are never removed; the
// map stays small relative to process lifetime (bounded by distinct
// conversations touched, not by message volume).
func (s *Store) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.convMutexes[conversationID]
	if !ok {
		m = &sync.Mutex{}
		s.convMutexes[conversationID] = m
	}
	return m
}

// collectionLock returns the mutex serializing ingestion writes for one
// collection, per the §5 "per-collection ingestion serializes at the
// metadata-store write step" ordering guarantee.
func (s *Store) collectionLock(collectionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.collMutexes[collectionID]
	if !ok {
		m = &sync.Mutex{}
		s.collMutexes[collectionID] = m
	}
	return m
}
