// Package sqlite is a local RunStore backed by SQLite. It suits the CLI
// and single-instance deployments; production deployments plug their own
// stores into the ports.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/ports"
)

// Store implements ports.RunStore using SQLite in WAL mode.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	closeOnce sync.Once

	saveStmt       *sql.Stmt
	getStmt        *sql.Stmt
	findCachedStmt *sql.Stmt
	deleteStmt     *sql.Stmt
	countStmt      *sql.Stmt
}

var _ ports.RunStore = (*Store)(nil)

// Open opens (or creates) the run database described by cfg.
func Open(cfg config.RunStoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("run store path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = config.DefaultRunStoreBusyTimeout
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageError("open", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageError("open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: slog.Default().With("component", "runstore.sqlite"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, storageError("prepare", err)
	}

	s.logger.Info("run store opened",
		"path", cfg.Path,
		"busy_timeout", cfg.BusyTimeout,
	)
	return s, nil
}

// initSchema creates the tables and checks the schema version.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return storageError("create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return storageError("insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storageError("get_schema_version", err)
	}
	if version != SchemaVersion {
		return storageError("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO runs (id, tenant_id, version_id, input_hash, status, provider, cost_usd, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			provider = excluded.provider,
			cost_usd = excluded.cost_usd,
			payload = excluded.payload
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT payload FROM runs WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.findCachedStmt, err = s.db.Prepare(`
		SELECT payload FROM runs
		WHERE version_id = ? AND input_hash = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare find cached statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM runs WHERE created_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.countStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM runs`)
	if err != nil {
		return fmt.Errorf("failed to prepare count statement: %w", err)
	}

	return nil
}

// Save persists a run, replacing any run with the same ID.
func (s *Store) Save(ctx context.Context, run *ports.Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	payload, err := encodeRun(run)
	if err != nil {
		return storageError("encode", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		run.ID,
		run.TenantID,
		run.VersionID,
		run.InputHash,
		string(run.Status),
		run.Provider,
		run.Cost,
		run.CreatedAt.UnixNano(),
		payload,
	)
	if err != nil {
		return storageError("save", err)
	}

	s.logger.Debug("run saved",
		"run_id", run.ID,
		"status", run.Status,
		"payload_bytes", len(payload),
	)
	return nil
}

// FindCached returns the newest successful run for the version and
// input hash, or nil, nil when none exists.
func (s *Store) FindCached(ctx context.Context, versionID, inputHash string) (*ports.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.findCachedStmt.QueryRowContext(ctx, versionID, inputHash, string(ports.RunStatusSucceeded)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("find_cached", err)
	}

	run, err := decodeRun(payload)
	if err != nil {
		return nil, storageError("decode", err)
	}
	return run, nil
}

// Get returns a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*ports.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.getStmt.QueryRowContext(ctx, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, storageError("get", err)
	}

	run, err := decodeRun(payload)
	if err != nil {
		return nil, storageError("decode", err)
	}
	return run, nil
}

// DeleteBefore removes runs created before cutoff and returns how many
// were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.deleteStmt.ExecContext(ctx, cutoff.UnixNano())
	if err != nil {
		return 0, storageError("delete", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("delete", err)
	}
	return deleted, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.countStmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, storageError("count", err)
	}
	return count, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

// Close closes the prepared statements and the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.getStmt, s.findCachedStmt, s.deleteStmt, s.countStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
		s.logger.Debug("run store closed", "path", s.path)
	})
	return err
}
