// Package embedded implements the graph backend contract on top of an
// embedded SQLite engine. Every knowledge base maps to its own database
// directory, created lazily on first access; isolation between tenants
// is isolation between files.
package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"memexia-backend/application/ports"
	apperrors "memexia-backend/pkg/errors"
)

const dbFileName = "graph.db"

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Backend is the embedded, file-per-tenant graph backend. Open database
// handles are cached for the process lifetime because the engine allows
// only one active writer per database file.
type Backend struct {
	basePath string
	logger   *zap.Logger

	mu     sync.Mutex
	dbs    map[string]*sql.DB
	closed bool

	group singleflight.Group
}

// New creates an embedded backend rooted at basePath. Call Initialize
// before use.
func New(basePath string, logger *zap.Logger) *Backend {
	return &Backend{
		basePath: basePath,
		logger:   logger,
		dbs:      make(map[string]*sql.DB),
	}
}

// Initialize creates the base directory. Idempotent.
func (b *Backend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.Unavailable("embedded backend is closed")
	}

	if err := os.MkdirAll(b.basePath, 0o755); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("create base directory %s", b.basePath), err)
	}

	b.logger.Info("embedded backend initialized", zap.String("base_path", b.basePath))
	return nil
}

// Close closes every cached database handle. Safe to call multiple
// times; subsequent operations fail with an unavailability error.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	for name, db := range b.dbs {
		if err := db.Close(); err != nil {
			b.logger.Warn("closing database", zap.String("db", name), zap.Error(err))
		}
	}
	b.dbs = make(map[string]*sql.DB)
	b.closed = true

	b.logger.Info("embedded backend closed")
	return nil
}

// WithSession runs fn with a session bound to the knowledge base,
// provisioning its database on first access.
func (b *Backend) WithSession(ctx context.Context, kbID string, fn func(ports.Session) error) error {
	db, err := b.dbForKB(ctx, kbID)
	if err != nil {
		return err
	}

	return fn(&session{db: db, kbID: kbID, logger: b.logger})
}

// DeleteKBData closes the cached handle, evicts it, and removes the
// knowledge base's directory from disk. Not recoverable.
func (b *Backend) DeleteKBData(ctx context.Context, kbID string) (bool, error) {
	dbName := dbNameForKB(kbID)
	dbPath := filepath.Join(b.basePath, dbName)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false, apperrors.Unavailable("embedded backend is closed")
	}
	if db, ok := b.dbs[dbName]; ok {
		if err := db.Close(); err != nil {
			b.logger.Warn("closing database before teardown", zap.String("db", dbName), zap.Error(err))
		}
		delete(b.dbs, dbName)
	}
	b.mu.Unlock()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.RemoveAll(dbPath); err != nil {
		return false, apperrors.Database(fmt.Sprintf("remove database directory for %s", kbID), err)
	}

	b.logger.Info("deleted knowledge base database", zap.String("kb_id", kbID))
	return true, nil
}

// dbForKB returns the cached handle for the knowledge base, opening and
// provisioning the database on first access. Concurrent first accesses
// for the same knowledge base are collapsed into one open.
func (b *Backend) dbForKB(ctx context.Context, kbID string) (*sql.DB, error) {
	dbName := dbNameForKB(kbID)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperrors.Unavailable("embedded backend is closed")
	}
	if db, ok := b.dbs[dbName]; ok {
		b.mu.Unlock()
		return db, nil
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do(dbName, func() (interface{}, error) {
		// Re-check under the lock: a racing caller may have won.
		b.mu.Lock()
		if db, ok := b.dbs[dbName]; ok {
			b.mu.Unlock()
			return db, nil
		}
		b.mu.Unlock()

		db, err := b.openDB(kbID, dbName)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			db.Close()
			return nil, apperrors.Unavailable("embedded backend is closed")
		}
		b.dbs[dbName] = db
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (b *Backend) openDB(kbID, dbName string) (*sql.DB, error) {
	dir := filepath.Join(b.basePath, dbName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Provisioning(fmt.Sprintf("create database directory for %s", kbID), err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, apperrors.Provisioning(fmt.Sprintf("open database for %s", kbID), err)
	}

	// The engine supports one active connection per database file.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, apperrors.Provisioning(fmt.Sprintf("initialize schema for %s", kbID), err)
	}

	b.logger.Info("created embedded database", zap.String("kb_id", kbID), zap.String("db", dbName))
	return db, nil
}

// initSchema creates the node and edge tables if they don't exist.
// Edge identity is (source, target): re-creating an edge between the
// same endpoints overwrites relation_type and weight.
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		node_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		relation_type TEXT NOT NULL,
		weight INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, target_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`

	_, err := db.Exec(schema)
	return err
}

// dbNameForKB converts a knowledge base id to a directory name that
// satisfies the engine's identifier rules.
func dbNameForKB(kbID string) string {
	return "kb_" + unsafeNameChars.ReplaceAllString(kbID, "_")
}
