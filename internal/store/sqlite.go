package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/models"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS pending_operations (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	method      TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	payload     TEXT,
	created_at  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	priority    INTEGER NOT NULL DEFAULT 5,
	entity_id   TEXT,
	entity_type TEXT
);`

const createIndexStmt = `
CREATE INDEX IF NOT EXISTS idx_pending_operations_order
	ON pending_operations(priority, created_at);`

// Columns added after the first release. ALTER TABLE keeps databases written
// by older builds readable; reads coalesce the resulting NULLs to the queue
// defaults (attempts=0, priority=5).
var evolvedColumns = []struct{ name, ddl string }{
	{"attempts", "ALTER TABLE pending_operations ADD COLUMN attempts INTEGER"},
	{"priority", "ALTER TABLE pending_operations ADD COLUMN priority INTEGER"},
	{"entity_id", "ALTER TABLE pending_operations ADD COLUMN entity_id TEXT"},
	{"entity_type", "ALTER TABLE pending_operations ADD COLUMN entity_type TEXT"},
}

var _ Store = (*SQLite)(nil)

// SQLite is the durable Store used on devices. A single write connection
// serializes writers so a pass can hold Replace/Remove while producers Append.
type SQLite struct {
	db *sql.DB

	// Prepared statement cache; statements are prepared on first use.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// OpenSQLite opens (or creates) the queue database under dataDir.
// The database is opened with:
// - WAL mode for concurrent reads during a sync pass
// - foreign key constraints enabled
// - a busy timeout instead of immediate SQLITE_BUSY failures
func OpenSQLite(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "writeback.db")

	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to open database", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to configure database", err)
		}
	}

	if _, err := db.Exec(createTableStmt); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to create schema", err)
	}
	if err := ensureColumns(db); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to evolve schema", err)
	}
	if _, err := db.Exec(createIndexStmt); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to create index", err)
	}

	return &SQLite{db: db}, nil
}

// ensureColumns adds columns that predate the current schema to tables
// created by older builds.
func ensureColumns(db *sql.DB) error {
	rows, err := db.Query("PRAGMA table_info(pending_operations)")
	if err != nil {
		return err
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range evolvedColumns {
		if have[col.name] {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			return err
		}
	}
	return nil
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *SQLite) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}

	// If another goroutine prepared this first, close our duplicate.
	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Append persists a new pending operation.
func (s *SQLite) Append(ctx context.Context, op *models.Operation) error {
	query := `
	INSERT INTO pending_operations (id, kind, method, endpoint, payload,
		created_at, attempts, priority, entity_id, entity_type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to prepare append", err)
	}

	_, err = stmt.ExecContext(ctx, op.ID, string(op.Kind), op.Method, op.Endpoint,
		nullableBytes(op.Payload), op.CreatedAt, op.Attempts, op.Priority,
		nullableString(op.EntityID), nullableString(op.EntityType))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to append operation", err)
	}
	return nil
}

// List returns every pending operation in created_at-then-insertion order.
// NULL attempts or priority from older schemas coalesce to the queue defaults.
func (s *SQLite) List(ctx context.Context) ([]*models.Operation, error) {
	query := `
	SELECT id, kind, method, endpoint, payload,
		created_at, COALESCE(attempts, 0), COALESCE(priority, 5),
		entity_id, entity_type
	FROM pending_operations
	ORDER BY created_at ASC, rowid ASC
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to prepare list", err)
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to list operations", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		var op models.Operation
		var kind string
		var payload []byte
		var entityID, entityType sql.NullString
		err := rows.Scan(&op.ID, &kind, &op.Method, &op.Endpoint, &payload,
			&op.CreatedAt, &op.Attempts, &op.Priority, &entityID, &entityType)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to scan operation", err)
		}
		op.Kind = models.Kind(kind)
		if len(payload) > 0 {
			op.Payload = append([]byte(nil), payload...)
		}
		if entityID.Valid {
			op.EntityID = entityID.String
		}
		if entityType.Valid {
			op.EntityType = entityType.String
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to iterate operations", err)
	}
	return ops, nil
}

// Remove deletes the operation with the given id. Absent ids are a no-op.
func (s *SQLite) Remove(ctx context.Context, id string) error {
	stmt, err := s.prepareStmt("DELETE FROM pending_operations WHERE id = ?")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to prepare remove", err)
	}
	if _, err := stmt.ExecContext(ctx, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to remove operation", err)
	}
	return nil
}

// Replace upserts the operation keyed by its id. Persisting an incremented
// attempt counter after a failed replay is the main use.
func (s *SQLite) Replace(ctx context.Context, op *models.Operation) error {
	query := `
	INSERT INTO pending_operations (id, kind, method, endpoint, payload,
		created_at, attempts, priority, entity_id, entity_type)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		method = excluded.method,
		endpoint = excluded.endpoint,
		payload = excluded.payload,
		created_at = excluded.created_at,
		attempts = excluded.attempts,
		priority = excluded.priority,
		entity_id = excluded.entity_id,
		entity_type = excluded.entity_type
	`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to prepare replace", err)
	}

	_, err = stmt.ExecContext(ctx, op.ID, string(op.Kind), op.Method, op.Endpoint,
		nullableBytes(op.Payload), op.CreatedAt, op.Attempts, op.Priority,
		nullableString(op.EntityID), nullableString(op.EntityType))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to replace operation", err)
	}
	return nil
}

// Count returns the number of pending operations.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	stmt, err := s.prepareStmt("SELECT COUNT(*) FROM pending_operations")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, "failed to prepare count", err)
	}

	var n int
	if err := stmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, "failed to count operations", err)
	}
	return n, nil
}

// Close releases cached statements and the underlying connection.
func (s *SQLite) Close() error {
	s.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		return true
	})
	if err := s.db.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to close database", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
