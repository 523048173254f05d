// Package local implements the on-device index that backs a mirror. It keeps
// the mirrored objects and the index settings in an embedded SQLite database,
// one database per index directory.
//
// Builds are serialized against reads by a read/write lock held by the
// Engine, and an advisory lock file prevents two processes from owning the
// same directory.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stacklok/search-mirror/pkg/versions"
)

const (
	// FormatVersion is the on-disk format written by this engine.
	FormatVersion = "1.0.0"

	dbFileName   = "index.sqlite"
	lockFileName = ".lock"

	metaFormatVersion = "format_version"
	metaSettings      = "settings"
	metaBuiltAt       = "built_at"
)

// ErrLocked is returned by Open when another process owns the directory.
var ErrLocked = fmt.Errorf("local index directory is owned by another process: %w", errdefs.ErrConflict)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS objects (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id   TEXT NOT NULL UNIQUE,
	body        TEXT NOT NULL,
	search_text TEXT NOT NULL
);
`

// Response is the answer of a read operation: an HTTP-like status code and
// either a JSON payload or an error message.
type Response struct {
	StatusCode   int
	Data         json.RawMessage
	ErrorMessage string
}

// OK reports whether the response carries data.
func (r Response) OK() bool {
	return r.StatusCode == 200
}

// Engine is one local index. It is safe for concurrent use.
type Engine struct {
	dir  string
	db   *sql.DB
	lock *flock.Flock

	mu       sync.RWMutex
	settings *indexSettings
	builtAt  time.Time
	hasData  bool
}

// Open opens (creating if needed) the local index stored in dir.
func Open(ctx context.Context, dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}

	dsn := "file:" + filepath.Join(dir, dbFileName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	e := &Engine{dir: dir, db: db, lock: lock}
	if err := e.init(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return e, nil
}

func (e *Engine) init(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	meta, err := e.readMeta(ctx)
	if err != nil {
		return err
	}

	stored := meta[metaFormatVersion]
	if stored != "" && !versions.IsCompatible(stored, FormatVersion) {
		slog.WarnContext(ctx, "Local index format is not supported, data ignored until next build",
			"dir", e.dir, "stored", stored, "supported", FormatVersion)
		return nil
	}
	if stored != "" && versions.IsNewerVersion(FormatVersion, stored) {
		slog.DebugContext(ctx, "Local index uses an older format, rewritten on next build",
			"dir", e.dir, "stored", stored, "supported", FormatVersion)
	}

	if raw, ok := meta[metaSettings]; ok {
		settings, err := parseSettings([]byte(raw))
		if err != nil {
			slog.WarnContext(ctx, "Ignoring unreadable local index settings", "dir", e.dir, "error", err)
			return nil
		}
		e.settings = settings
	}
	if builtAt, ok := meta[metaBuiltAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
			e.builtAt = t
			e.hasData = e.settings != nil
		}
	}
	return nil
}

func (e *Engine) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to read index metadata: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// Dir returns the directory holding the index.
func (e *Engine) Dir() string {
	return e.dir
}

// HasOfflineData reports whether a build has completed successfully.
func (e *Engine) HasOfflineData() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasData
}

// LastBuild returns the completion time of the last successful build.
func (e *Engine) LastBuild() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builtAt
}

// ObjectCount returns the number of objects stored locally.
func (e *Engine) ObjectCount(ctx context.Context) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var n int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count objects: %w", err)
	}
	return n, nil
}

// Close releases the database and the directory lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return errors.Join(e.db.Close(), e.lock.Unlock())
}
