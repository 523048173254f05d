package local

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

var errBadInput = errors.New("bad input")

// Build loads the settings file and the object files into the index and
// returns an HTTP-like status: 200 on success, 400 for unreadable input and
// 500 for an engine failure.
//
// Each object file holds either a JSON array of objects or a browse page with
// a "hits" array. Objects are inserted in file order; an object whose ID is
// already present is kept as is, so clear must be set to replace the index
// content. deletedIDs are removed after the insertion.
func (e *Engine) Build(ctx context.Context, settingsPath string, objectPaths []string, clear bool, deletedIDs []string) int {
	start := time.Now()

	rawSettings, err := os.ReadFile(settingsPath) //nolint:gosec // path comes from the sync pipeline
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read settings file", "path", settingsPath, "error", err)
		return http.StatusBadRequest
	}
	settings, err := parseSettings(rawSettings)
	if err != nil {
		slog.ErrorContext(ctx, "Invalid settings file", "path", settingsPath, "error", err)
		return http.StatusBadRequest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	count, err := e.build(ctx, rawSettings, settings, objectPaths, clear, deletedIDs)
	if err != nil {
		slog.ErrorContext(ctx, "Local index build failed", "dir", e.dir, "error", err)
		if errors.Is(err, errBadInput) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}

	e.settings = settings
	e.builtAt = time.Now().UTC()
	e.hasData = true

	slog.DebugContext(ctx, "Local index built",
		"dir", e.dir,
		"objects", count,
		"files", len(objectPaths),
		"duration", time.Since(start))
	return http.StatusOK
}

func (e *Engine) build(
	ctx context.Context,
	rawSettings []byte,
	settings *indexSettings,
	objectPaths []string,
	clear bool,
	deletedIDs []string,
) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
			return 0, fmt.Errorf("failed to clear objects: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO objects (object_id, body, search_text) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	count := 0
	for _, path := range objectPaths {
		objects, err := readObjectFile(path)
		if err != nil {
			return 0, err
		}
		for _, raw := range objects {
			obj, err := decodeObject(raw)
			if err != nil {
				return 0, fmt.Errorf("%s: %w: %w", path, errBadInput, err)
			}
			if _, err := stmt.ExecContext(ctx, obj.id, string(raw), settings.searchText(raw)); err != nil {
				return 0, fmt.Errorf("failed to insert object %q: %w", obj.id, err)
			}
			count++
		}
	}

	for _, id := range deletedIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE object_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete object %q: %w", id, err)
		}
	}

	if err := writeMeta(ctx, tx, map[string]string{
		metaFormatVersion: FormatVersion,
		metaSettings:      string(rawSettings),
		metaBuiltAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit build: %w", err)
	}
	return count, nil
}

func writeMeta(ctx context.Context, tx *sql.Tx, values map[string]string) error {
	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value); err != nil {
			return fmt.Errorf("failed to write metadata %q: %w", key, err)
		}
	}
	return nil
}

func readObjectFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the sync pipeline
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object file: %w", errBadInput, err)
	}

	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var objects []json.RawMessage
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errBadInput, path, err)
		}
		return objects, nil
	}

	var page struct {
		Hits []json.RawMessage `json:"hits"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errBadInput, path, err)
	}
	if page.Hits == nil {
		return nil, fmt.Errorf("%w: %s: no hits array", errBadInput, path)
	}
	return page.Hits, nil
}
