package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/deusflow/docassist/internal/logger"
)

// NewSQLite opens (or creates) a SQLite database at path. ":memory:" gives
// a private in-process database.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		path = "docassist.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	store, err := newSQLStore(ctx, db, "sqlite", false)
	if err != nil {
		return nil, err
	}

	logger.Info("SQLite storage opened", "path", path)
	return store, nil
}
