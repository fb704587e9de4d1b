package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"

	dialect = "postgres"
)

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// Embedded exposes the migrations compiled into the binary, rooted at the
// migrations directory.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// withGoose configures goose for one call. A nil fsys reads dir from disk.
func withGoose(fsys fs.FS, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	return fn()
}

// Run executes a goose command against the migration files in dir.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return withGoose(nil, func() error {
		if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// RunEmbedded runs a goose command against the migrations bundled in the binary.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	return withGoose(Embedded(), func() error {
		if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
			return fmt.Errorf("goose %s (embedded): %w", command, err)
		}
		return nil
	})
}

// PendingEmbedded reports how many bundled migrations are newer than the
// database version.
func PendingEmbedded(db *sql.DB) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("db is required")
	}
	var pending int
	err := withGoose(Embedded(), func() error {
		current, err := goose.EnsureDBVersion(db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		migrations, err := goose.CollectMigrations(".", current+1, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("collect migrations: %w", err)
		}
		pending = len(migrations)
		return nil
	})
	return pending, err
}

// MigrateToVersion migrates up or down from the current database version to
// targetVersion using the files in dir.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	return withGoose(nil, func() error {
		current, err := goose.GetDBVersion(db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current == target:
			return nil
		case current < target:
			if err := goose.UpToContext(ctx, db, dir, target); err != nil {
				return fmt.Errorf("goose up-to %d: %w", target, err)
			}
		default:
			if err := goose.DownToContext(ctx, db, dir, target); err != nil {
				return fmt.Errorf("goose down-to %d: %w", target, err)
			}
		}
		return nil
	})
}
