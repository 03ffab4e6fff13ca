package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskboard/internal/logx"
	"taskboard/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Partial unique indexes gorm tags cannot express. They back the
// one-instance-per-due-date guarantee of recurring series.
var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tasks_group_due
		ON tasks (recurring_group_id, due_date)
		WHERE parent_task_id IS NULL AND recurring_group_id IS NOT NULL AND due_date IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_tasks_parent_source
		ON tasks (parent_task_id, source_task_id)
		WHERE parent_task_id IS NOT NULL AND source_task_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS ix_events_redrive ON completion_events (status, created_at)`,
}

// NewDB opens a SQLite database and runs migrations.
func NewDB(dsn string, log logx.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "taskboard.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.With(logx.String("component", "gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withBusyTimeout(dsn)), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows a single writer; one connection avoids "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.User{},
		&model.Board{},
		&model.StatusOption{},
		&model.Task{},
		&model.TaskAssignee{},
		&model.CompletionEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return db, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
