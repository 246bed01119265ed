package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

var gooseUp = goose.UpContext // mockable

// Migrate applies the embedded migrations that goose has not recorded yet.
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(gooseLogger{logger.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := gooseUp(ctx, db.DB, migrationsDir); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zap; Fatalf must not exit the API.
type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
