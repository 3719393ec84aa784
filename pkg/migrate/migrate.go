package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

// SourceDir is where new migrations are written during development.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Files returns the migrations compiled into the binary, or the ones in dir
// when dir is set.
func Files(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "migrations")
}

// The SQL targets postgres (enum types, jsonb, partial indexes).
func provider(db *sql.DB, files fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, nil
}

// Run executes up, down, or status.
func Run(ctx context.Context, db *sql.DB, files fs.FS, command string, logg *logger.Logger) error {
	p, err := provider(db, files)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		results, err := p.Up(ctx)
		logResults(ctx, logg, results...)
		return wrapGoose("up", err)
	case "down":
		result, err := p.Down(ctx)
		if result != nil {
			logResults(ctx, logg, result)
		}
		return wrapGoose("down", err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return wrapGoose("status", err)
		}
		for _, st := range statuses {
			fields := map[string]any{"version": st.Source.Version, "state": string(st.State)}
			if !st.AppliedAt.IsZero() {
				fields["applied_at"] = st.AppliedAt
			}
			logg.Info(logg.WithFields(ctx, fields), "migrate.status")
		}
		return nil
	}
	return fmt.Errorf("unsupported goose command %q", command)
}

// MigrateToVersion moves the schema up or down until it sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, files fs.FS, target string, logg *logger.Logger) error {
	version, err := ParseVersion(target)
	if err != nil {
		return err
	}
	p, err := provider(db, files)
	if err != nil {
		return err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return wrapGoose("version", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil
	case current < version:
		results, err = p.UpTo(ctx, version)
	default:
		results, err = p.DownTo(ctx, version)
	}
	logResults(ctx, logg, results...)
	return wrapGoose(fmt.Sprintf("migrate to %d", version), err)
}

// ParseVersion validates a YYYYMMDDHHMMSS migration version.
func ParseVersion(value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if len(value) != 14 || err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	return v, nil
}

func logResults(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		entry := logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			logg.Error(entry, "migrate.step_failed", res.Error)
			continue
		}
		logg.Info(entry, "migrate.applied")
	}
}

func wrapGoose(op string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
