package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the embedded set ("+migrate.SourceDir+" for create and validate)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// create and validate only touch the filesystem
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.CreateSQLMigration(sourceDir(opts.dir), opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		versions, err := migrate.Validate(os.DirFS(sourceDir(opts.dir)))
		if err != nil {
			return err
		}
		fmt.Printf("migration validation passed (%d files: %s)\n", len(versions), strings.Join(versions, ", "))
		return nil
	case "up", "down", "status":
	case "version":
		if opts.version == "" {
			return errors.New("missing -version")
		}
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	files, err := migrate.Files(opts.dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DB.IsSQLite() {
		return errors.New("goose migrations target postgres; sqlite uses MARKETPLACE_AUTO_MIGRATE")
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]any{"env": cfg.App.Env},
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": sourceLabel(opts.dir)})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.SQLDB()
	if err != nil {
		return err
	}

	logg.Info(ctx, "migrate.start")
	if opts.cmd == "version" {
		err = migrate.MigrateToVersion(ctx, sqlDB, files, opts.version, logg)
	} else {
		err = migrate.Run(ctx, sqlDB, files, opts.cmd, logg)
	}
	if err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

func sourceDir(dir string) string {
	if dir == "" {
		return migrate.SourceDir
	}
	return dir
}

func sourceLabel(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}
