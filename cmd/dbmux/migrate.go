package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BaSui01/dbmux/internal/migration"
)

// =============================================================================
// 🗃️ migrate 命令
// =============================================================================

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  dbmux migrate <subcommand> [options] [arg]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  goto <v>  Migrate to a specific version
  force <v> Force set migration version (use with caution)
  reset     Rollback all migrations

Options:
  --config <path>   Path to configuration file (YAML)
  --dir <path>      Directory holding NNNNNN_name.up.sql / .down.sql files

Examples:
  dbmux migrate up --dir ./migrations
  dbmux migrate status --dir ./migrations --config /etc/dbmux/config.yaml
  dbmux migrate goto --dir ./migrations 3`)
}

func runMigrate(args []string) error {
	if len(args) < 1 {
		printMigrateUsage()
		return fmt.Errorf("missing migrate subcommand")
	}
	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage()
		return nil
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "migrations", "Migrations directory")
	fs.Parse(args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	// 迁移使用独立的 *sql.DB，Close 时由迁移器一并关闭
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.Write[0])
	if err != nil {
		return fmt.Errorf("open write target: %w", err)
	}
	m, err := migration.NewMigratorFromDir(db, cfg.Database.Driver, *dir, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	ctx, stop := signalContext()
	defer stop()

	return migrateCommand(ctx, os.Stdout, m, sub, fs.Args())
}

// migrateCommand 分派迁移子命令
func migrateCommand(ctx context.Context, w io.Writer, m migration.Migrator, sub string, rest []string) error {
	switch sub {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "reset":
		return m.DownAll(ctx)
	case "goto":
		v, err := versionArg(rest)
		if err != nil {
			return err
		}
		return m.Goto(ctx, uint(v))
	case "force":
		v, err := versionArg(rest)
		if err != nil {
			return err
		}
		return m.Force(ctx, v)
	case "version":
		version, dirty, err := m.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "version %d (dirty: %t)\n", version, dirty)
		return nil
	case "status":
		info, err := m.Info(ctx)
		if err != nil {
			return err
		}
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Info       *migration.MigrationInfo    `json:"info"`
			Migrations []migration.MigrationStatus `json:"migrations"`
		}{info, statuses})
	default:
		printMigrateUsage()
		return fmt.Errorf("unknown migrate subcommand: %s", sub)
	}
}

func versionArg(rest []string) (int, error) {
	if len(rest) != 1 {
		return 0, fmt.Errorf("expected exactly one version argument")
	}
	v, err := strconv.Atoi(rest[0])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", rest[0])
	}
	return v, nil
}
