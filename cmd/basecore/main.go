// Command basecore runs administrative operations against the metadata
// store: schema migration, declarative configuration, and audit chain
// verification.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"basecore/internal/app"
	"basecore/internal/config"
	internaldb "basecore/internal/db"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command>

Commands:
  migrate   apply pending schema migrations and exit
  apply     apply declarative configuration from DECLARATIVE_DIR
  verify    walk the audit chain and verify every checksum and link
`, os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	if err := run(os.Args[1], cfg, logger); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(command string, cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if command == "migrate" {
		logger.Info("migrations applied", "path", cfg.MetaDBPath)
		return nil
	}

	a, err := app.New(ctx, app.Deps{Cfg: cfg, WriteDB: writeDB, ReadDB: readDB, Logger: logger})
	if err != nil {
		return err
	}

	switch command {
	case "apply":
		// app.New already applied DECLARATIVE_DIR when configured.
		if cfg.DeclarativeDir == "" {
			return fmt.Errorf("DECLARATIVE_DIR is not set")
		}
		logger.Info("declarative configuration applied", "dir", cfg.DeclarativeDir)
		return nil
	case "verify":
		result, err := a.Services.Audit.Verify(ctx)
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("chain broken at entry %s: %s (%d entries checked)",
				result.BrokenAt, result.Reason, result.Entries)
		}
		logger.Info("audit chain verified", "entries", result.Entries)
		return nil
	default:
		usage()
		return nil
	}
}
