// Command evermem-sweeper prunes decayed micro-memories. It runs a
// single sweep by default, or loops on an interval with -daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/evermem/evermem/internal/backup"
	"github.com/evermem/evermem/internal/config"
	"github.com/evermem/evermem/internal/engine"
	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/internal/storage/postgres"
	"github.com/evermem/evermem/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to config file (optional, uses env vars by default)")
	userID     = flag.String("user", "", "Sweep a single user and exit (overrides -daemon)")
	daemon     = flag.Bool("daemon", false, "Keep sweeping on the configured interval")
	interval   = flag.Duration("interval", 0, "Sweep interval for -daemon (overrides config)")
	backupDir  = flag.String("backup-dir", "", "Snapshot the sqlite database into this directory and exit")
	backupKeep = flag.Int("backup-keep", 7, "Number of snapshots to keep when using -backup-dir")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *backupDir != "" {
		runBackup(cfg)
		return
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Engine, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("ERROR: closing store: %v", err)
		}
	}()

	engineCfg := engine.DefaultConfig()
	engineCfg.HalfLifeDays = cfg.Memory.HalfLifeDays
	engineCfg.EvictionFloor = cfg.Memory.EvictionFloor
	sweeper := engine.NewSweeper(store, engineCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *userID != "":
		pruned, err := sweeper.Sweep(ctx, *userID)
		if err != nil {
			log.Fatalf("Sweep failed for user %s: %v", *userID, err)
		}
		fmt.Printf("pruned %d expired memories for user %s\n", pruned, *userID)

	case *daemon:
		every := cfg.Sweeper.Interval
		if *interval > 0 {
			every = *interval
		}
		log.Printf("sweep: running every %s (half-life %.1fd, floor %.1f)",
			every, engineCfg.HalfLifeDays, engineCfg.EvictionFloor)
		if err := sweeper.Run(ctx, every); err != nil && ctx.Err() == nil {
			log.Fatalf("Sweeper stopped: %v", err)
		}
		log.Println("sweep: shutting down")

	default:
		start := time.Now()
		pruned, err := sweeper.SweepAll(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		fmt.Printf("pruned %d expired memories in %s\n", pruned, time.Since(start).Round(time.Millisecond))
	}
}

// runBackup snapshots the sqlite database and prunes old snapshots.
func runBackup(cfg *config.Config) {
	if cfg.Storage.Engine != "sqlite" {
		log.Fatalf("Backup is only supported for the sqlite engine, got %s", cfg.Storage.Engine)
	}

	source := filepath.Join(cfg.Storage.DataPath, "evermem.db")
	info, err := backup.Snapshot(source, *backupDir)
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}

	if _, err := backup.Prune(*backupDir, *backupKeep); err != nil {
		log.Fatalf("Backup retention failed: %v", err)
	}

	fmt.Printf("snapshot written to %s (%d bytes)\n", info.Path, info.Size)
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	return config.Load()
}

// openStore opens the backend named by the config. The sqlite path lives
// under DataPath, created on first use.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "evermem.db"))
	}
}
