// Package backup creates verified point-in-time snapshots of the evermem
// SQLite database. Snapshots use VACUUM INTO, which is consistent under
// WAL mode, and are verified with an integrity check before they count.
//
// Postgres deployments are expected to use the database's own tooling;
// this package is for the embedded engine only.
package backup

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Info describes one snapshot on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Snapshot writes a verified snapshot of the database at sourcePath into
// backupDir, creating the directory if needed. A snapshot that fails
// verification is removed and an error returned.
func Snapshot(sourcePath, backupDir string) (*Info, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now().UTC()
	destPath := filepath.Join(backupDir, fmt.Sprintf("evermem-%s.db", now.Format("20060102-150405")))

	if err := vacuumInto(sourcePath, destPath); err != nil {
		return nil, err
	}

	if err := verify(destPath); err != nil {
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("snapshot failed verification: %w", err)
	}

	stat, err := os.Stat(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	log.Printf("backup: wrote %s (%d bytes)", destPath, stat.Size())
	return &Info{Path: destPath, Timestamp: now, Size: stat.Size()}, nil
}

// List returns the snapshots in backupDir, newest first.
func List(backupDir string) ([]Info, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(backupDir, entry.Name()),
			Timestamp: stat.ModTime(),
			Size:      stat.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Prune deletes all but the keep newest snapshots and returns how many
// were removed. keep < 1 is an error; pruning everything is never what a
// maintenance job means.
func Prune(backupDir string, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	backups, err := List(backupDir)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", b.Path, err)
		}
		removed++
	}

	log.Printf("backup: pruned %d snapshots, kept %d", removed, keep)
	return removed, nil
}

// vacuumInto copies the database with VACUUM INTO over a read-only
// connection, so the live writer is never blocked.
func vacuumInto(sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// verify runs SQLite's integrity check against a snapshot.
func verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}
