package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files
	BackupSuffix = ".bak"
)

// Backup creates a timestamped copy of the config file at path and returns
// the backup path. A missing file is not an error: nothing is backed up and
// the returned path is empty.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := cleanupOldBackups(path); err != nil {
		slog.Warn("config_backup_cleanup_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return backupPath, nil
}

// ListBackups returns the backups of the config file at path, newest first.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	prefix := filepath.Base(path) + BackupSuffix + "."
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	// timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, keeping the newest.
func cleanupOldBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	if len(backups) <= MaxBackups {
		return nil
	}
	for _, backup := range backups[MaxBackups:] {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Restore replaces the config file at path with backupPath. The current
// file, if any, is backed up first.
func Restore(path, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if _, err := Backup(path); err != nil {
		return fmt.Errorf("failed to backup current config before restore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}
