package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.constellation/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".constellation", "logs")
	}
	return filepath.Join(home, ".constellation", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile returns explicit when it exists, else the default log path
// when that exists.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found at %s; run `constellation serve` first", path)
	}
	return path, nil
}
