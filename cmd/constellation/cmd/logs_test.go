package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLog = `{"time":"2026-10-19T10:00:00.000Z","level":"DEBUG","msg":"search_cache_hit","service":"main"}
{"time":"2026-10-19T10:00:01.000Z","level":"INFO","msg":"index_built","service":"main","indexed":2}
{"time":"2026-10-19T10:00:02.000Z","level":"WARN","msg":"record_index_failed","service":"other"}
`

func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(testLog), 0o644))
	return path
}

func TestLogsCmd_FiltersByLevel(t *testing.T) {
	// Given: a log with debug, info and warn entries
	path := writeTestLog(t)

	// When: showing info and above
	out, err := execute(t, "logs", "--file", path, "--level", "info")

	// Then: the debug entry is hidden
	require.NoError(t, err)
	assert.NotContains(t, out, "search_cache_hit")
	assert.Contains(t, out, "index_built")
	assert.Contains(t, out, "record_index_failed")
}

func TestLogsCmd_FiltersByService(t *testing.T) {
	path := writeTestLog(t)

	out, err := execute(t, "logs", "--file", path, "--service", "other")

	require.NoError(t, err)
	assert.Contains(t, out, "record_index_failed")
	assert.NotContains(t, out, "index_built")
}

func TestLogsCmd_LastLines(t *testing.T) {
	path := writeTestLog(t)

	out, err := execute(t, "logs", "--file", path, "-n", "1")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// the first line names the log file
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "record_index_failed")
}

func TestLogsCmd_InvalidPattern(t *testing.T) {
	path := writeTestLog(t)

	_, err := execute(t, "logs", "--file", path, "--filter", "(")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
