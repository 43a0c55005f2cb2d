package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_ReportsReady(t *testing.T) {
	// Given: a configuration over an existing record directory
	env := newTestEnv(t)

	// When: running the checks
	out, err := env.run(t, "doctor")

	// Then: every check passes
	require.NoError(t, err)
	assert.Contains(t, out, "Constellation System Check")
	assert.Contains(t, out, "source_records: filesystem OK")
	assert.Contains(t, out, "Status: READY")
}

func TestDoctorCmd_JSONWarnsOnMissingSource(t *testing.T) {
	// Given: a record directory that has been removed
	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(filepath.Join(env.dir, "records")))

	// When: running the checks as JSON
	out, err := env.run(t, "doctor", "--json")

	// Then: the source check fails without failing the command
	require.NoError(t, err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ready_with_warnings", report.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "source_records")

	statuses := map[string]string{}
	for _, c := range report.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, "FAIL", statuses["source_records"])
	assert.Equal(t, "PASS", statuses["write_permissions"])
}

func TestDoctorCmd_UnwritableIndexDirFails(t *testing.T) {
	// Given: an index directory below a regular file
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "blocker"), nil, 0o644))
	cfg := strings.Replace(testConfig, "config_dir: indexes", "config_dir: blocker/indexes", 1)
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))

	// When: running the checks
	out, err := env.run(t, "doctor")

	// Then: the command fails on the critical check
	require.Error(t, err)
	assert.Contains(t, out, "write_permissions")
	assert.Contains(t, out, "Status: FAILED")
}
