package cmd

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/ows"
)

func TestServicesCmd_ReportsEveryWorker(t *testing.T) {
	// Given: a catalog and a capabilities-only service
	env := newTestEnv(t)

	// When: listing services as JSON
	out, err := env.run(t, "services", "--json")

	// Then: both workers are started
	require.NoError(t, err)
	var status []ows.WorkerStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status, 2)
	assert.Equal(t, ows.CSW, status[0].Specification)
	assert.Equal(t, "main", status[0].ID)
	assert.Equal(t, "started", status[0].State)
	assert.Equal(t, []string{"2.0.2"}, status[0].Versions)
	assert.Equal(t, ows.SOS, status[1].Specification)
	assert.Equal(t, "started", status[1].State)
}

func TestServicesCmd_FailedServiceStaysListed(t *testing.T) {
	// Given: a service with a missing context file
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte(testConfig+"    context_file: missing.yaml\n"), 0o644))

	// When: listing services
	out, err := env.run(t, "services")

	// Then: the failing worker is reported in the error state
	require.NoError(t, err)
	assert.Contains(t, out, "sensors")
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "started")
}
