package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const isoDoc = `id: %[1]s
title: %[2]s
class:
  standard: ISO 19115
  name: MD_Metadata
values:
  - id: MD_Metadata.1:fileIdentifier.1
    type: CharacterString
    text: %[1]s
  - id: MD_Metadata.1:identificationInfo.1:citation.1:title.1
    type: CharacterString
    text: %[2]s
`

const testConfig = `version: 1
config_dir: indexes
server:
  address: "127.0.0.1:0"
  log_level: info
sources:
  - name: records
    type: filesystem
    path: records
services:
  - specification: csw
    id: main
    versions: ["2.0.2"]
    source: records
  - specification: sos
    id: sensors
`

// testEnv is a configuration over a filesystem source in a temp dir.
type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	env := &testEnv{dir: t.TempDir()}
	env.config = filepath.Join(env.dir, "constellation.yaml")
	require.NoError(t, os.WriteFile(env.config, []byte(testConfig), 0o644))

	env.writeRecord(t, "marine", "r1", "Sea floor survey")
	env.writeRecord(t, "marine", "r2", "Tide gauges")
	return env
}

func (e *testEnv) writeRecord(t *testing.T, catalog, id, title string) string {
	t.Helper()
	path := filepath.Join(e.dir, "records", catalog, id+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(isoDoc, id, title)), 0o644))
	return path
}

// run executes the root command with --config pointing at the env.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", e.config}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
