package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/pkg/version"
)

func runVersion(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// When: executing without flags
	out := runVersion(t)

	// Then: the build line is followed by the negotiated versions
	assert.Contains(t, out, "constellation "+version.Version)
	assert.Contains(t, out, "commit")
	assert.Contains(t, out, "CSW   2.0.2, 2.0.0")
	assert.Contains(t, out, "WMTS  1.0.0")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	assert.Equal(t, version.Version, strings.TrimSpace(runVersion(t, "--short")))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// When: executing with --json
	out := runVersion(t, "--json")

	// Then: build fields and protocols are present
	var info struct {
		Version   string                         `json:"version"`
		GoVersion string                         `json:"go_version"`
		Protocols map[ows.Specification][]string `json:"protocols"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, []string{"2.0.0", "1.0.0"}, info.Protocols[ows.SOS])
	assert.Len(t, info.Protocols, len(ows.Specifications()))
}
