package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/ows"
)

func colorOf(c lipgloss.TerminalColor) string {
	if color, ok := c.(lipgloss.Color); ok {
		return string(color)
	}
	return ""
}

func TestStatusRenderer_RenderServices(t *testing.T) {
	// Given: one running and one failed worker
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering them
	require.NoError(t, r.RenderServices([]ows.WorkerStatus{
		{Specification: ows.CSW, ID: "main", State: "started", Versions: []string{"2.0.2", "2.0.0"}},
		{Specification: ows.SOS, ID: "sensors", State: "error", Error: "unsupported version 7.0.0"},
	}))

	// Then: each worker has a line and the failure is shown
	out := buf.String()
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "2.0.2, 2.0.0")
	assert.Contains(t, out, "sensors")
	assert.Contains(t, out, "unsupported version 7.0.0")
}

func TestStatusRenderer_RenderServices_Empty(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).RenderServices(nil))

	assert.Equal(t, "No services configured.\n", buf.String())
}

func TestStatusRenderer_RenderIndex(t *testing.T) {
	// Given: index status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering it
	require.NoError(t, r.RenderIndex(IndexStatus{
		Service:    "main",
		Path:       "/srv/indexes/mainindex",
		Documents:  42,
		Generation: 3,
		Size:       3 * 1024 * 1024,
		Modified:   time.Now().Add(-2 * time.Hour),
	}))

	// Then: all fields are shown
	out := buf.String()
	assert.Contains(t, out, "Index: main")
	assert.Contains(t, out, "Documents:  42")
	assert.Contains(t, out, "3.0 MB")
	assert.Contains(t, out, "2 hours ago")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON(IndexStatus{Service: "main", Documents: 7}))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "main", parsed["service"])
	assert.Equal(t, float64(7), parsed["documents"])
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute + time.Second, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour + time.Minute, "1 hour ago"},
		{3 * 24 * time.Hour, "3 days ago"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTime(time.Now().Add(-tt.ago)))
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}
