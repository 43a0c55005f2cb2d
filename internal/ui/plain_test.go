package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_RecordLines(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: 250 records of one catalog are reported
	r.UpdateProgress(ProgressEvent{Stage: StageCatalogs, Catalogs: 1})
	for i := 1; i <= 250; i++ {
		r.UpdateProgress(ProgressEvent{
			Stage: StageRecords, Catalog: "main", CatalogIndex: 1, Catalogs: 1,
			Current: i, Total: 250, Key: "rec:main",
		})
	}

	// Then: only the first, every hundredth and the last are printed
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "[CATALOG] 1 catalogs", lines[0])
	assert.Equal(t, "[INDEX] main (1/1) 1/250 - rec:main", lines[1])
	assert.Contains(t, lines[2], "100/250")
	assert.Contains(t, lines[3], "200/250")
	assert.Contains(t, lines[4], "250/250")
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering every stage
	for _, stage := range []Stage{StageCatalogs, StageRecords, StagePromote, StageComplete} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Current: 1, Total: 1, Message: "working"})
	}
	r.AddError(ErrorEvent{Key: "a:main", Err: errors.New("boom")})

	// Then: output contains no ANSI escape codes
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{"warning with key", ErrorEvent{Key: "a:main", Err: errors.New("bad"), IsWarn: true}, "WARN: a:main: bad\n"},
		{"error without key", ErrorEvent{Err: errors.New("disk full")}, "ERROR: disk full\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.AddError(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with failures
	r.Complete(CompletionStats{Service: "main", Catalogs: 2, Indexed: 40, Failed: 3, Duration: 1234 * time.Millisecond})

	// Then: the summary names the counts
	assert.Equal(t, "Complete: main: 40 records from 2 catalogs indexed in 1.2s (3 failed)\n", buf.String())
	assert.NoError(t, r.Stop())
}
