package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_FailsForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: it is refused
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestBuildModel_StageIndicators(t *testing.T) {
	// Given: a model before any record
	tracker := NewProgressTracker()
	model := newBuildModel(tracker, "main")
	model.styles = NoColorStyles()

	// When: rendering the initial view
	view := model.View()

	// Then: the pipeline and the service are shown
	assert.Contains(t, view, "Catalogs")
	assert.Contains(t, view, "Records")
	assert.Contains(t, view, "Promote")
	assert.Contains(t, view, "main")
}

func TestBuildModel_ProgressDisplay(t *testing.T) {
	// Given: a model halfway through a catalog
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{
		Stage: StageRecords, Catalog: "marine", CatalogIndex: 1, Catalogs: 3,
		Current: 50, Total: 100, Key: "north-sea:marine",
	})
	model := newBuildModel(tracker, "")
	model.styles = NoColorStyles()

	// When: rendering view
	view := model.View()

	// Then: catalog, counts and key are shown
	assert.Contains(t, view, "marine (1/3)")
	assert.Contains(t, view, "50 / 100 records")
	assert.Contains(t, view, "north-sea:marine")
	assert.Contains(t, view, "50%")
}

func TestBuildModel_Complete(t *testing.T) {
	// Given: a model
	model := newBuildModel(NewProgressTracker(), "main")
	model.styles = NoColorStyles()

	// When: the build completes
	_, cmd := model.Update(completeMsg(CompletionStats{Service: "main", Catalogs: 2, Indexed: 10, Failed: 1, Duration: 65 * time.Second}))

	// Then: the summary replaces progress and the program quits
	assert.NotNil(t, cmd)
	view := model.View()
	assert.Contains(t, view, "Index built")
	assert.Contains(t, view, "1m 5s")
	assert.Contains(t, view, "1 records failed")
}

func TestBuildModel_QuitKey(t *testing.T) {
	model := newBuildModel(NewProgressTracker(), "")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", model.View())
}

func TestBuildModel_WindowResize(t *testing.T) {
	model := newBuildModel(NewProgressTracker(), "")

	model.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 20, model.bar.Width)

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 100, model.bar.Width)
	assert.Equal(t, 116, model.contentWidth())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m", formatDuration(3*time.Minute))
	assert.Equal(t, "3m 5s", formatDuration(185*time.Second))
	assert.Equal(t, "1h 2m", formatDuration(62*time.Minute))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...ef", truncate("abcdef", 5))
	assert.Equal(t, "...", truncate("abcdef", 2))
}
