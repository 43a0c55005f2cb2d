package ui

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/internal/index"
)

func TestStage_StringAndIcon(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageCatalogs, "Catalogs", "CATALOG"},
		{StageRecords, "Records", "INDEX"},
		{StagePromote, "Promote", "SWAP"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.stage.String())
		assert.Equal(t, tt.icon, tt.stage.Icon())
	}
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	// Given: a buffer and options
	buf := &bytes.Buffer{}

	// When: creating config
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithService("main"))

	// Then: options are applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "main", cfg.Service)
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: a non-TTY output
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating a renderer
	r := NewRenderer(cfg)

	// Then: the plain renderer is chosen
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTTY(f))
}

func TestDetectCI(t *testing.T) {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	assert.False(t, DetectCI())

	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	assert.True(t, DetectNoColor())

	os.Unsetenv("NO_COLOR")
	assert.False(t, DetectNoColor())
}

type recordingRenderer struct {
	PlainRenderer
	events []ProgressEvent
	errs   []ErrorEvent
}

func (r *recordingRenderer) UpdateProgress(e ProgressEvent) { r.events = append(r.events, e) }
func (r *recordingRenderer) AddError(e ErrorEvent)         { r.errs = append(r.errs, e) }

func TestProgressFunc_MapsIndexerPhases(t *testing.T) {
	// Given: a renderer adapted to the indexer callback
	r := &recordingRenderer{}
	fn := ProgressFunc(r)

	// When: the indexer reports a full build with one failed record
	fn(index.Progress{Phase: index.PhaseCatalogs, Catalogs: 2})
	fn(index.Progress{Phase: index.PhaseRecords, Catalog: "main", CatalogIndex: 1, Catalogs: 2, Current: 1, Total: 3, Key: "a:main"})
	fn(index.Progress{Phase: index.PhaseRecords, Catalog: "main", CatalogIndex: 1, Catalogs: 2, Current: 2, Total: 3, Key: "b:main", Err: errors.New("bad date")})
	fn(index.Progress{Phase: index.PhasePromote, Catalogs: 2})

	// Then: stages follow the phases and the failure is a warning
	require.Len(t, r.events, 4)
	assert.Equal(t, StageCatalogs, r.events[0].Stage)
	assert.Equal(t, 2, r.events[0].Total)
	assert.Equal(t, StageRecords, r.events[1].Stage)
	assert.Equal(t, "a:main", r.events[1].Key)
	assert.Equal(t, StagePromote, r.events[3].Stage)

	require.Len(t, r.errs, 1)
	assert.Equal(t, "b:main", r.errs[0].Key)
	assert.True(t, r.errs[0].IsWarn)
}
