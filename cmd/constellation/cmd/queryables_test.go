package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryablesCmd_ListsBuiltinMaps(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "queryables")

	require.NoError(t, err)
	for _, name := range []string{"iso19115", "dublin-core", "dublin-core-spatial"} {
		assert.Contains(t, out, name)
	}
}

func TestQueryablesCmd_TermsWithPaths(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "queryables", "iso19115", "--paths")

	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "MD_Metadata")
}

func TestQueryablesCmd_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "queryables", "dublin-core", "--json")

	require.NoError(t, err)
	var maps []termMapJSON
	require.NoError(t, json.Unmarshal([]byte(out), &maps))
	require.Len(t, maps, 1)
	assert.Equal(t, "dublin-core", maps[0].Name)
	assert.NotEmpty(t, maps[0].Terms)
}

func TestQueryablesCmd_UnknownMap(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "queryables", "nope")

	require.Error(t, err)
}
