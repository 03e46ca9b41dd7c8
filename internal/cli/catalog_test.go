package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Human(t *testing.T) {
	cfg := testConfig(t)

	cmd := &CatalogCommand{globals: &GlobalFlags{}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithConfig(cfg)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "Stimulus Catalog (4 stimuli)")
	assert.Contains(t, output, "real")
	assert.Contains(t, output, "label 1")
	assert.NotContains(t, output, "a.jpg", "entries are listed only with --entries")
}

func TestCatalog_JSONWithEntries(t *testing.T) {
	cfg := testConfig(t)

	cmd := &CatalogCommand{Entries: true, globals: &GlobalFlags{JSON: true}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithConfig(cfg)
	})
	require.NoError(t, err)

	var result catalogJSON
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.Equal(t, 4, result.Total)
	require.Len(t, result.Classes, 2)
	assert.Equal(t, catalogClassJSON{Name: "real", Label: "1", Dir: cfg.Stimuli.Classes[0].Dir, Count: 2}, result.Classes[0])
	require.Len(t, result.Entries, 4)
	assert.Equal(t, "1", result.Entries[0].Condition)
	assert.Equal(t, "2", result.Entries[3].Condition)
}

func TestCatalog_MissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stimuli.Classes[1].Dir = cfg.Stimuli.Classes[1].Dir + "-missing"

	cmd := &CatalogCommand{globals: &GlobalFlags{}}
	err := cmd.executeWithConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stimulus catalog")
}
