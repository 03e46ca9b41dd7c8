package sessionlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestInspect_CountsAndBlocks(t *testing.T) {
	path := writeLines(t,
		"1.5,2.5,0,0,0,0.004000",
		"1.5,2.5,0,0,0,0.008000",
		"1.5,2.5,0.012000,1,real/a.jpg,0.010000",
		"1.5,2.5,0.016000,1,real/a.jpg,0.010000",
		"1.5,2.5,0.020000,1,real/a.jpg,0.010000",
		"1.5,2.5,0.024000,0,0,0",
		"1.5,2.5,0.028000,2,ai/b.jpg,0.026000",
		"1.5,2.5,0.032000,2,ai/b.jpg,0.026000",
	)

	rep, err := Inspect(path, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Channels)
	assert.Equal(t, 8, rep.Rows)
	assert.Equal(t, 2, rep.IdleRows)
	assert.Equal(t, 5, rep.StimulusRows)
	assert.Equal(t, 1, rep.Ambiguous)
	assert.Equal(t, []int{6}, rep.AmbiguousLines)
	assert.Equal(t, 0, rep.OutOfOrder)
	assert.Equal(t, 4*time.Millisecond, rep.FirstAcquired)
	assert.Equal(t, 32*time.Millisecond, rep.LastAcquired)

	require.Len(t, rep.Blocks, 2)
	assert.Equal(t, Block{StimulusID: "real/a.jpg", Condition: "1", PresentedAt: 10 * time.Millisecond, FirstLine: 3, Rows: 3}, rep.Blocks[0])
	assert.Equal(t, Block{StimulusID: "ai/b.jpg", Condition: "2", PresentedAt: 26 * time.Millisecond, FirstLine: 7, Rows: 2}, rep.Blocks[1])
}

func TestInspect_RepeatedStimulusStartsNewBlock(t *testing.T) {
	path := writeLines(t,
		"1,0.010000,1,a.jpg,0.005000",
		"1,0,0,0,0.020000",
		"1,0.030000,1,a.jpg,0.025000",
	)

	rep, err := Inspect(path, 1)
	require.NoError(t, err)
	require.Len(t, rep.Blocks, 2)
	assert.Equal(t, 1, rep.Blocks[0].Rows)
	assert.Equal(t, 3, rep.Blocks[1].FirstLine)
}

func TestInspect_OutOfOrderTimestamps(t *testing.T) {
	path := writeLines(t,
		"1,0,0,0,0.010000",
		"1,0,0,0,0.010000", // same frame
		"1,0,0,0,0.005000",
		"1,0.005000,1,a.jpg,0.004000", // equal timestamp across row kinds
	)

	rep, err := Inspect(path, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.OutOfOrder)
}

func TestInspect_WidthMismatchIsAmbiguous(t *testing.T) {
	path := writeLines(t,
		"1,2,0,0,0,0.010000",
		"1,0,0,0,0.020000",
	)

	rep, err := Inspect(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.IdleRows)
	assert.Equal(t, 1, rep.Ambiguous)
	assert.Equal(t, []int{2}, rep.AmbiguousLines)
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "missing.csv"), 0)
	assert.Error(t, err)
}
