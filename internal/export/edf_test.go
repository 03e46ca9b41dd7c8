package export

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyespy-lab/stimlog/internal/row"
	"github.com/eyespy-lab/stimlog/internal/sessionlog"
)

// writeLog writes rows to a fresh session log and returns its path.
func writeLog(t *testing.T, rows ...row.Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Participant1700000000.csv")
	w, err := sessionlog.Open(path)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.WriteRow(r.Fields()))
	}
	require.NoError(t, w.Close())
	return path
}

func at(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func sampleLog(t *testing.T) string {
	return writeLog(t,
		row.ComposeIdle([]float32{-10, 5}, at(0)),
		row.ComposeIdle([]float32{-5, 6}, at(250)),
		row.ComposeStimulus([]float32{0, 7}, at(500), "1", "real/a.jpg", at(490)),
		row.ComposeStimulus([]float32{5, 8}, at(750), "1", "real/a.jpg", at(490)),
		row.ComposeStimulus([]float32{10, 9}, at(1000), "ai", "ai/b.jpg", at(990)),
		row.ComposeStimulus([]float32{10.5, 10}, at(1250), "ai", "ai/b.jpg", at(990)),
	)
}

func readSignal(t *testing.T, r *edf.Reader, i, n int) []float64 {
	t.Helper()
	sr, err := r.Signal(i)
	require.NoError(t, err)
	out := make([]float64, n)
	got, err := sr.Read(out)
	if err != nil {
		require.ErrorIs(t, err, io.EOF)
	}
	return out[:got]
}

// --- Convert ---

func TestConvertFile_RoundTrip(t *testing.T) {
	csvPath := sampleLog(t)
	edfPath := filepath.Join(t.TempDir(), "out", "session.edf")
	start := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

	res, err := ConvertFile(csvPath, edfPath, Options{
		SamplingRate:      4,
		RecordDuration:    time.Second,
		PhysicalDimension: "uV",
		ChannelLabels:     []string{"EEG 1"},
		PatientID:         "Participant",
		StartTime:         start,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Rows)
	assert.Equal(t, int64(2), res.IdleRows)
	assert.Equal(t, int64(4), res.StimulusRows)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 3, res.Signals)
	assert.Equal(t, map[string]float64{"ai": 2}, res.Conditions)

	f, err := os.Open(edfPath)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	r, err := edf.Open(f)
	require.NoError(t, err)

	// Reading through a signal pulls records until EOF, so 2 records of 4.
	ch1 := readSignal(t, r, 0, 16)
	require.Len(t, ch1, 8)
	want := []float64{-10, -5, 0, 5, 10, 10.5, 10.5, 10.5}
	for i := range want {
		assert.InDelta(t, want[i], ch1[i], 0.01, "sample %d", i)
	}

	trigger := readSignal(t, r, 2, 8)
	wantTrig := []float64{0, 0, 1, 1, 2, 2, 2, 2}
	for i := range wantTrig {
		assert.InDelta(t, wantTrig[i], trigger[i], 0.01, "trigger %d", i)
	}
}

func TestConvert_HeaderFields(t *testing.T) {
	csvPath := sampleLog(t)
	edfPath := filepath.Join(t.TempDir(), "session.edf")

	_, err := ConvertFile(csvPath, edfPath, Options{
		SamplingRate:      4,
		RecordDuration:    2 * time.Second,
		PhysicalDimension: "microvolts",
		ChannelLabels:     []string{"Validation Indicator Extra", ""},
		StartTime:         time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(edfPath)
	require.NoError(t, err)
	// 256 fixed bytes, 256 per signal, then one record of 3 signals x 8 samples x 2 bytes.
	assert.Len(t, raw, 256+3*256+3*8*2)

	// Labels are truncated to their 16-byte field and gaps become Ch<n>.
	labels := string(raw[256 : 256+3*16])
	assert.Equal(t, "Validation Indic"+"Ch2             "+"Trigger         ", labels)
	dims := 256 + 3*16 + 3*80
	assert.Equal(t, "microvol", string(raw[dims:dims+8]))

	f, err := os.Open(edfPath)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	r, err := edf.Open(f)
	require.NoError(t, err)

	ch := readSignal(t, r, 1, 8)
	require.Len(t, ch, 8)
	assert.InDelta(t, 5, ch[0], 0.01)
	assert.InDelta(t, 10, ch[7], 0.01)
}

func TestConvert_TruncatesLongHeaderText(t *testing.T) {
	assert.Equal(t, "Validation Indic", fit("Validation Indicator", 16))
	assert.Equal(t, "uV", fit("uV", 8))
	assert.Equal(t, "Ch2", channelLabel([]string{"EEG 1"}, 1))
	assert.Equal(t, "Ch1", channelLabel([]string{""}, 0))
}

func TestConvert_ExplicitChannelCountMustMatch(t *testing.T) {
	csvPath := sampleLog(t)
	_, err := ConvertFile(csvPath, filepath.Join(t.TempDir(), "x.edf"), Options{
		ChannelCount:   3,
		SamplingRate:   4,
		RecordDuration: time.Second,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, row.ErrAmbiguousRow))
	assert.Contains(t, err.Error(), "line 1")
}

func TestConvert_EmptyLog(t *testing.T) {
	csvPath := writeLog(t)
	edfPath := filepath.Join(t.TempDir(), "x.edf")

	_, err := ConvertFile(csvPath, edfPath, Options{SamplingRate: 250, RecordDuration: time.Second})
	require.ErrorIs(t, err, ErrEmptyLog)

	_, statErr := os.Stat(edfPath)
	assert.True(t, os.IsNotExist(statErr), "failed export should not leave a file behind")
}

func TestConvert_RejectsBadTiming(t *testing.T) {
	csvPath := sampleLog(t)

	cases := []Options{
		{SamplingRate: 0, RecordDuration: time.Second},
		{SamplingRate: 250, RecordDuration: 500 * time.Millisecond},
		{SamplingRate: 250, RecordDuration: 1500 * time.Millisecond},
	}
	for _, opts := range cases {
		_, err := ConvertFile(csvPath, filepath.Join(t.TempDir(), "x.edf"), opts)
		assert.Error(t, err, "%+v", opts)
	}
}

func TestConvert_RecordTooLarge(t *testing.T) {
	csvPath := sampleLog(t)
	_, err := ConvertFile(csvPath, filepath.Join(t.TempDir(), "x.edf"), Options{
		SamplingRate:   20000,
		RecordDuration: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestConvertFile_RefusesToOverwrite(t *testing.T) {
	csvPath := sampleLog(t)
	edfPath := filepath.Join(t.TempDir(), "x.edf")
	require.NoError(t, os.WriteFile(edfPath, []byte("keep"), 0o644))

	_, err := ConvertFile(csvPath, edfPath, Options{SamplingRate: 4, RecordDuration: time.Second})
	require.Error(t, err)

	data, err := os.ReadFile(edfPath)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

// --- Trigger values ---

func TestTrigger_NumericAndTextConditions(t *testing.T) {
	csvPath := writeLog(t,
		row.ComposeStimulus([]float32{1}, at(0), "zebra", "z.jpg", at(0)),
		row.ComposeStimulus([]float32{1}, at(4), "3", "a.jpg", at(0)),
		row.ComposeStimulus([]float32{1}, at(8), "apple", "b.jpg", at(0)),
		row.ComposeIdle([]float32{1}, at(12)),
	)

	s, err := survey(csvPath, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.channels)
	assert.Equal(t, float64(5), s.maxTrigger)
	assert.Equal(t, map[string]float64{"zebra": 4, "apple": 5}, s.conditions)

	assert.Equal(t, float64(3), s.trigger(row.Row{Phase: row.PhaseStimulus, Condition: "3"}))
	assert.Equal(t, float64(4), s.trigger(row.Row{Phase: row.PhaseStimulus, Condition: "zebra"}))
	assert.Equal(t, float64(0), s.trigger(row.Row{Phase: row.PhaseIdle}))

	// A flat channel still gets a usable range.
	assert.Equal(t, []float64{1}, s.min)
	assert.Equal(t, []float64{2}, s.max)
}
