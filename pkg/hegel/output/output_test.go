package output_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hegelab/hegel/pkg/hegel/output"
)

func sampleReport() *output.Report {
	return &output.Report{
		Title: "Instruments",
		Instruments: []output.Instrument{
			{
				Name:     "src",
				Resource: "SIM::source",
				Driver:   "source",
				Vendor:   "Hegel Instruments",
				Model:    "SIM-source",
				Devices:  []string{"level", "settle"},
			},
		},
		Readings: []output.Reading{
			{Device: "src.level", Value: 1.25, Unit: "V", Time: time.Now()},
			{Device: "dmm.readval", Value: -3.5e-6, Time: time.Now()},
		},
		Files: []output.DataFile{
			{Path: "/data/sweep_00.txt", Size: 2048, SizeHuman: "2.0 KiB", ModTime: time.Now()},
		},
		Runs: []output.RunInfo{
			{
				ID:       "abc",
				Kind:     "sweep",
				Devices:  []string{"src.level", "dmm.readval"},
				Filename: "/data/sweep_00.txt",
				Points:   11,
				Start:    time.Now().Add(-time.Minute),
				Duration: 30 * time.Second,
			},
		},
	}
}

func TestRegistry(t *testing.T) {
	names := output.Available()
	for _, want := range []string{"json", "plain", "pretty", "yaml"} {
		assert.Contains(t, names, want)
	}

	_, err := output.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")
}

func TestAllFormattersHandleSample(t *testing.T) {
	for _, name := range output.Available() {
		t.Run(name, func(t *testing.T) {
			f, err := output.Get(name)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, f.Format(&buf, sampleReport()))
			assert.NotEmpty(t, buf.String())
		})
	}
}

func TestAllFormattersHandleEmptyReport(t *testing.T) {
	for _, name := range output.Available() {
		t.Run(name, func(t *testing.T) {
			f, err := output.Get(name)
			require.NoError(t, err)
			var buf bytes.Buffer
			assert.NoError(t, f.Format(&buf, &output.Report{}))
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	f, err := output.Get("json")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))

	var decoded output.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Instruments, 1)
	assert.Equal(t, "src", decoded.Instruments[0].Name)
	require.Len(t, decoded.Readings, 2)
	assert.Equal(t, 1.25, decoded.Readings[0].Value)
}

func TestYAMLRoundTrip(t *testing.T) {
	f, err := output.Get("yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))

	var decoded output.Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Runs, 1)
	assert.Equal(t, "sweep", decoded.Runs[0].Kind)
	assert.Equal(t, 11, decoded.Runs[0].Points)
}

func TestPlainOutputContent(t *testing.T) {
	f, err := output.Get("plain")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))
	out := buf.String()
	assert.Contains(t, out, "src")
	assert.Contains(t, out, "SIM::source")
	assert.Contains(t, out, "src.level")
	assert.Contains(t, out, "/data/sweep_00.txt")
	assert.NotContains(t, out, "\x1b[", "plain output carries no ANSI codes")
}

func TestPrettyOutputContent(t *testing.T) {
	f, err := output.Get("pretty")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))
	out := buf.String()
	assert.Contains(t, out, "src")
	assert.Contains(t, out, "SIM-source")
	assert.Contains(t, out, "1.25")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 500 * time.Millisecond, want: "500ms"},
		{d: 2500 * time.Millisecond, want: "2.5s"},
		{d: 90 * time.Second, want: "1m 30s"},
		{d: 2*time.Hour + 5*time.Minute, want: "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, output.FormatDuration(tt.d))
	}
}
