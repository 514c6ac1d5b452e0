package mainloop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuningFromYAML(t *testing.T) {
	tuning, err := TuningFromYAML([]byte("max_wait: 250ms\nmetrics: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, tuning.MaxWait)
	assert.True(t, tuning.Metrics)
}

func TestTuningFromYAMLDefaults(t *testing.T) {
	tuning, err := TuningFromYAML([]byte("{}\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultMaxWait, tuning.MaxWait)
	assert.False(t, tuning.Metrics)
}

func TestTuningFromJSON(t *testing.T) {
	tuning, err := TuningFromJSON([]byte(`{"max_wait": "1s", "metrics": false}`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, tuning.MaxWait)
	assert.False(t, tuning.Metrics)
}

func TestTuningBadDuration(t *testing.T) {
	_, err := TuningFromYAML([]byte("max_wait: banana\n"))
	assert.Error(t, err)

	_, err = TuningFromJSON([]byte(`{"max_wait": "-5x"}`))
	assert.Error(t, err)
}

func TestTuningNegativeMaxWait(t *testing.T) {
	_, err := TuningFromYAML([]byte("max_wait: -1s\n"))
	assert.Error(t, err)
}

func TestTuningFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("max_wait: 2s\n"), 0o644))
	tuning, err := TuningFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, tuning.MaxWait)

	jsonPath := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"max_wait": "3s"}`), 0o644))
	tuning, err = TuningFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, tuning.MaxWait)

	tomlPath := filepath.Join(dir, "tuning.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(""), 0o644))
	_, err = TuningFromFile(tomlPath)
	assert.Error(t, err)

	_, err = TuningFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWithTuningValidation(t *testing.T) {
	_, err := New(WithPoller(NewChanPoller()), WithTuning(Tuning{MaxWait: -time.Second}))
	assert.Error(t, err)

	l, err := New(WithPoller(NewChanPoller()), WithTuning(Tuning{}))
	require.NoError(t, err)
	assert.Equal(t, defaultMaxWait, l.tuning.MaxWait)

	l, err = New(WithPoller(NewChanPoller()), WithTuning(Tuning{MaxWait: 100 * time.Millisecond}))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, l.tuning.MaxWait)
}

func TestNilOptionIgnored(t *testing.T) {
	l, err := New(WithPoller(NewChanPoller()), nil)
	require.NoError(t, err)
	require.NotNil(t, l)
}
