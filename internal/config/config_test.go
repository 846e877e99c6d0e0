package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_dir: /srv/mt5\nfail_streak:\n  threshold: 4\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mt5", c.BaseDir)
	assert.Equal(t, 4, c.FailStreak.Threshold)
	assert.Equal(t, 300, c.FailStreak.SuspendSeconds)
	assert.Equal(t, 5, c.LoopIntervalSeconds)
	assert.Equal(t, 300, c.SignalTimeoutSeconds)
	assert.Equal(t, "EURUSD", c.Symbol)
	assert.Equal(t, 10, c.Tuner.LearningEvery)
	assert.Equal(t, filepath.Join("/srv/mt5", "logs", "engine.log"), c.LogPath())
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_dir: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverridesBaseDir(t *testing.T) {
	t.Setenv(BaseDirEnv, "/tmp/bridge")
	c := Default()
	c.ApplyEnv()
	assert.Equal(t, "/tmp/bridge", c.BaseDir)
	assert.Equal(t, filepath.Join("/tmp/bridge", "signals", "signal.json"), c.Paths().SignalFile)
}

func TestEngineConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_config.json")
	want := EngineConfig{
		MinConfidence:            0.45,
		CooldownSeconds:          12,
		MaxDailyTrades:           30,
		MaxLosses:                4,
		MaxConcurrentTrades:      2,
		MinSignalIntervalSeconds: 90,
		AvoidRepeatStrategy:      false,
		AutoOptimize:             true,
		LotSize:                  0.05,
	}
	require.NoError(t, SaveEngineConfig(path, want))

	got, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadEngineConfig(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		check   func(t *testing.T, c EngineConfig)
	}{
		{
			name:    "legacy_percent_confidence",
			content: `{"minConfidence": 35, "cooldownSeconds": 5}`,
			check: func(t *testing.T, c EngineConfig) {
				assert.InDelta(t, 0.35, c.MinConfidence, 1e-9)
				assert.Equal(t, 5, c.CooldownSeconds)
				assert.Equal(t, 3, c.MaxConcurrentTrades)
			},
		},
		{
			name:    "invalid_caps_fall_back",
			content: `{"maxConcurrentTrades": 0, "maxDailyTrades": -1, "minConfidence": -2}`,
			check: func(t *testing.T, c EngineConfig) {
				assert.Equal(t, 3, c.MaxConcurrentTrades)
				assert.Equal(t, 50, c.MaxDailyTrades)
				assert.Equal(t, 0.0, c.MinConfidence)
			},
		},
		{
			name:    "zero_max_losses_disables_pause",
			content: `{"maxLosses": 0}`,
			check: func(t *testing.T, c EngineConfig) {
				assert.Equal(t, 0, c.MaxLosses)
			},
		},
		{
			name:    "negative_max_losses_clamped",
			content: `{"maxLosses": -3}`,
			check: func(t *testing.T, c EngineConfig) {
				assert.Equal(t, 0, c.MaxLosses)
			},
		},
		{
			name:    "absent_max_losses_keeps_default",
			content: `{"cooldownSeconds": 10}`,
			check: func(t *testing.T, c EngineConfig) {
				assert.Equal(t, 5, c.MaxLosses)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bot_config.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			c, err := LoadEngineConfig(path)
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestLoadEngineConfigMissingFile(t *testing.T) {
	c, err := LoadEngineConfig(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), c)
}

func TestEnsureDirs(t *testing.T) {
	p := NewPaths(filepath.Join(t.TempDir(), "base"))
	require.NoError(t, p.EnsureDirs())
	for _, dir := range []string{filepath.Dir(p.SignalFile), p.FeedbackDir, p.LearningDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
