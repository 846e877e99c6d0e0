package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BaseDirEnv selects the exchange directory shared with the execution agent.
const BaseDirEnv = "SIGNAL_ENGINE_BASE"

type FailStreak struct {
	Threshold      int `yaml:"threshold"`
	SuspendSeconds int `yaml:"suspend_seconds"`
}

type Classifier struct {
	BlockLowVolatility   bool    `yaml:"block_low_volatility"`
	LowVolatilityPenalty float64 `yaml:"low_volatility_penalty"`
}

type RateLimit struct {
	SignalsPerMinute float64 `yaml:"signals_per_minute"`
	Burst            int     `yaml:"burst"`
}

type Tuner struct {
	LearningEvery     int  `yaml:"learning_every"`
	OptimizationEvery int  `yaml:"optimization_every"`
	Window            int  `yaml:"window"`
	ExplorationFloor  bool `yaml:"exploration_floor"` // lower minConfidence to 0.10 for the first 20 trades
}

type Log struct {
	Level    string `yaml:"level"`
	RingSize int    `yaml:"ring_size"`
	File     string `yaml:"file"` // relative paths resolve under base_dir
}

type Metrics struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

type Root struct {
	BaseDir              string     `yaml:"base_dir"`
	LoopIntervalSeconds  int        `yaml:"loop_interval_seconds"`
	SignalTimeoutSeconds int        `yaml:"signal_timeout_seconds"`
	Symbol               string     `yaml:"symbol"`
	Timeframe            string     `yaml:"timeframe"`
	FailStreak           FailStreak `yaml:"fail_streak"`
	Classifier           Classifier `yaml:"classifier"`
	RateLimit            RateLimit  `yaml:"rate_limit"`
	Tuner                Tuner      `yaml:"tuner"`
	Log                  Log        `yaml:"log"`
	Metrics              Metrics    `yaml:"metrics"`
}

// Load reads the bootstrap yaml and fills defaults for zero values.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.SetDefaults()
	return c, nil
}

// Default returns a Root with every default applied.
func Default() Root {
	var c Root
	c.SetDefaults()
	return c
}

func (c *Root) SetDefaults() {
	if c.BaseDir == "" {
		c.BaseDir = "exchange"
	}
	if c.LoopIntervalSeconds == 0 {
		c.LoopIntervalSeconds = 5
	}
	if c.SignalTimeoutSeconds == 0 {
		c.SignalTimeoutSeconds = 300
	}
	if c.Symbol == "" {
		c.Symbol = "EURUSD"
	}
	if c.Timeframe == "" {
		c.Timeframe = "M5"
	}

	if c.FailStreak.Threshold == 0 {
		c.FailStreak.Threshold = 3
	}
	if c.FailStreak.SuspendSeconds == 0 {
		c.FailStreak.SuspendSeconds = 300
	}

	if c.Classifier.LowVolatilityPenalty == 0 {
		c.Classifier.LowVolatilityPenalty = 0.15
	}

	if c.RateLimit.SignalsPerMinute == 0 {
		c.RateLimit.SignalsPerMinute = 6
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}

	if c.Tuner.LearningEvery == 0 {
		c.Tuner.LearningEvery = 10
	}
	if c.Tuner.OptimizationEvery == 0 {
		c.Tuner.OptimizationEvery = 25
	}
	if c.Tuner.Window == 0 {
		c.Tuner.Window = 50
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.RingSize == 0 {
		c.Log.RingSize = 500
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join("logs", "engine.log")
	}
}

// ApplyEnv overrides fields from the environment.
func (c *Root) ApplyEnv() {
	if v := os.Getenv(BaseDirEnv); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv("SIGNAL_ENGINE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// LogPath resolves Log.File against the base directory.
func (c Root) LogPath() string {
	if filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.BaseDir, c.Log.File)
}

func (c Root) Paths() Paths {
	return NewPaths(c.BaseDir)
}
