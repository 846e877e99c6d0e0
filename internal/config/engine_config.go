package config

import (
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// EngineConfig is the tunable parameter set shared with the operator and
// rewritten by the adaptive tuner.
type EngineConfig struct {
	MinConfidence            float64 `json:"minConfidence"` // fraction 0..1
	CooldownSeconds          int     `json:"cooldownSeconds"`
	MaxDailyTrades           int     `json:"maxDailyTrades"`
	MaxLosses                int     `json:"maxLosses"` // 0 = no loss pause
	MaxConcurrentTrades      int     `json:"maxConcurrentTrades"`
	MinSignalIntervalSeconds int     `json:"minSignalIntervalSeconds"`
	AvoidRepeatStrategy      bool    `json:"avoidRepeatStrategy"`
	AutoOptimize             bool    `json:"autoOptimize"`
	LotSize                  float64 `json:"lotSize"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinConfidence:            0.35,
		CooldownSeconds:          30,
		MaxDailyTrades:           50,
		MaxLosses:                5,
		MaxConcurrentTrades:      3,
		MinSignalIntervalSeconds: 60,
		AvoidRepeatStrategy:      true,
		AutoOptimize:             true,
		LotSize:                  0.01,
	}
}

// Normalize converts legacy percent confidences and clamps values that would
// disable the engine's own gates. maxLosses is the exception: 0 turns the
// loss pause off.
func (c *EngineConfig) Normalize() {
	d := DefaultEngineConfig()
	if c.MinConfidence > 1 {
		c.MinConfidence /= 100
	}
	if c.MinConfidence < 0 {
		c.MinConfidence = 0
	}
	if c.MinConfidence > 1 {
		c.MinConfidence = 1
	}
	if c.CooldownSeconds < 0 {
		c.CooldownSeconds = 0
	}
	if c.MaxDailyTrades <= 0 {
		c.MaxDailyTrades = d.MaxDailyTrades
	}
	if c.MaxLosses < 0 {
		c.MaxLosses = 0 // 0 disables the global loss pause
	}
	if c.MaxConcurrentTrades <= 0 {
		c.MaxConcurrentTrades = d.MaxConcurrentTrades
	}
	if c.MinSignalIntervalSeconds < 0 {
		c.MinSignalIntervalSeconds = 0
	}
	if c.LotSize <= 0 {
		c.LotSize = d.LotSize
	}
}

// LoadEngineConfig reads path. A missing file yields the defaults; keys absent
// from the file keep their default values.
func LoadEngineConfig(path string) (EngineConfig, error) {
	c := DefaultEngineConfig()
	if _, err := store.ReadJSON(path, &c); err != nil {
		return DefaultEngineConfig(), err
	}
	c.Normalize()
	return c, nil
}

func SaveEngineConfig(path string, c EngineConfig) error {
	return store.WriteJSON(path, c)
}
