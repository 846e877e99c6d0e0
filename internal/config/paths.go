package config

import (
	"os"
	"path/filepath"
)

// Paths is the file layout under the base directory. The signal, status,
// market and feedback files form the contract with the execution agent.
type Paths struct {
	Base           string
	SignalFile     string
	StatusFile     string
	MarketFile     string
	FeedbackLegacy string
	FeedbackDir    string
	ConfigFile     string
	LearningDir    string
	StatsFile      string
	HistoryFile    string
	TunerFile      string
	LedgerFile     string
	ControllerFile string
}

func NewPaths(base string) Paths {
	learning := filepath.Join(base, "learning_data")
	return Paths{
		Base:           base,
		SignalFile:     filepath.Join(base, "signals", "signal.json"),
		StatusFile:     filepath.Join(base, "bot_status.json"),
		MarketFile:     filepath.Join(base, "market_data.json"),
		FeedbackLegacy: filepath.Join(base, "trade_feedback.json"),
		FeedbackDir:    filepath.Join(base, "trade_feedback"),
		ConfigFile:     filepath.Join(base, "bot_config.json"),
		LearningDir:    learning,
		StatsFile:      filepath.Join(learning, "setup_stats.json"),
		HistoryFile:    filepath.Join(learning, "trade_history.jsonl"),
		TunerFile:      filepath.Join(learning, "ml_state.json"),
		LedgerFile:     filepath.Join(learning, "processed_signals.txt"),
		ControllerFile: filepath.Join(learning, "controller_state.json"),
	}
}

// EnsureDirs creates every directory the engine writes into.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{
		p.Base,
		filepath.Dir(p.SignalFile),
		p.FeedbackDir,
		p.LearningDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
