package tuner

import (
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

type Mode string

const (
	ModeExploration  Mode = "EXPLORATION"
	ModeLearning     Mode = "LEARNING"
	ModeOptimization Mode = "OPTIMIZATION"
)

const (
	learningAfter     = 50
	optimizationAfter = 200
	maxHistory        = 100
	maxLosingPatterns = 50
)

// ModeFor maps cumulative processed trades to a tuning phase.
func ModeFor(totalTrades int) Mode {
	switch {
	case totalTrades < learningAfter:
		return ModeExploration
	case totalTrades < optimizationAfter:
		return ModeLearning
	default:
		return ModeOptimization
	}
}

// Adjustment is one entry of the decision trail.
type Adjustment struct {
	Timestamp   time.Time           `json:"timestamp"`
	Mode        Mode                `json:"mode"`
	TotalTrades int                 `json:"total_trades"`
	Config      config.EngineConfig `json:"config"`
	Changes     []string            `json:"changes"`
}

// LosingPattern records a strategy that hit a loss streak.
type LosingPattern struct {
	Strategy   string    `json:"strategy"`
	Context    string    `json:"context,omitempty"`
	Streak     int       `json:"streak"`
	DetectedAt time.Time `json:"detected_at"`
}

// State is everything the tuner has learned.
type State struct {
	Mode                   Mode               `json:"mode"`
	TotalTrades            int                `json:"total_trades"`
	StrategyPriority       map[string]float64 `json:"strategy_priority"`
	BestStrategyPerContext map[string]string  `json:"best_strategy_per_context"`
	LosingPatterns         []LosingPattern    `json:"losing_patterns"`
	BadHours               []int              `json:"bad_hours"`
	LastAdjustment         time.Time          `json:"last_adjustment"`
	LastAdjustedAt         int                `json:"last_adjusted_at"`
	History                []Adjustment       `json:"history"`
}

func newState() State {
	return State{
		Mode:                   ModeExploration,
		StrategyPriority:       map[string]float64{},
		BestStrategyPerContext: map[string]string{},
	}
}

func (s State) adjusted() bool { return !s.LastAdjustment.IsZero() }

func loadState(path string) (State, error) {
	st := newState()
	if path == "" {
		return st, nil
	}
	if _, err := store.ReadJSON(path, &st); err != nil {
		return newState(), err
	}
	if st.StrategyPriority == nil {
		st.StrategyPriority = map[string]float64{}
	}
	if st.BestStrategyPerContext == nil {
		st.BestStrategyPerContext = map[string]string{}
	}
	st.Mode = ModeFor(st.TotalTrades)
	return st, nil
}
