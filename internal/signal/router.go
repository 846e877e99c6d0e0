package signal

import (
	"fmt"
	"slices"
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// Router validates proposals and hands signals to the execution agent via
// the signal file. The file's presence means "pending"; the agent deletes it
// once consumed.
type Router struct {
	Path      string
	Symbol    string
	Timeframe string
	Now       func() time.Time
}

func NewRouter(path, symbol, timeframe string) *Router {
	return &Router{Path: path, Symbol: symbol, Timeframe: timeframe, Now: time.Now}
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Build validates p against minConfidence and returns the signal that would
// be written. Rejections are ErrNoAction or ErrInsufficientConfidence.
func (r *Router) Build(strategyName string, p Proposal, minConfidence float64) (Signal, error) {
	if p.Action != ActionBuy && p.Action != ActionSell {
		return Signal{}, ErrNoAction
	}
	conf := clampConfidence(p.Confidence)
	if conf < minConfidence {
		return Signal{}, fmt.Errorf("%w: %.2f < %.2f", ErrInsufficientConfidence, conf, minConfidence)
	}
	ts := r.now().UTC()
	return Signal{
		SignalID:     BuildID(ts, p.Action, strategyName),
		Action:       p.Action,
		Confidence:   conf,
		SLPips:       p.SLPips,
		TPPips:       p.TPPips,
		Symbol:       r.Symbol,
		Timeframe:    r.Timeframe,
		Timestamp:    ts.Format(time.RFC3339),
		StrategyName: strategyName,
		Reason:       p.Reason,
	}, nil
}

// Write persists s atomically. On error nothing is considered emitted.
func (r *Router) Write(s Signal) error {
	if err := store.WriteJSON(r.Path, s); err != nil {
		return fmt.Errorf("failed to write signal %s: %w", s.SignalID, err)
	}
	observ.Log("signal_written", map[string]any{
		"signal_id":  s.SignalID,
		"action":     s.Action,
		"confidence": s.Confidence,
		"strategy":   s.StrategyName,
	})
	return nil
}

// Route is Build followed by Write.
func (r *Router) Route(strategyName string, p Proposal, minConfidence float64) (Signal, error) {
	s, err := r.Build(strategyName, p, minConfidence)
	if err != nil {
		return Signal{}, err
	}
	if err := r.Write(s); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Pending reports whether the previous signal is still waiting for the agent.
func (r *Router) Pending() bool {
	return store.Exists(r.Path)
}

// Clear removes any outstanding signal file.
func (r *Router) Clear() error {
	if err := store.Remove(r.Path); err != nil {
		return fmt.Errorf("failed to clear signal file: %w", err)
	}
	return nil
}

// ClearIf removes the signal file only when it holds one of ids. A newer
// signal the agent has not read yet is left in place.
func (r *Router) ClearIf(ids ...string) (bool, error) {
	var s Signal
	found, err := store.ReadJSON(r.Path, &s)
	if err != nil {
		return false, fmt.Errorf("failed to read signal file: %w", err)
	}
	if !found || !slices.Contains(ids, s.SignalID) {
		return false, nil
	}
	if err := r.Clear(); err != nil {
		return false, err
	}
	return true, nil
}

// Stop returns the sentinel that tells the agent the engine has halted.
func (r *Router) Stop() Signal {
	ts := r.now().UTC()
	return Signal{
		SignalID:     ts.Format(idTimeLayout) + "_STOP",
		Action:       ActionNone,
		Symbol:       r.Symbol,
		Timeframe:    r.Timeframe,
		Timestamp:    ts.Format(time.RFC3339),
		StrategyName: StopStrategy,
		Reason:       "engine stopped",
	}
}

// WriteStop writes the STOP sentinel over the signal file.
func (r *Router) WriteStop() error {
	s := r.Stop()
	if err := store.WriteJSON(r.Path, s); err != nil {
		return fmt.Errorf("failed to write stop signal: %w", err)
	}
	observ.Log("stop_signal_written", map[string]any{"signal_id": s.SignalID})
	return nil
}

// IsStop reports whether s is the shutdown sentinel.
func IsStop(s Signal) bool {
	return s.StrategyName == StopStrategy || s.Action == ActionNone
}
