package tuner

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/feedback"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/store"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
)

const (
	contextBoost         = 1.5
	learningStreakFactor = 0.3
	optimizeStreakFactor = 0.2
	lossStreakLength     = 3
)

type Settings struct {
	LearningEvery     int
	OptimizationEvery int
	Window            int
	StatePath         string
}

// Result describes one Adapt run.
type Result struct {
	Mode    Mode
	Changed bool
	Changes []string
}

// Tuner adjusts EngineConfig and strategy priorities from trade outcomes.
type Tuner struct {
	mu       sync.RWMutex
	settings Settings
	state    State
	now      func() time.Time
}

var _ strategy.PriorityProvider = (*Tuner)(nil)

func New(settings Settings) *Tuner {
	if settings.LearningEvery <= 0 {
		settings.LearningEvery = 10
	}
	if settings.OptimizationEvery <= 0 {
		settings.OptimizationEvery = 25
	}
	if settings.Window <= 0 {
		settings.Window = 50
	}
	return &Tuner{settings: settings, state: newState(), now: time.Now}
}

func (t *Tuner) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Load restores persisted state; a missing file keeps the defaults.
func (t *Tuner) Load() error {
	st, err := loadState(t.settings.StatePath)
	if err != nil {
		return fmt.Errorf("failed to load tuner state: %w", err)
	}
	t.mu.Lock()
	t.state = st
	t.mu.Unlock()
	observ.SetGauge("tuner_total_trades", float64(st.TotalTrades), nil)
	return nil
}

func (t *Tuner) save() error {
	if t.settings.StatePath == "" {
		return nil
	}
	return store.WriteJSON(t.settings.StatePath, t.state)
}

// State returns a copy of the learned state.
func (t *Tuner) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := t.state
	st.StrategyPriority = copyMap(t.state.StrategyPriority)
	st.BestStrategyPerContext = copyMap(t.state.BestStrategyPerContext)
	st.LosingPatterns = append([]LosingPattern(nil), t.state.LosingPatterns...)
	st.BadHours = append([]int(nil), t.state.BadHours...)
	st.History = append([]Adjustment(nil), t.state.History...)
	return st
}

func (t *Tuner) Mode() Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Mode
}

func (t *Tuner) TotalTrades() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.TotalTrades
}

// SetTotalTrades records the cumulative processed trade count.
func (t *Tuner) SetTotalTrades(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state.Mode
	t.state.TotalTrades = n
	t.state.Mode = ModeFor(n)
	observ.SetGauge("tuner_total_trades", float64(n), nil)
	if prev != t.state.Mode {
		observ.Log("tuner_mode_changed", map[string]any{"from": prev, "to": t.state.Mode, "total_trades": n})
	}
}

// Due reports whether Adapt should run at the current trade count. Feedback
// arrives in batches, so the count may jump past a multiple of the interval;
// Due measures trades since the last adjustment instead.
func (t *Tuner) Due(autoOptimize bool) bool {
	if !autoOptimize {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	since := t.state.TotalTrades - t.state.LastAdjustedAt
	switch t.state.Mode {
	case ModeExploration:
		return !t.state.adjusted()
	case ModeLearning:
		return since >= t.settings.LearningEvery
	default:
		return since >= t.settings.OptimizationEvery
	}
}

// Adapt derives a new config from recent trades. activeSignals bounds how far
// the concurrency cap may be lowered.
func (t *Tuner) Adapt(cfg config.EngineConfig, trades []feedback.HistoryEntry, activeSignals int) (config.EngineConfig, Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(trades) > t.settings.Window {
		trades = trades[len(trades)-t.settings.Window:]
	}
	mode := t.state.Mode
	res := Result{Mode: mode}
	next := cfg

	switch mode {
	case ModeExploration:
		t.explore(&next, &res)
	case ModeLearning:
		if len(trades) < 10 {
			res.Changes = append(res.Changes, fmt.Sprintf("learning skipped: %d trades in window", len(trades)))
			break
		}
		t.learn(&next, analyze(trades), activeSignals, &res)
	case ModeOptimization:
		if len(trades) < 10 {
			res.Changes = append(res.Changes, fmt.Sprintf("optimization skipped: %d trades in window", len(trades)))
			break
		}
		t.optimize(&next, analyze(trades), &res)
	}

	next.Normalize()
	res.Changed = next != cfg
	now := t.now().UTC()
	t.state.LastAdjustment = now
	t.state.LastAdjustedAt = t.state.TotalTrades
	t.state.History = append(t.state.History, Adjustment{
		Timestamp:   now,
		Mode:        mode,
		TotalTrades: t.state.TotalTrades,
		Config:      next,
		Changes:     res.Changes,
	})
	if len(t.state.History) > maxHistory {
		t.state.History = t.state.History[len(t.state.History)-maxHistory:]
	}
	if err := t.save(); err != nil {
		observ.Warn("tuner_state_save_error", map[string]any{"error": err.Error()})
	}

	observ.IncCounter("tuner_adjustments_total", map[string]string{"mode": string(mode)})
	observ.Log("tuner_adjusted", map[string]any{
		"mode":         mode,
		"total_trades": t.state.TotalTrades,
		"changed":      res.Changed,
		"changes":      res.Changes,
	})
	return next, res
}

func (t *Tuner) explore(cfg *config.EngineConfig, res *Result) {
	cfg.MinConfidence = 0.30
	cfg.CooldownSeconds = 3
	cfg.MaxDailyTrades = 100
	t.state.StrategyPriority = map[string]float64{}
	res.Changes = append(res.Changes, "exploration preset: permissive thresholds, equal priorities")
}

func (t *Tuner) learn(cfg *config.EngineConfig, a analysis, activeSignals int, res *Result) {
	wr := a.overall.winRate()
	avg := a.overall.avgPips()

	bestTh, bestWR := 0, 0.0
	for _, th := range thresholds {
		b := a.byThreshold[th]
		if b != nil && b.trades >= 10 && b.winRate() > bestWR {
			bestTh, bestWR = th, b.winRate()
		}
	}
	switch {
	case bestWR > 0.52:
		cfg.MinConfidence = float64(bestTh) / 100
		res.Changes = append(res.Changes, fmt.Sprintf("minConfidence %.2f (threshold win rate %.1f%%)", cfg.MinConfidence, bestWR*100))
	case wr < 0.45:
		cfg.MinConfidence = round2(math.Min(cfg.MinConfidence+0.05, 0.60))
		res.Changes = append(res.Changes, fmt.Sprintf("win rate %.1f%% low: minConfidence %.2f", wr*100, cfg.MinConfidence))
	case wr > 0.55:
		cfg.MinConfidence = round2(math.Max(cfg.MinConfidence-0.03, 0.30))
		res.Changes = append(res.Changes, fmt.Sprintf("win rate %.1f%% high: minConfidence %.2f", wr*100, cfg.MinConfidence))
	}

	switch {
	case avg < -0.5:
		cfg.CooldownSeconds = min(cfg.CooldownSeconds+10, 60)
		res.Changes = append(res.Changes, fmt.Sprintf("avg pips %.2f: cooldown %ds", avg, cfg.CooldownSeconds))
	case avg > 2.0:
		cfg.CooldownSeconds = max(cfg.CooldownSeconds-5, 5)
		res.Changes = append(res.Changes, fmt.Sprintf("avg pips %.2f: cooldown %ds", avg, cfg.CooldownSeconds))
	}

	switch {
	case wr >= 0.55 && cfg.MaxConcurrentTrades < 5:
		cfg.MaxConcurrentTrades++
		res.Changes = append(res.Changes, fmt.Sprintf("maxConcurrentTrades %d", cfg.MaxConcurrentTrades))
	case wr < 0.45:
		floor := max(1, activeSignals)
		if cfg.MaxConcurrentTrades-1 >= floor {
			cfg.MaxConcurrentTrades--
			res.Changes = append(res.Changes, fmt.Sprintf("maxConcurrentTrades %d", cfg.MaxConcurrentTrades))
		}
	}

	type scored struct {
		name  string
		score float64
	}
	var scores []scored
	maxScore := math.Inf(-1)
	for _, name := range sortedKeys(a.byStrategy) {
		b := a.byStrategy[name]
		if b.trades < 5 {
			continue
		}
		s := b.winRate() * b.avgPips()
		scores = append(scores, scored{name, s})
		maxScore = math.Max(maxScore, s)
	}
	priorities := map[string]float64{}
	for _, s := range scores {
		normalized := 1.0
		if maxScore > 0 {
			normalized = s.score / maxScore
		}
		priorities[s.name] = band(normalized, []float64{0.8, 0.6, 0.4, 0.2}, []float64{1.5, 1.2, 1.0, 0.8, 0.6})
	}
	if len(scores) > 0 {
		sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
		res.Changes = append(res.Changes, fmt.Sprintf("best strategy %s (score %.2f)", scores[0].name, scores[0].score))
	}
	t.penalizeStreaks(priorities, a, learningStreakFactor, res)
	t.state.StrategyPriority = priorities
}

func (t *Tuner) optimize(cfg *config.EngineConfig, a analysis, res *Result) {
	wr := a.overall.winRate()
	avg := a.overall.avgPips()

	bestTh, bestMetric := 40, 0.0
	for _, th := range thresholds {
		b := a.byThreshold[th]
		if b == nil || b.trades < 15 {
			continue
		}
		if m := b.winRate() * float64(b.trades); m > bestMetric {
			bestTh, bestMetric = th, m
		}
	}
	cfg.MinConfidence = float64(bestTh) / 100
	res.Changes = append(res.Changes, fmt.Sprintf("optimal minConfidence %.2f", cfg.MinConfidence))

	table := map[string]string{}
	for _, ctxKey := range sortedKeys(a.byContext) {
		if a.byContext[ctxKey].trades < 5 {
			continue
		}
		inner := a.byCtxStrat[ctxKey]
		best, bestWR := "", 0.0
		for _, name := range sortedKeys(inner) {
			b := inner[name]
			if b.trades >= 3 && b.winRate() > bestWR {
				best, bestWR = name, b.winRate()
			}
		}
		if best != "" {
			table[ctxKey] = best
			res.Changes = append(res.Changes, fmt.Sprintf("context %s -> %s (win rate %.1f%%)", ctxKey, best, bestWR*100))
		}
	}
	t.state.BestStrategyPerContext = table

	priorities := map[string]float64{}
	for _, name := range sortedKeys(a.byStrategy) {
		b := a.byStrategy[name]
		if b.trades < 10 {
			continue
		}
		quality := b.winRate()*2 + b.avgPips()/10
		priorities[name] = band(quality, []float64{1.5, 1.2, 0.9, 0.6}, []float64{2.0, 1.5, 1.0, 0.7, 0.4})
	}
	t.penalizeStreaks(priorities, a, optimizeStreakFactor, res)
	t.state.StrategyPriority = priorities

	switch {
	case avg < 0:
		cfg.MinSignalIntervalSeconds = min(cfg.MinSignalIntervalSeconds+30, 300)
	case avg > 2.0:
		cfg.MinSignalIntervalSeconds = max(cfg.MinSignalIntervalSeconds-15, 30)
	}

	switch {
	case wr >= 0.55:
		cfg.MaxDailyTrades = 50
	case wr >= 0.50:
		cfg.MaxDailyTrades = 30
	default:
		cfg.MaxDailyTrades = 20
	}
	res.Changes = append(res.Changes, fmt.Sprintf("win rate %.1f%%: maxDailyTrades %d, minSignalInterval %ds",
		wr*100, cfg.MaxDailyTrades, cfg.MinSignalIntervalSeconds))

	var bad []int
	for hour, b := range a.byHour {
		if b.trades >= 5 && b.winRate() < 0.30 {
			bad = append(bad, hour)
		}
	}
	sort.Ints(bad)
	t.state.BadHours = bad
	if len(bad) > 0 {
		res.Changes = append(res.Changes, fmt.Sprintf("bad hours (UTC) %v", bad))
	}
}

// penalizeStreaks scales down strategies whose most recent trades are a loss
// streak and records the pattern.
func (t *Tuner) penalizeStreaks(priorities map[string]float64, a analysis, factor float64, res *Result) {
	now := t.now().UTC()
	for _, name := range sortedKeys(a.trailingLoss) {
		streak := a.trailingLoss[name]
		if streak < lossStreakLength {
			continue
		}
		base, ok := priorities[name]
		if !ok {
			base = 1.0
		}
		priorities[name] = round2(base * factor)
		t.state.LosingPatterns = append(t.state.LosingPatterns, LosingPattern{
			Strategy:   name,
			Context:    a.lastContext[name],
			Streak:     streak,
			DetectedAt: now,
		})
		res.Changes = append(res.Changes, fmt.Sprintf("%s loss streak %d: priority %.2f", name, streak, priorities[name]))
	}
	if n := len(t.state.LosingPatterns); n > maxLosingPatterns {
		t.state.LosingPatterns = t.state.LosingPatterns[n-maxLosingPatterns:]
	}
}

// Priority is the learned weight for a strategy in the given context.
func (t *Tuner) Priority(name string, ctx market.Context) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.state.StrategyPriority[name]
	if !ok {
		p = 1.0
	}
	if t.state.Mode == ModeOptimization && t.state.BestStrategyPerContext[ctx.Key()] == name {
		p *= contextBoost
	}
	return p
}

// MinSelectionScore is the ranking floor for the current phase.
func (t *Tuner) MinSelectionScore() float64 {
	switch t.Mode() {
	case ModeLearning:
		return 0.35
	case ModeOptimization:
		return 0.40
	default:
		return strategy.MinScoreExploration
	}
}

// IsBadHour reports whether ts falls in a learned losing hour (UTC).
func (t *Tuner) IsBadHour(ts time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := ts.UTC().Hour()
	for _, bad := range t.state.BadHours {
		if bad == h {
			return true
		}
	}
	return false
}

func band(v float64, cuts, values []float64) float64 {
	for i, c := range cuts {
		if v >= c {
			return values[i]
		}
	}
	return values[len(values)-1]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
