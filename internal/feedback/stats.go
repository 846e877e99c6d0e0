package feedback

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// StrategyStats accumulates outcomes for one strategy. AvgLoss is kept as a
// positive magnitude.
type StrategyStats struct {
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	TotalTrades int             `json:"total_trades"`
	TotalPips   decimal.Decimal `json:"total_pips"`
	AvgWin      decimal.Decimal `json:"avg_win"`
	AvgLoss     decimal.Decimal `json:"avg_loss"`
}

// Apply folds one outcome into the running totals.
func (s *StrategyStats) Apply(result string, pips decimal.Decimal) {
	if result == ResultWin {
		s.Wins++
		n := decimal.NewFromInt(int64(s.Wins))
		s.AvgWin = s.AvgWin.Mul(n.Sub(decimal.NewFromInt(1))).Add(pips).Div(n)
	} else {
		s.Losses++
		n := decimal.NewFromInt(int64(s.Losses))
		s.AvgLoss = s.AvgLoss.Mul(n.Sub(decimal.NewFromInt(1))).Add(pips.Abs()).Div(n)
	}
	s.TotalTrades = s.Wins + s.Losses
	s.TotalPips = s.TotalPips.Add(pips)
}

// Performance is the derived view used for reporting.
type Performance struct {
	Exists       bool    `json:"exists"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"` // percent
	ProfitFactor float64 `json:"profit_factor"`
	TotalPips    float64 `json:"total_pips"`
}

func (s StrategyStats) Performance() Performance {
	p := Performance{Exists: true, TotalTrades: s.Wins + s.Losses}
	p.TotalPips = s.TotalPips.InexactFloat64()
	if p.TotalTrades > 0 {
		p.WinRate = float64(s.Wins) / float64(p.TotalTrades) * 100
	}
	grossLoss := s.AvgLoss.Mul(decimal.NewFromInt(int64(s.Losses)))
	if grossLoss.IsPositive() {
		grossProfit := s.AvgWin.Mul(decimal.NewFromInt(int64(s.Wins)))
		p.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
	}
	return p
}

// Summary aggregates outcomes across strategies or a time window.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"total_wins"`
	Losses      int     `json:"total_losses"`
	WinRate     float64 `json:"win_rate"` // percent
	TotalPips   float64 `json:"total_pips"`
}

func (s Summary) fields() map[string]any {
	return map[string]any{
		"total_trades": s.TotalTrades,
		"wins":         s.Wins,
		"losses":       s.Losses,
		"win_rate":     s.WinRate,
		"total_pips":   s.TotalPips,
	}
}

// StatsStore holds per-strategy stats persisted as one JSON document.
type StatsStore struct {
	mu    sync.RWMutex
	path  string
	stats map[string]*StrategyStats
}

func OpenStats(path string) (*StatsStore, error) {
	s := &StatsStore{path: path, stats: map[string]*StrategyStats{}}
	if _, err := store.ReadJSON(path, &s.stats); err != nil {
		return nil, fmt.Errorf("failed to load strategy stats: %w", err)
	}
	if s.stats == nil {
		s.stats = map[string]*StrategyStats{}
	}
	return s, nil
}

// Apply records an outcome for strategy. Call Save to persist.
func (s *StatsStore) Apply(strategy, result string, pips decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[strategy]
	if !ok {
		st = &StrategyStats{}
		s.stats[strategy] = st
	}
	st.Apply(result, pips)
}

func (s *StatsStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.WriteJSON(s.path, s.stats)
}

func (s *StatsStore) Get(strategy string) (StrategyStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[strategy]
	if !ok {
		return StrategyStats{}, false
	}
	return *st, true
}

// Names returns the strategies with recorded outcomes, sorted.
func (s *StatsStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.stats))
	for name := range s.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears a strategy's stats and persists the change.
func (s *StatsStore) Reset(strategy string) error {
	s.mu.Lock()
	delete(s.stats, strategy)
	s.mu.Unlock()
	observ.Log("strategy_stats_reset", map[string]any{"strategy": strategy})
	return s.Save()
}

func (s *StatsStore) Performance(strategy string) Performance {
	st, ok := s.Get(strategy)
	if !ok {
		return Performance{}
	}
	return st.Performance()
}

// Overall sums every strategy's stats.
func (s *StatsStore) Overall() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum Summary
	pips := decimal.Zero
	for _, st := range s.stats {
		sum.Wins += st.Wins
		sum.Losses += st.Losses
		sum.TotalTrades += st.TotalTrades
		pips = pips.Add(st.TotalPips)
	}
	sum.TotalPips = pips.InexactFloat64()
	if sum.TotalTrades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.TotalTrades) * 100
	}
	return sum
}
