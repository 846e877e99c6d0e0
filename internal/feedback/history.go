package feedback

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// HistoryEntry is one processed trade.
type HistoryEntry struct {
	SignalID    string    `json:"signal_id"`
	Strategy    string    `json:"strategy"`
	Direction   string    `json:"direction"`
	Result      string    `json:"result"`
	Pips        float64   `json:"pips"`
	Confidence  float64   `json:"confidence,omitempty"`
	Trend       string    `json:"trend,omitempty"`
	Volatility  string    `json:"volatility,omitempty"`
	Timestamp   string    `json:"timestamp"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (e HistoryEntry) Win() bool { return e.Result == ResultWin }

// Time is when the trade closed, falling back to when it was processed.
func (e HistoryEntry) Time() time.Time {
	if t, ok := parseTimestamp(e.Timestamp); ok {
		return t
	}
	return e.ProcessedAt.UTC()
}

// ContextKey groups trades by the market context they were taken in.
func (e HistoryEntry) ContextKey() string {
	if e.Trend == "" && e.Volatility == "" {
		return ""
	}
	return e.Trend + "_" + e.Volatility
}

// History is the unbounded trade log.
type History struct {
	mu    sync.Mutex
	log   *store.AppendLog
	count int
}

func OpenHistory(path string) (*History, error) {
	log, err := store.NewAppendLog(path)
	if err != nil {
		return nil, err
	}
	h := &History{log: log}
	if err := log.Scan(func([]byte) error { h.count++; return nil }); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) Append(entries ...HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	items := make([]any, len(entries))
	for i := range entries {
		items[i] = entries[i]
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.log.Append(items...); err != nil {
		return err
	}
	h.count += len(entries)
	return nil
}

// All returns every entry in file order. Corrupt lines are skipped.
func (h *History) All() ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryEntry
	err := h.log.Scan(func(line []byte) error {
		var e HistoryEntry
		if err := json.Unmarshal(line, &e); err != nil {
			observ.Warn("history_line_skipped", map[string]any{"error": err.Error()})
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// Recent returns the last n entries, oldest first.
func (h *History) Recent(n int) ([]HistoryEntry, error) {
	all, err := h.All()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (h *History) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Today summarises trades that closed on now's UTC day.
func (h *History) Today(now time.Time) (Summary, error) {
	all, err := h.All()
	if err != nil {
		return Summary{}, err
	}
	return summarize(all, func(e HistoryEntry) bool {
		t := e.Time()
		y1, m1, d1 := t.Date()
		y2, m2, d2 := now.UTC().Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}), nil
}

func summarize(entries []HistoryEntry, keep func(HistoryEntry) bool) Summary {
	var sum Summary
	pips := decimal.Zero
	for _, e := range entries {
		if keep != nil && !keep(e) {
			continue
		}
		sum.TotalTrades++
		if e.Win() {
			sum.Wins++
		} else {
			sum.Losses++
		}
		pips = pips.Add(decimal.NewFromFloat(e.Pips))
	}
	sum.TotalPips = pips.InexactFloat64()
	if sum.TotalTrades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.TotalTrades) * 100
	}
	return sum
}
