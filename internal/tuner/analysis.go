package tuner

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/signal-engine/internal/feedback"
)

var thresholds = []int{30, 35, 40, 45, 50, 55, 60}

type bucket struct {
	trades int
	wins   int
	pips   decimal.Decimal
}

func (b *bucket) add(e feedback.HistoryEntry) {
	b.trades++
	if e.Win() {
		b.wins++
	}
	b.pips = b.pips.Add(decimal.NewFromFloat(e.Pips))
}

func (b *bucket) winRate() float64 {
	if b == nil || b.trades == 0 {
		return 0
	}
	return float64(b.wins) / float64(b.trades)
}

func (b *bucket) avgPips() float64 {
	if b == nil || b.trades == 0 {
		return 0
	}
	return b.pips.Div(decimal.NewFromInt(int64(b.trades))).InexactFloat64()
}

// analysis is the breakdown of a trade window.
type analysis struct {
	overall      bucket
	byStrategy   map[string]*bucket
	byContext    map[string]*bucket
	byCtxStrat   map[string]map[string]*bucket
	byThreshold  map[int]*bucket
	byHour       map[int]*bucket
	trailingLoss map[string]int
	lastContext  map[string]string
}

func analyze(trades []feedback.HistoryEntry) analysis {
	a := analysis{
		byStrategy:   map[string]*bucket{},
		byContext:    map[string]*bucket{},
		byCtxStrat:   map[string]map[string]*bucket{},
		byThreshold:  map[int]*bucket{},
		byHour:       map[int]*bucket{},
		trailingLoss: map[string]int{},
		lastContext:  map[string]string{},
	}
	for _, e := range trades {
		a.overall.add(e)
		get(a.byStrategy, e.Strategy).add(e)
		get(a.byHour, e.Time().Hour()).add(e)

		if key := e.ContextKey(); key != "" {
			get(a.byContext, key).add(e)
			inner, ok := a.byCtxStrat[key]
			if !ok {
				inner = map[string]*bucket{}
				a.byCtxStrat[key] = inner
			}
			get(inner, e.Strategy).add(e)
		}

		if e.Confidence > 0 {
			for _, th := range thresholds {
				if e.Confidence >= float64(th)/100-1e-9 {
					get(a.byThreshold, th).add(e)
				}
			}
		}

		if e.Win() {
			a.trailingLoss[e.Strategy] = 0
		} else {
			a.trailingLoss[e.Strategy]++
		}
		a.lastContext[e.Strategy] = e.ContextKey()
	}
	return a
}

func get[K comparable](m map[K]*bucket, k K) *bucket {
	b, ok := m[k]
	if !ok {
		b = &bucket{}
		m[k] = b
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
