package strategy

import (
	"fmt"
	"sort"

	"github.com/Rajchodisetti/signal-engine/internal/market"
)

const (
	contextWeight  = 0.70
	priorityWeight = 0.30
	avoidPenalty   = 0.25

	// MinScoreExploration is the selection floor before the tuner has data.
	MinScoreExploration = 0.30
)

// PriorityProvider supplies learned per-strategy weights (default 1.0).
type PriorityProvider interface {
	Priority(name string, ctx market.Context) float64
}

// FixedPriority gives every strategy the same weight.
type FixedPriority float64

func (p FixedPriority) Priority(string, market.Context) float64 { return float64(p) }

// Scored is one ranked candidate for the current cycle.
type Scored struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
	ContextFit float64 `json:"contextFit"`
	MLPriority float64 `json:"mlPriority"`
	Reason     string  `json:"reason"`
}

// ContextScore is matched/total best conditions minus 0.25 per matched avoid
// condition, clamped to [0,1]. Definitions without best conditions score 0.5.
func ContextScore(def Definition, ctx market.Context) float64 {
	total := len(def.Best)
	if total == 0 {
		return 0.5
	}
	score := float64(def.Best.matches(ctx))/float64(total) - avoidPenalty*float64(def.Avoid.matches(ctx))
	return clamp01(score)
}

func Score(def Definition, ctx market.Context, mlPriority float64) Scored {
	cs := ContextScore(def, ctx)
	final := clamp01(contextWeight*cs + priorityWeight*(mlPriority/2.0))

	var reason string
	switch {
	case mlPriority > 1.2:
		reason = fmt.Sprintf("ML recommends (priority %.2f)", mlPriority)
	case cs > 0.7:
		reason = fmt.Sprintf("excellent fit (%.0f%%)", cs*100)
	case cs > 0.5:
		reason = fmt.Sprintf("good fit (%.0f%%)", cs*100)
	default:
		reason = fmt.Sprintf("score %.2f", final)
	}

	return Scored{
		Name:       def.Name,
		Type:       def.Type,
		Score:      final,
		ContextFit: cs,
		MLPriority: mlPriority,
		Reason:     reason,
	}
}

// Rank scores every definition and sorts by score descending, name ascending.
func Rank(defs []Definition, ctx market.Context, p PriorityProvider) []Scored {
	if p == nil {
		p = FixedPriority(1.0)
	}
	out := make([]Scored, 0, len(defs))
	for _, d := range defs {
		out = append(out, Score(d, ctx, p.Priority(d.Name, ctx)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Select returns the first ranked entry at or above minScore that accept
// allows. accept may be nil.
func Select(ranked []Scored, minScore float64, accept func(name string) bool) (Scored, bool) {
	for _, s := range ranked {
		if s.Score < minScore {
			return Scored{}, false
		}
		if accept == nil || accept(s.Name) {
			return s, true
		}
	}
	return Scored{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
