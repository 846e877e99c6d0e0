package signal

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
)

// Evaluator turns the cycle's context into a proposal. ok=false means the
// strategy has nothing to say this cycle. Confidence floors applied inside an
// evaluator are advisory; the router enforces the configured minimum.
type Evaluator func(ctx market.Context, snap *market.Snapshot) (p Proposal, ok bool)

// Registry maps strategy names to evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: map[string]Evaluator{}}
}

func (r *Registry) Register(name string, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[name] = e
}

func (r *Registry) Lookup(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.evaluators))
	for n := range r.evaluators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs the named evaluator and clamps its confidence to [0,1].
func (r *Registry) Evaluate(name string, ctx market.Context, snap *market.Snapshot) (Proposal, bool, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return Proposal{}, false, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	p, ok := e(ctx, snap)
	if !ok {
		return Proposal{}, false, nil
	}
	p.Confidence = clampConfidence(p.Confidence)
	return p, true, nil
}

// DefaultRegistry registers an evaluator for every catalog strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(strategy.TrendFollowing, TrendFollowing)
	r.Register(strategy.MeanReversion, MeanReversion)
	r.Register(strategy.TrendPullback, TrendPullback)
	r.Register(strategy.Breakout, Breakout)
	r.Register(strategy.Momentum, Momentum)
	r.Register(strategy.Scalping, Scalping)
	r.Register(strategy.RangeTrading, RangeTrading)
	r.Register(strategy.VolatilityBreakout, VolatilityBreakout)
	return r
}

func in(v string, set ...string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TrendFollowing trades with a directional trend when MACD/RSI confirm.
func TrendFollowing(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	buy := market.IsUpTrend(ctx.Trend)
	if !buy && !market.IsDownTrend(ctx.Trend) {
		return Proposal{}, false
	}

	conf := 0.50
	reasons := []string{ctx.Trend}

	strongWith, with, against := market.MACDStrongBullish, market.MACDBullish, market.IsBearish(ctx.MACDState)
	if !buy {
		strongWith, with, against = market.MACDStrongBearish, market.MACDBearish, market.IsBullish(ctx.MACDState)
	}
	switch {
	case ctx.MACDState == strongWith:
		conf += 0.20
		reasons = append(reasons, "macd strong")
	case ctx.MACDState == with:
		conf += 0.15
		reasons = append(reasons, "macd confirms")
	case ctx.MACDState == market.MACDNeutral:
		conf += 0.05
	case against:
		conf -= 0.10
		reasons = append(reasons, "macd against")
	}

	if buy {
		if ctx.RSIState == market.RSIOverbought {
			return Proposal{}, false
		}
		if in(ctx.RSIState, market.RSIStrong, market.RSINeutral) {
			conf += 0.05
		}
		if in(ctx.BBPosition, market.BBMiddle, market.BBLowerHalf) {
			conf += 0.10
		} else if ctx.BBPosition == market.BBNearUpper {
			conf -= 0.05
		}
	} else {
		if ctx.RSIState == market.RSIOversold {
			return Proposal{}, false
		}
		if in(ctx.RSIState, market.RSIWeak, market.RSINeutral) {
			conf += 0.05
		}
		if in(ctx.BBPosition, market.BBMiddle, market.BBUpperHalf) {
			conf += 0.10
		} else if ctx.BBPosition == market.BBNearLower {
			conf -= 0.05
		}
	}

	if market.IsStrongTrend(ctx.Trend) {
		conf += 0.10
	}
	if conf < 0.30 {
		return Proposal{}, false
	}
	conf = math.Min(conf, 0.95)

	sl, tp := 15.0, 25.0
	switch ctx.Volatility {
	case market.VolHigh:
		sl, tp = 20, 35
	case market.VolLow:
		sl, tp = 10, 15
	}

	action := ActionBuy
	if !buy {
		action = ActionSell
	}
	return Proposal{Action: action, Confidence: conf, SLPips: sl, TPPips: tp,
		Reason: fmt.Sprintf("trend following: %v", reasons)}, true
}

// MeanReversion fades RSI/Bollinger extremes, with less conviction against
// the prevailing trend.
func MeanReversion(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	action, conf, why := "", 0.0, ""
	switch {
	case ctx.RSIState == market.RSIOversold:
		action, conf, why = ActionBuy, 0.75, "rsi oversold"
	case ctx.RSIState == market.RSIOverbought:
		action, conf, why = ActionSell, 0.75, "rsi overbought"
	case ctx.RSIState == market.RSIWeak:
		action, conf, why = ActionBuy, 0.60, "rsi weak"
	case ctx.RSIState == market.RSIStrong:
		action, conf, why = ActionSell, 0.60, "rsi strong"
	case in(ctx.BBPosition, market.BBNearLower, market.BBLowerHalf):
		action, conf, why = ActionBuy, 0.55, "lower band"
	case in(ctx.BBPosition, market.BBNearUpper, market.BBUpperHalf):
		action, conf, why = ActionSell, 0.55, "upper band"
	case ctx.Trend == market.TrendSideways && ctx.RSIState == market.RSINeutral && ctx.RSI < 52:
		action, conf, why = ActionBuy, 0.45, "sideways below mid"
	case ctx.Trend == market.TrendSideways && ctx.RSIState == market.RSINeutral && ctx.RSI > 56:
		action, conf, why = ActionSell, 0.45, "sideways above mid"
	case ctx.MarketRegime == market.RegimeQuiet && ctx.RSI < 48:
		action, conf, why = ActionBuy, 0.40, "quiet below mid"
	case ctx.MarketRegime == market.RegimeQuiet && ctx.RSI > 52:
		action, conf, why = ActionSell, 0.40, "quiet above mid"
	case ctx.Trend == market.TrendSideways:
		action, conf, why = ActionBuy, 0.35, "sideways default"
		if ctx.RSI >= 50 {
			action = ActionSell
		}
	default:
		return Proposal{}, false
	}

	if (action == ActionBuy && market.IsDownTrend(ctx.Trend)) || (action == ActionSell && market.IsUpTrend(ctx.Trend)) {
		penalty := 0.15
		if market.IsStrongTrend(ctx.Trend) {
			penalty = 0.25
		}
		conf -= penalty
		why += ", against trend"
	}

	return Proposal{Action: action, Confidence: conf, SLPips: 12, TPPips: 18,
		Reason: "mean reversion: " + why}, true
}

// TrendPullback buys dips in up-trends and sells rallies in down-trends.
func TrendPullback(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	switch {
	case market.IsUpTrend(ctx.Trend) &&
		in(ctx.RSIState, market.RSIWeak, market.RSINeutral) &&
		in(ctx.BBPosition, market.BBLowerHalf, market.BBMiddle) &&
		market.IsBullish(ctx.MACDState):
		return Proposal{Action: ActionBuy, Confidence: 0.80, SLPips: 18, TPPips: 30, Reason: "pullback in uptrend"}, true
	case market.IsDownTrend(ctx.Trend) &&
		in(ctx.RSIState, market.RSIStrong, market.RSINeutral) &&
		in(ctx.BBPosition, market.BBUpperHalf, market.BBMiddle) &&
		market.IsBearish(ctx.MACDState):
		return Proposal{Action: ActionSell, Confidence: 0.80, SLPips: 18, TPPips: 30, Reason: "pullback in downtrend"}, true
	}
	return Proposal{}, false
}

// Breakout trades band breaks out of a range.
func Breakout(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	switch {
	case ctx.BBPosition == market.BBNearUpper &&
		(ctx.Trend == market.TrendSideways || market.IsUpTrend(ctx.Trend)) &&
		in(ctx.RSIState, market.RSIStrong, market.RSINeutral):
		return Proposal{Action: ActionBuy, Confidence: 0.65, SLPips: 15, TPPips: 30, Reason: "upper band breakout"}, true
	case ctx.BBPosition == market.BBNearLower &&
		(ctx.Trend == market.TrendSideways || market.IsDownTrend(ctx.Trend)) &&
		in(ctx.RSIState, market.RSIWeak, market.RSINeutral):
		return Proposal{Action: ActionSell, Confidence: 0.65, SLPips: 15, TPPips: 30, Reason: "lower band breakout"}, true
	}
	return Proposal{}, false
}

// Momentum rides strong trends with strong MACD.
func Momentum(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	sl, tp := 15.0, 30.0
	if ctx.Volatility == market.VolHigh {
		sl, tp = 20, 40
	}
	switch {
	case ctx.Trend == market.TrendStrongUp && market.IsBullish(ctx.MACDState) &&
		in(ctx.RSIState, market.RSIStrong, market.RSINeutral):
		return Proposal{Action: ActionBuy, Confidence: 0.75, SLPips: sl, TPPips: tp, Reason: "bullish momentum"}, true
	case ctx.Trend == market.TrendStrongDown && market.IsBearish(ctx.MACDState) &&
		in(ctx.RSIState, market.RSIWeak, market.RSINeutral):
		return Proposal{Action: ActionSell, Confidence: 0.75, SLPips: sl, TPPips: tp, Reason: "bearish momentum"}, true
	}
	return Proposal{}, false
}

// Scalping takes small band-edge reversals.
func Scalping(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed {
		return Proposal{}, false
	}
	switch {
	case in(ctx.BBPosition, market.BBLowerHalf, market.BBNearLower) && in(ctx.RSIState, market.RSIWeak, market.RSIOversold):
		return Proposal{Action: ActionBuy, Confidence: 0.60, SLPips: 8, TPPips: 12, Reason: "scalp lower band"}, true
	case in(ctx.BBPosition, market.BBUpperHalf, market.BBNearUpper) && in(ctx.RSIState, market.RSIStrong, market.RSIOverbought):
		return Proposal{Action: ActionSell, Confidence: 0.60, SLPips: 8, TPPips: 12, Reason: "scalp upper band"}, true
	}
	return Proposal{}, false
}

// RangeTrading buys the bottom and sells the top of a ranging market.
func RangeTrading(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed || !in(ctx.MarketRegime, market.RegimeRanging, market.RegimeQuiet) {
		return Proposal{}, false
	}
	switch {
	case in(ctx.BBPosition, market.BBLowerHalf, market.BBNearLower) && in(ctx.RSIState, market.RSIWeak, market.RSIOversold, market.RSINeutral):
		return Proposal{Action: ActionBuy, Confidence: 0.65, SLPips: 12, TPPips: 20, Reason: "range bottom"}, true
	case in(ctx.BBPosition, market.BBUpperHalf, market.BBNearUpper) && in(ctx.RSIState, market.RSIStrong, market.RSIOverbought, market.RSINeutral):
		return Proposal{Action: ActionSell, Confidence: 0.65, SLPips: 12, TPPips: 20, Reason: "range top"}, true
	}
	return Proposal{}, false
}

// VolatilityBreakout follows expansion moves in high volatility.
func VolatilityBreakout(ctx market.Context, _ *market.Snapshot) (Proposal, bool) {
	if !ctx.TradeAllowed || ctx.Volatility != market.VolHigh {
		return Proposal{}, false
	}
	switch {
	case market.IsUpTrend(ctx.Trend) && in(ctx.BBPosition, market.BBNearUpper, market.BBUpperHalf) && market.IsBullish(ctx.MACDState):
		return Proposal{Action: ActionBuy, Confidence: 0.70, SLPips: 25, TPPips: 45, Reason: "volatility expansion up"}, true
	case market.IsDownTrend(ctx.Trend) && in(ctx.BBPosition, market.BBNearLower, market.BBLowerHalf) && market.IsBearish(ctx.MACDState):
		return Proposal{Action: ActionSell, Confidence: 0.70, SLPips: 25, TPPips: 45, Reason: "volatility expansion down"}, true
	}
	return Proposal{}, false
}
