package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
)

func ctxWith(mut func(c *market.Context)) market.Context {
	c := market.Context{
		Trend:        market.TrendSideways,
		Volatility:   market.VolNormal,
		RSIState:     market.RSINeutral,
		RSI:          50,
		MACDState:    market.MACDNeutral,
		BBPosition:   market.BBMiddle,
		MarketRegime: market.RegimeRanging,
		Confidence:   0.5,
		TradeAllowed: true,
	}
	mut(&c)
	return c
}

func TestDefaultRegistryCoversCatalog(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, strategy.Names(), r.Names())

	_, _, err := r.Evaluate("NEWS_FADE", market.DefaultContext(), nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRegistryAcceptsNewStrategies(t *testing.T) {
	r := NewRegistry()
	r.Register("ALWAYS_BUY", func(market.Context, *market.Snapshot) (Proposal, bool) {
		return Proposal{Action: ActionBuy, Confidence: 3}, true
	})
	p, ok, err := r.Evaluate("ALWAYS_BUY", market.DefaultContext(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Confidence, "confidence is clamped")
}

func TestEvaluators(t *testing.T) {
	testCases := []struct {
		name       string
		strategy   string
		ctx        market.Context
		wantOK     bool
		wantAction string
		wantConf   float64
		wantSL     float64
		wantTP     float64
	}{
		{
			name:     "trend_following_strong_up",
			strategy: strategy.TrendFollowing,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.MACDState, c.MarketRegime = market.TrendStrongUp, market.MACDBullish, market.RegimeTrending
			}),
			wantOK: true, wantAction: ActionBuy, wantConf: 0.90, wantSL: 15, wantTP: 25,
		},
		{
			name:     "trend_following_down_high_vol",
			strategy: strategy.TrendFollowing,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.Volatility, c.MACDState, c.BBPosition = market.TrendDown, market.VolHigh, market.MACDStrongBearish, market.BBUpperHalf
			}),
			wantOK: true, wantAction: ActionSell, wantConf: 0.85, wantSL: 20, wantTP: 35,
		},
		{
			name:     "trend_following_overbought_rejects",
			strategy: strategy.TrendFollowing,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.RSIState = market.TrendUp, market.RSIOverbought
			}),
		},
		{
			name:     "trend_following_needs_direction",
			strategy: strategy.TrendFollowing,
			ctx:      ctxWith(func(c *market.Context) {}),
		},
		{
			name:     "trend_following_blocked_context",
			strategy: strategy.TrendFollowing,
			ctx:      ctxWith(func(c *market.Context) { c.Trend, c.TradeAllowed = market.TrendUp, false }),
		},
		{
			name:     "mean_reversion_oversold",
			strategy: strategy.MeanReversion,
			ctx:      ctxWith(func(c *market.Context) { c.RSIState, c.RSI = market.RSIOversold, 25 }),
			wantOK:   true, wantAction: ActionBuy, wantConf: 0.75, wantSL: 12, wantTP: 18,
		},
		{
			name:     "mean_reversion_counter_trend_penalty",
			strategy: strategy.MeanReversion,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.RSIState, c.RSI = market.TrendStrongUp, market.RSIOverbought, 78
			}),
			wantOK: true, wantAction: ActionSell, wantConf: 0.50, wantSL: 12, wantTP: 18,
		},
		{
			name:     "mean_reversion_sideways_default_sell",
			strategy: strategy.MeanReversion,
			ctx:      ctxWith(func(c *market.Context) { c.RSI = 54 }),
			wantOK:   true, wantAction: ActionSell, wantConf: 0.35, wantSL: 12, wantTP: 18,
		},
		{
			name:     "pullback_buy",
			strategy: strategy.TrendPullback,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.RSIState, c.BBPosition, c.MACDState = market.TrendUp, market.RSIWeak, market.BBLowerHalf, market.MACDBullish
			}),
			wantOK: true, wantAction: ActionBuy, wantConf: 0.80, wantSL: 18, wantTP: 30,
		},
		{
			name:     "breakout_sell",
			strategy: strategy.Breakout,
			ctx:      ctxWith(func(c *market.Context) { c.BBPosition = market.BBNearLower }),
			wantOK:   true, wantAction: ActionSell, wantConf: 0.65, wantSL: 15, wantTP: 30,
		},
		{
			name:     "momentum_high_vol",
			strategy: strategy.Momentum,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.Volatility, c.MACDState = market.TrendStrongUp, market.VolHigh, market.MACDStrongBullish
			}),
			wantOK: true, wantAction: ActionBuy, wantConf: 0.75, wantSL: 20, wantTP: 40,
		},
		{
			name:     "scalping_upper",
			strategy: strategy.Scalping,
			ctx:      ctxWith(func(c *market.Context) { c.BBPosition, c.RSIState = market.BBNearUpper, market.RSIOverbought }),
			wantOK:   true, wantAction: ActionSell, wantConf: 0.60, wantSL: 8, wantTP: 12,
		},
		{
			name:     "range_requires_regime",
			strategy: strategy.RangeTrading,
			ctx: ctxWith(func(c *market.Context) {
				c.BBPosition, c.MarketRegime = market.BBLowerHalf, market.RegimeTransitioning
			}),
		},
		{
			name:     "range_bottom",
			strategy: strategy.RangeTrading,
			ctx:      ctxWith(func(c *market.Context) { c.BBPosition = market.BBLowerHalf }),
			wantOK:   true, wantAction: ActionBuy, wantConf: 0.65, wantSL: 12, wantTP: 20,
		},
		{
			name:     "volatility_breakout_requires_high",
			strategy: strategy.VolatilityBreakout,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.BBPosition, c.MACDState = market.TrendUp, market.BBNearUpper, market.MACDBullish
			}),
		},
		{
			name:     "volatility_breakout_down",
			strategy: strategy.VolatilityBreakout,
			ctx: ctxWith(func(c *market.Context) {
				c.Trend, c.Volatility, c.BBPosition, c.MACDState = market.TrendDown, market.VolHigh, market.BBNearLower, market.MACDBearish
			}),
			wantOK: true, wantAction: ActionSell, wantConf: 0.70, wantSL: 25, wantTP: 45,
		},
	}

	r := DefaultRegistry()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok, err := r.Evaluate(tc.strategy, tc.ctx, nil)
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.wantAction, p.Action)
			assert.InDelta(t, tc.wantConf, p.Confidence, 1e-9)
			assert.Equal(t, tc.wantSL, p.SLPips)
			assert.Equal(t, tc.wantTP, p.TPPips)
			assert.NotEmpty(t, p.Reason)
		})
	}
}
