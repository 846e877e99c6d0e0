package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func snapshot(trend, vol string, rsi float64, macd MACD, ema EMA, bid float64) *Snapshot {
	return &Snapshot{
		Bid:    bid,
		Symbol: "EURUSD",
		Indicators: &Indicators{
			RSI:       f64(rsi),
			MACD:      &macd,
			EMA:       &ema,
			Bollinger: &Bollinger{Upper: 1.1100, Middle: 1.1050, Lower: 1.1000},
			ATR:       0.0008,
		},
		Analysis: Analysis{Trend: trend, Volatility: vol},
	}
}

func TestClassifyMissingData(t *testing.T) {
	c := Classifier{LowVolatilityPenalty: 0.15}

	testCases := []struct {
		name string
		snap *Snapshot
	}{
		{name: "nil_snapshot", snap: nil},
		{name: "no_indicators", snap: &Snapshot{Bid: 1.1}},
		{name: "no_bid", snap: &Snapshot{Indicators: &Indicators{RSI: f64(50), MACD: &MACD{}, EMA: &EMA{}, Bollinger: &Bollinger{}}}},
		{name: "no_rsi", snap: &Snapshot{Bid: 1.1, Indicators: &Indicators{MACD: &MACD{}, EMA: &EMA{}, Bollinger: &Bollinger{}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := c.Classify(tc.snap)
			assert.False(t, ctx.TradeAllowed)
			assert.Equal(t, TrendNone, ctx.Trend)
			assert.Equal(t, RegimeUndefined, ctx.MarketRegime)
			assert.Equal(t, 0.0, ctx.Confidence)
		})
	}
}

func TestClassifyStrongUptrendWithConfirmations(t *testing.T) {
	c := Classifier{LowVolatilityPenalty: 0.15}
	snap := snapshot("STRONG_UP", "NORMAL", 55,
		MACD{Main: 0.0010, Signal: 0.0008, Histogram: 0.0002},
		EMA{Fast: 1.1060, Slow: 1.1050, Long: 1.1040}, 1.1065)

	ctx := c.Classify(snap)
	assert.True(t, ctx.TradeAllowed)
	assert.Equal(t, RSINeutral, ctx.RSIState)
	assert.Equal(t, MACDBullish, ctx.MACDState)
	assert.Equal(t, RegimeTrending, ctx.MarketRegime)
	assert.Equal(t, BBMiddle, ctx.BBPosition)
	// 0.85 + 0.10 + 0.10 capped at 0.95
	assert.InDelta(t, 0.95, ctx.Confidence, 1e-9)
}

func TestClassifyDivergenceReducesInsteadOfBlocking(t *testing.T) {
	c := Classifier{LowVolatilityPenalty: 0.15}
	snap := snapshot("UP", "NORMAL", 55,
		MACD{Main: 0.0010, Signal: 0.0012, Histogram: -0.0001},
		EMA{Fast: 1.1060, Slow: 1.1050, Long: 1.1040}, 1.1065)

	ctx := c.Classify(snap)
	assert.True(t, ctx.TradeAllowed)
	assert.Equal(t, MACDBearish, ctx.MACDState)
	// 0.85 + 0.10 (rsi neutral) - 0.15 divergence
	assert.InDelta(t, 0.80, ctx.Confidence, 1e-9)
	assert.Contains(t, ctx.Reasons, "indicator_divergence")
}

func TestClassifyLowVolatilityPolicy(t *testing.T) {
	snap := snapshot("SIDEWAYS", "LOW", 50, MACD{}, EMA{Fast: 1.105, Slow: 1.105, Long: 1.105}, 1.1050)

	permissive := Classifier{LowVolatilityPenalty: 0.15}.Classify(snap)
	assert.True(t, permissive.TradeAllowed)
	assert.Equal(t, RegimeQuiet, permissive.MarketRegime)
	assert.InDelta(t, 0.25, permissive.Confidence, 1e-9)

	strict := Classifier{BlockLowVolatility: true}.Classify(snap)
	assert.False(t, strict.TradeAllowed)
	assert.Contains(t, strict.Reasons, "low_volatility_blocked")
}

func TestClassifyChoppyBlocks(t *testing.T) {
	snap := snapshot("UP", "HIGH", 50, MACD{}, EMA{}, 1.1050)
	ctx := Classifier{}.Classify(snap)
	assert.Equal(t, RegimeChoppy, ctx.MarketRegime)
	assert.False(t, ctx.TradeAllowed)
}

func TestBuckets(t *testing.T) {
	rsi := map[float64]string{75: RSIOverbought, 65: RSIStrong, 50: RSINeutral, 35: RSIWeak, 20: RSIOversold, 70: RSIStrong, 30: RSIWeak}
	for v, want := range rsi {
		assert.Equal(t, want, RSIBucket(v), "rsi %v", v)
	}

	assert.Equal(t, MACDStrongBullish, MACDBucket(MACD{Main: 1, Histogram: 0.5}))
	assert.Equal(t, MACDBullish, MACDBucket(MACD{Main: 1, Histogram: 0.2}))
	assert.Equal(t, MACDNeutral, MACDBucket(MACD{Main: 1}))
	assert.Equal(t, MACDBearish, MACDBucket(MACD{Main: -1, Histogram: -0.2}))
	assert.Equal(t, MACDStrongBearish, MACDBucket(MACD{Main: -1, Histogram: -0.4}))

	bb := Bollinger{Upper: 2, Lower: 1}
	assert.Equal(t, BBNearUpper, BollingerBucket(1.95, bb))
	assert.Equal(t, BBUpperHalf, BollingerBucket(1.8, bb))
	assert.Equal(t, BBMiddle, BollingerBucket(1.5, bb))
	assert.Equal(t, BBLowerHalf, BollingerBucket(1.2, bb))
	assert.Equal(t, BBNearLower, BollingerBucket(1.05, bb))
	assert.Equal(t, BBMiddle, BollingerBucket(1.5, Bollinger{Upper: 1, Lower: 1}))
}

func TestRegimeTable(t *testing.T) {
	testCases := []struct {
		vol, trend, want string
	}{
		{VolHigh, TrendStrongUp, RegimeTrendingVolatile},
		{VolHigh, TrendUp, RegimeChoppy},
		{VolLow, TrendStrongDown, RegimeQuiet},
		{VolNormal, TrendStrongDown, RegimeTrending},
		{VolNormal, TrendSideways, RegimeRanging},
		{VolNormal, TrendDown, RegimeTransitioning},
	}
	for _, tc := range testCases {
		t.Run(tc.vol+"_"+tc.trend, func(t *testing.T) {
			assert.Equal(t, tc.want, Regime(tc.vol, tc.trend))
		})
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	c := Classifier{LowVolatilityPenalty: 0.9}
	for _, trend := range []string{"STRONG_UP", "UP", "SIDEWAYS", "DOWN", "STRONG_DOWN", "garbage"} {
		for _, vol := range []string{"LOW", "NORMAL", "HIGH"} {
			for _, rsi := range []float64{5, 35, 50, 65, 95} {
				snap := snapshot(trend, vol, rsi, MACD{Main: 0.001, Histogram: -0.002},
					EMA{Fast: 1.2, Slow: 1.1, Long: 1.0}, 1.105)
				ctx := c.Classify(snap)
				assert.GreaterOrEqual(t, ctx.Confidence, 0.0)
				assert.LessOrEqual(t, ctx.Confidence, 1.0)
			}
		}
	}
}

func TestReadSnapshot(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadSnapshot(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNoSnapshot)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = ReadSnapshot(bad)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	good := filepath.Join(dir, "market_data.json")
	body := `{"bid":1.1,"symbol":"EURUSD","timeframe":"M5",
	  "indicators":{"rsi":48.2,"macd":{"main":0.1,"signal":0.05,"histogram":0.05},
	  "ema":{"fast":1.1,"slow":1.09,"long":1.08},"bollinger":{"upper":1.2,"middle":1.1,"lower":1.0},"atr":0.001},
	  "analysis":{"trend":"UP","volatility":"NORMAL"}}`
	require.NoError(t, os.WriteFile(good, []byte(body), 0644))
	snap, err := ReadSnapshot(good)
	require.NoError(t, err)
	assert.True(t, snap.Complete())
	assert.Equal(t, "UP", snap.Analysis.Trend)
	assert.InDelta(t, 48.2, *snap.Indicators.RSI, 1e-9)
}
