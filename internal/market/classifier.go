package market

import (
	"math"
	"strings"
)

// Classifier turns a snapshot into a Context.
//
// LOW volatility is a policy choice: with BlockLowVolatility the context is
// not tradeable, otherwise confidence drops by LowVolatilityPenalty.
type Classifier struct {
	BlockLowVolatility   bool
	LowVolatilityPenalty float64
}

const (
	divergencePenalty = 0.15
	confirmationBonus = 0.10
	confidenceCap     = 0.95
)

func (c Classifier) Classify(s *Snapshot) Context {
	ctx := DefaultContext()
	if !s.Complete() {
		ctx.Reasons = append(ctx.Reasons, "snapshot_incomplete")
		return ctx
	}
	in := s.Indicators

	ctx.Trend = normalizeTrend(s.Analysis.Trend)
	ctx.Volatility = normalizeVolatility(s.Analysis.Volatility)
	ctx.RSI = *in.RSI
	ctx.RSIState = RSIBucket(*in.RSI)
	ctx.MACDState = MACDBucket(*in.MACD)
	ctx.BBPosition = BollingerBucket(s.Bid, *in.Bollinger)
	ctx.MarketRegime = Regime(ctx.Volatility, ctx.Trend)
	ctx.Confidence = TrendConfidence(ctx.Trend, s.Bid, *in.EMA)
	ctx.TradeAllowed = true

	up, down := IsUpTrend(ctx.Trend), IsDownTrend(ctx.Trend)
	if up {
		if IsBullish(ctx.MACDState) {
			ctx.Confidence += confirmationBonus
		}
		if ctx.RSIState == RSIStrong || ctx.RSIState == RSINeutral {
			ctx.Confidence += confirmationBonus
		}
	} else if down {
		if IsBearish(ctx.MACDState) {
			ctx.Confidence += confirmationBonus
		}
		if ctx.RSIState == RSIWeak || ctx.RSIState == RSINeutral {
			ctx.Confidence += confirmationBonus
		}
	}
	ctx.Confidence = math.Min(ctx.Confidence, confidenceCap)

	// divergence lowers confidence instead of blocking
	if (up && (IsBearish(ctx.MACDState) || ctx.RSIState == RSIOversold)) ||
		(down && (IsBullish(ctx.MACDState) || ctx.RSIState == RSIOverbought)) {
		ctx.Confidence -= divergencePenalty
		ctx.Reasons = append(ctx.Reasons, "indicator_divergence")
	}

	if ctx.Volatility == VolLow {
		if c.BlockLowVolatility {
			ctx.TradeAllowed = false
			ctx.Reasons = append(ctx.Reasons, "low_volatility_blocked")
		} else {
			ctx.Confidence -= c.LowVolatilityPenalty
			ctx.Reasons = append(ctx.Reasons, "low_volatility_penalty")
		}
	}

	if ctx.MarketRegime == RegimeChoppy {
		ctx.TradeAllowed = false
		ctx.Reasons = append(ctx.Reasons, "choppy_regime")
	}

	ctx.Confidence = clamp01(ctx.Confidence)
	return ctx
}

func normalizeTrend(s string) string {
	switch t := strings.ToUpper(strings.TrimSpace(s)); t {
	case TrendStrongUp, TrendUp, TrendSideways, TrendDown, TrendStrongDown:
		return t
	case "RANGE", "RANGING", "FLAT":
		return TrendSideways
	default:
		return TrendNone
	}
}

func normalizeVolatility(s string) string {
	switch v := strings.ToUpper(strings.TrimSpace(s)); v {
	case VolLow, VolHigh:
		return v
	default:
		return VolNormal
	}
}

// TrendConfidence scores how well the EMA stack agrees with trend.
func TrendConfidence(trend string, bid float64, ema EMA) float64 {
	switch {
	case IsUpTrend(trend):
		if ema.Fast > ema.Slow && ema.Slow > ema.Long && bid > ema.Fast {
			return 0.85
		}
		if ema.Fast > ema.Slow && bid > ema.Fast {
			return 0.70
		}
		return 0.50
	case IsDownTrend(trend):
		if ema.Fast < ema.Slow && ema.Slow < ema.Long && bid < ema.Fast {
			return 0.85
		}
		if ema.Fast < ema.Slow && bid < ema.Fast {
			return 0.70
		}
		return 0.50
	case trend == TrendSideways:
		return 0.40
	default:
		return 0
	}
}

func RSIBucket(rsi float64) string {
	switch {
	case rsi > 70:
		return RSIOverbought
	case rsi > 60:
		return RSIStrong
	case rsi < 30:
		return RSIOversold
	case rsi < 40:
		return RSIWeak
	default:
		return RSINeutral
	}
}

func MACDBucket(m MACD) string {
	threshold := math.Abs(m.Main * 0.3)
	switch {
	case m.Histogram > 0 && m.Histogram > threshold:
		return MACDStrongBullish
	case m.Histogram > 0:
		return MACDBullish
	case m.Histogram < 0 && -m.Histogram > threshold:
		return MACDStrongBearish
	case m.Histogram < 0:
		return MACDBearish
	default:
		return MACDNeutral
	}
}

// BollingerBucket places bid within [lower, upper] in five bands.
func BollingerBucket(bid float64, bb Bollinger) string {
	width := bb.Upper - bb.Lower
	if width <= 0 {
		return BBMiddle
	}
	pos := (bid - bb.Lower) / width
	switch {
	case pos > 0.9:
		return BBNearUpper
	case pos > 0.7:
		return BBUpperHalf
	case pos < 0.1:
		return BBNearLower
	case pos < 0.3:
		return BBLowerHalf
	default:
		return BBMiddle
	}
}

// Regime maps (volatility, trend strength) to a market regime.
func Regime(volatility, trend string) string {
	strong := IsStrongTrend(trend)
	switch volatility {
	case VolHigh:
		if strong {
			return RegimeTrendingVolatile
		}
		return RegimeChoppy
	case VolLow:
		return RegimeQuiet
	default:
		if strong {
			return RegimeTrending
		}
		if trend == TrendSideways {
			return RegimeRanging
		}
		return RegimeTransitioning
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
