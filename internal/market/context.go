package market

import "fmt"

const (
	TrendStrongUp   = "STRONG_UP"
	TrendUp         = "UP"
	TrendSideways   = "SIDEWAYS"
	TrendDown       = "DOWN"
	TrendStrongDown = "STRONG_DOWN"
	TrendNone       = "NONE"

	VolLow    = "LOW"
	VolNormal = "NORMAL"
	VolHigh   = "HIGH"

	RSIOverbought = "OVERBOUGHT"
	RSIStrong     = "STRONG"
	RSINeutral    = "NEUTRAL"
	RSIWeak       = "WEAK"
	RSIOversold   = "OVERSOLD"

	MACDStrongBullish = "STRONG_BULLISH"
	MACDBullish       = "BULLISH"
	MACDNeutral       = "NEUTRAL"
	MACDBearish       = "BEARISH"
	MACDStrongBearish = "STRONG_BEARISH"

	BBNearUpper = "NEAR_UPPER"
	BBUpperHalf = "UPPER_HALF"
	BBMiddle    = "MIDDLE"
	BBLowerHalf = "LOWER_HALF"
	BBNearLower = "NEAR_LOWER"

	RegimeTrending         = "TRENDING"
	RegimeTrendingVolatile = "TRENDING_VOLATILE"
	RegimeRanging          = "RANGING"
	RegimeQuiet            = "QUIET"
	RegimeChoppy           = "CHOPPY"
	RegimeTransitioning    = "TRANSITIONING"
	RegimeUndefined        = "UNDEFINED"
)

// Context is the qualitative market state for one cycle. It is built once by
// the classifier and read by the selector and evaluators.
type Context struct {
	Trend        string   `json:"trend"`
	Volatility   string   `json:"volatility"`
	RSIState     string   `json:"rsiState"`
	RSI          float64  `json:"rsi"`
	MACDState    string   `json:"macdState"`
	BBPosition   string   `json:"bbPosition"`
	MarketRegime string   `json:"marketRegime"`
	Confidence   float64  `json:"confidence"`
	TradeAllowed bool     `json:"tradeAllowed"`
	Reasons      []string `json:"reasons,omitempty"`
}

// DefaultContext is returned for missing or unusable snapshots.
func DefaultContext() Context {
	return Context{
		Trend:        TrendNone,
		Volatility:   VolNormal,
		RSIState:     RSINeutral,
		RSI:          50,
		MACDState:    MACDNeutral,
		BBPosition:   BBMiddle,
		MarketRegime: RegimeUndefined,
		Confidence:   0,
		TradeAllowed: false,
	}
}

// Key identifies the context for learned lookups.
func (c Context) Key() string {
	return fmt.Sprintf("%s_%s", c.Trend, c.Volatility)
}

func IsUpTrend(trend string) bool {
	return trend == TrendUp || trend == TrendStrongUp
}

func IsDownTrend(trend string) bool {
	return trend == TrendDown || trend == TrendStrongDown
}

func IsStrongTrend(trend string) bool {
	return trend == TrendStrongUp || trend == TrendStrongDown
}

func IsBullish(macd string) bool {
	return macd == MACDBullish || macd == MACDStrongBullish
}

func IsBearish(macd string) bool {
	return macd == MACDBearish || macd == MACDStrongBearish
}
