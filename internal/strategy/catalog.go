package strategy

import (
	"sort"

	"github.com/Rajchodisetti/signal-engine/internal/market"
)

// Field names a Context attribute a condition can test.
type Field string

const (
	FieldTrend      Field = "trend"
	FieldVolatility Field = "volatility"
	FieldRSI        Field = "rsi"
	FieldMACD       Field = "macd"
	FieldBB         Field = "bb"
	FieldRegime     Field = "regime"
)

// Conditions maps a context field to its accepted values.
type Conditions map[Field][]string

// Definition is one catalog entry.
type Definition struct {
	Name  string
	Type  string
	Best  Conditions
	Avoid Conditions
}

const (
	TrendFollowing     = "TREND_FOLLOWING"
	MeanReversion      = "MEAN_REVERSION"
	TrendPullback      = "TREND_PULLBACK"
	Breakout           = "BREAKOUT"
	Momentum           = "MOMENTUM"
	Scalping           = "SCALPING"
	RangeTrading       = "RANGE_TRADING"
	VolatilityBreakout = "VOLATILITY_BREAKOUT"
)

var directional = []string{market.TrendStrongUp, market.TrendUp, market.TrendStrongDown, market.TrendDown}

var catalog = []Definition{
	{
		Name: TrendFollowing, Type: "TREND",
		Best: Conditions{
			FieldTrend:      directional,
			FieldVolatility: {market.VolNormal, market.VolHigh},
			FieldRegime:     {market.RegimeTrending, market.RegimeTrendingVolatile},
		},
		Avoid: Conditions{
			FieldTrend:  {market.TrendSideways},
			FieldRegime: {market.RegimeChoppy, market.RegimeQuiet},
		},
	},
	{
		Name: MeanReversion, Type: "REVERSAL",
		Best: Conditions{
			FieldTrend:      {market.TrendSideways},
			FieldVolatility: {market.VolNormal, market.VolLow},
			FieldRegime:     {market.RegimeRanging, market.RegimeQuiet},
			FieldRSI:        {market.RSIOverbought, market.RSIOversold},
		},
		Avoid: Conditions{
			FieldTrend:  {market.TrendStrongUp, market.TrendStrongDown},
			FieldRegime: {market.RegimeTrendingVolatile},
		},
	},
	{
		Name: TrendPullback, Type: "PULLBACK",
		Best: Conditions{
			FieldTrend:      directional,
			FieldVolatility: {market.VolNormal},
			FieldRegime:     {market.RegimeTrending},
		},
		Avoid: Conditions{
			FieldRegime:     {market.RegimeChoppy, market.RegimeQuiet},
			FieldVolatility: {market.VolHigh},
		},
	},
	{
		Name: Breakout, Type: "BREAKOUT",
		Best: Conditions{
			FieldTrend:      {market.TrendSideways},
			FieldVolatility: {market.VolLow, market.VolNormal},
			FieldRegime:     {market.RegimeRanging, market.RegimeQuiet},
			FieldBB:         {market.BBNearUpper, market.BBNearLower},
		},
		Avoid: Conditions{
			FieldVolatility: {market.VolHigh},
			FieldRegime:     {market.RegimeChoppy},
		},
	},
	{
		Name: Momentum, Type: "MOMENTUM",
		Best: Conditions{
			FieldTrend:      {market.TrendStrongUp, market.TrendStrongDown},
			FieldVolatility: {market.VolHigh},
			FieldRegime:     {market.RegimeTrendingVolatile},
			FieldMACD:       {market.MACDStrongBullish, market.MACDStrongBearish},
		},
		Avoid: Conditions{
			FieldTrend:      {market.TrendSideways},
			FieldVolatility: {market.VolLow},
		},
	},
	{
		Name: Scalping, Type: "SCALP",
		Best: Conditions{
			FieldTrend:      {market.TrendSideways},
			FieldVolatility: {market.VolNormal, market.VolHigh},
			FieldRegime:     {market.RegimeRanging, market.RegimeChoppy},
		},
		Avoid: Conditions{
			FieldTrend:      {market.TrendStrongUp, market.TrendStrongDown},
			FieldVolatility: {market.VolLow},
		},
	},
	{
		Name: RangeTrading, Type: "RANGE",
		Best: Conditions{
			FieldTrend:      {market.TrendSideways},
			FieldVolatility: {market.VolLow, market.VolNormal},
			FieldRegime:     {market.RegimeRanging, market.RegimeQuiet},
			FieldBB:         {market.BBUpperHalf, market.BBLowerHalf},
		},
		Avoid: Conditions{
			FieldTrend:      {market.TrendStrongUp, market.TrendStrongDown},
			FieldVolatility: {market.VolHigh},
		},
	},
	{
		Name: VolatilityBreakout, Type: "VOLATILITY",
		Best: Conditions{
			FieldVolatility: {market.VolHigh},
			FieldRegime:     {market.RegimeTrendingVolatile, market.RegimeChoppy},
		},
		Avoid: Conditions{
			FieldVolatility: {market.VolLow},
			FieldRegime:     {market.RegimeQuiet},
		},
	},
}

// Catalog returns a copy of the built-in strategy definitions.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	for i, d := range catalog {
		out[i] = Definition{Name: d.Name, Type: d.Type, Best: d.Best.clone(), Avoid: d.Avoid.clone()}
	}
	return out
}

func Lookup(name string) (Definition, bool) {
	for _, d := range Catalog() {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Names lists catalog strategy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, d := range catalog {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

func (c Conditions) clone() Conditions {
	out := make(Conditions, len(c))
	for k, v := range c {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (c Conditions) fieldValue(f Field, ctx market.Context) string {
	switch f {
	case FieldTrend:
		return ctx.Trend
	case FieldVolatility:
		return ctx.Volatility
	case FieldRSI:
		return ctx.RSIState
	case FieldMACD:
		return ctx.MACDState
	case FieldBB:
		return ctx.BBPosition
	case FieldRegime:
		return ctx.MarketRegime
	}
	return ""
}

// matches counts fields whose accepted set contains the context value.
func (c Conditions) matches(ctx market.Context) int {
	n := 0
	for f, accepted := range c {
		v := c.fieldValue(f, ctx)
		for _, a := range accepted {
			if a == v {
				n++
				break
			}
		}
	}
	return n
}
