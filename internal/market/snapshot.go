package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNoSnapshot        = errors.New("market snapshot not found")
	ErrMalformedSnapshot = errors.New("market snapshot malformed")
)

type MACD struct {
	Main      float64 `json:"main"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type EMA struct {
	Fast float64 `json:"fast"`
	Slow float64 `json:"slow"`
	Long float64 `json:"long"`
}

type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type Indicators struct {
	RSI       *float64   `json:"rsi"`
	MACD      *MACD      `json:"macd"`
	EMA       *EMA       `json:"ema"`
	Bollinger *Bollinger `json:"bollinger"`
	ATR       float64    `json:"atr"`
}

// Analysis carries the upstream trend/volatility labels.
type Analysis struct {
	Trend      string `json:"trend"`
	Volatility string `json:"volatility"`
}

// Snapshot is the periodic market file written by the data provider.
type Snapshot struct {
	Bid        float64     `json:"bid"`
	Symbol     string      `json:"symbol"`
	Timeframe  string      `json:"timeframe"`
	Indicators *Indicators `json:"indicators"`
	Analysis   Analysis    `json:"analysis"`
}

// Complete reports whether every field the classifier needs is present.
func (s *Snapshot) Complete() bool {
	if s == nil || s.Bid <= 0 || s.Indicators == nil {
		return false
	}
	in := s.Indicators
	return in.RSI != nil && in.MACD != nil && in.EMA != nil && in.Bollinger != nil
}

// ReadSnapshot loads the market file at path.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read market snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return &s, nil
}
