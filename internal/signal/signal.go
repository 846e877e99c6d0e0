package signal

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionNone = "NONE"

	// StopStrategy names the sentinel written on shutdown.
	StopStrategy = "SYSTEM_STOP"

	idTimeLayout = "20060102_150405"
)

var (
	ErrUnparseableID          = errors.New("unparseable signal id")
	ErrNoAction               = errors.New("proposal has no action")
	ErrInsufficientConfidence = errors.New("insufficient confidence")
	ErrUnknownStrategy        = errors.New("unknown strategy")
)

// Signal is the document handed to the execution agent. It is written once
// and never modified.
type Signal struct {
	SignalID     string  `json:"signalId"`
	Action       string  `json:"action"`
	Confidence   float64 `json:"confidence"`
	SLPips       float64 `json:"slPips"`
	TPPips       float64 `json:"tpPips"`
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"`
	Timestamp    string  `json:"timestamp"`
	StrategyName string  `json:"strategyName"`
	Reason       string  `json:"reason"`
}

// Proposal is an evaluator's directional suggestion.
type Proposal struct {
	Action     string
	Confidence float64
	SLPips     float64
	TPPips     float64
	Reason     string
}

// BuildID encodes timestamp, action and strategy: 20060102_150405_BUY_TREND_FOLLOWING.
func BuildID(ts time.Time, action, strategy string) string {
	return fmt.Sprintf("%s_%s_%s", ts.UTC().Format(idTimeLayout), action, strategy)
}

var idPattern = regexp.MustCompile(`^(\d{8}_\d{6})_(BUY|SELL)_([A-Z][A-Z0-9_]*)$`)

// ParsedID is the decoded form of a signal id.
type ParsedID struct {
	Time     time.Time
	Action   string
	Strategy string
}

func ParseID(id string) (ParsedID, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return ParsedID{}, fmt.Errorf("%w: %q", ErrUnparseableID, id)
	}
	ts, err := time.Parse(idTimeLayout, m[1])
	if err != nil {
		return ParsedID{}, fmt.Errorf("%w: %q: %v", ErrUnparseableID, id, err)
	}
	return ParsedID{Time: ts, Action: m[2], Strategy: m[3]}, nil
}
