package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/market"
)

const (
	ResultWin  = "WIN"
	ResultLoss = "LOSS"
)

var (
	ErrMalformedFeedback = errors.New("malformed feedback")
	errManualTrade       = errors.New("manual trade")
)

// Record is one trade outcome reported by the execution agent.
type Record struct {
	SignalID  string  `json:"signalId"`
	Result    string  `json:"result"`
	Pips      float64 `json:"pips"`
	Timestamp string  `json:"timestamp"`
}

type wireRecord struct {
	SignalID      *string  `json:"signalId"`
	SignalIDSnake *string  `json:"signal_id"`
	Result        *string  `json:"result"`
	Pips          *float64 `json:"pips"`
	Timestamp     string   `json:"timestamp"`
}

// ParseRecord decodes a feedback document. Both signalId and signal_id are
// accepted. A record without a signal id is a manual trade.
func ParseRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedFeedback, err)
	}

	id := w.SignalID
	if id == nil {
		id = w.SignalIDSnake
	}
	if id == nil {
		return Record{}, fmt.Errorf("%w: missing signalId", ErrMalformedFeedback)
	}
	if strings.TrimSpace(*id) == "" {
		return Record{}, errManualTrade
	}
	if w.Result == nil {
		return Record{}, fmt.Errorf("%w: missing result", ErrMalformedFeedback)
	}

	result := strings.ToUpper(strings.TrimSpace(*w.Result))
	if result != ResultWin && result != ResultLoss {
		return Record{}, fmt.Errorf("%w: invalid result %q", ErrMalformedFeedback, *w.Result)
	}

	rec := Record{SignalID: strings.TrimSpace(*id), Result: result, Timestamp: w.Timestamp}
	if w.Pips != nil {
		rec.Pips = *w.Pips
	}
	return rec, nil
}

// Origin describes the signal a feedback record refers to, when the engine
// still remembers it.
type Origin struct {
	Confidence float64
	Context    market.Context
}

// Enricher supplies the origin of an in-flight signal.
type Enricher interface {
	Origin(signalID string) (Origin, bool)
}

// timestampLayouts are the formats agents have been seen to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
