package feedback

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
)

// Batch is the outcome of one Process call.
type Batch struct {
	Processed  []HistoryEntry
	Duplicates int
	Discarded  int
}

// Processor applies pending feedback files exactly once.
type Processor struct {
	Dir        string
	LegacyFile string
	Ledger     *Ledger
	Stats      *StatsStore
	History    *History
	Now        func() time.Time

	statsDirty bool
}

// NewProcessor opens the ledger, stats and history under paths.
func NewProcessor(paths config.Paths) (*Processor, error) {
	ledger, err := OpenLedger(paths.LedgerFile)
	if err != nil {
		return nil, err
	}
	stats, err := OpenStats(paths.StatsFile)
	if err != nil {
		return nil, err
	}
	history, err := OpenHistory(paths.HistoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade history: %w", err)
	}
	return &Processor{
		Dir:        paths.FeedbackDir,
		LegacyFile: paths.FeedbackLegacy,
		Ledger:     ledger,
		Stats:      stats,
		History:    history,
		Now:        time.Now,
	}, nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// sources lists pending feedback files, per-trade files first in name order.
func (p *Processor) sources() ([]string, error) {
	var files []string
	if p.Dir != "" {
		matches, err := filepath.Glob(filepath.Join(p.Dir, "fb_*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if p.LegacyFile != "" {
		if _, err := os.Stat(p.LegacyFile); err == nil {
			files = append(files, p.LegacyFile)
		}
	}
	return files, nil
}

// Process consumes every pending source. enrich may be nil.
//
// Accepted records reach the trade history before their ids are ledgered and
// their files deleted, so a failed append leaves them for the next call. A
// failed stats save is retried on the next call.
func (p *Processor) Process(enrich Enricher) (Batch, error) {
	var batch Batch
	if p.statsDirty {
		if err := p.Stats.Save(); err != nil {
			return batch, fmt.Errorf("failed to save strategy stats: %w", err)
		}
		p.statsDirty = false
	}

	files, err := p.sources()
	if err != nil {
		return batch, fmt.Errorf("failed to list feedback: %w", err)
	}
	if len(files) == 0 {
		return batch, nil
	}

	now := p.now().UTC()
	var accepted []HistoryEntry
	var acceptedFiles []string
	inBatch := map[string]bool{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			// Transient; leave the file for the next cycle.
			observ.Warn("feedback_read_error", map[string]any{"file": path, "error": err.Error()})
			continue
		}

		entry, reason := p.prepare(data, enrich, now)
		if reason == "" && inBatch[entry.SignalID] {
			reason = "duplicate"
		}
		switch reason {
		case "":
			inBatch[entry.SignalID] = true
			accepted = append(accepted, entry)
			acceptedFiles = append(acceptedFiles, path)
			continue
		case "duplicate":
			batch.Duplicates++
		default:
			batch.Discarded++
			observ.IncCounter("feedback_discarded_total", map[string]string{"reason": reason})
		}
		p.remove(path)
	}

	if len(accepted) == 0 {
		return batch, nil
	}
	if err := p.History.Append(accepted...); err != nil {
		return batch, fmt.Errorf("failed to append trade history: %w", err)
	}

	for i, entry := range accepted {
		p.commit(entry)
		p.remove(acceptedFiles[i])
	}
	batch.Processed = accepted

	if err := p.Stats.Save(); err != nil {
		p.statsDirty = true
		return batch, fmt.Errorf("failed to save strategy stats: %w", err)
	}

	fields := p.Stats.Overall().fields()
	fields["processed"] = len(batch.Processed)
	fields["history_count"] = p.History.Count()
	observ.Log("feedback_batch", fields)
	if today, err := p.History.Today(now); err == nil {
		observ.Log("feedback_today", today.fields())
	}
	return batch, nil
}

// prepare validates one document and returns the discard reason, if any.
// It changes no state.
func (p *Processor) prepare(data []byte, enrich Enricher, now time.Time) (HistoryEntry, string) {
	rec, err := ParseRecord(data)
	if errors.Is(err, errManualTrade) {
		return HistoryEntry{}, "manual"
	}
	if err != nil {
		observ.Warn("feedback_malformed", map[string]any{"error": err.Error()})
		return HistoryEntry{}, "malformed"
	}

	if p.Ledger.Seen(rec.SignalID) {
		observ.Log("feedback_duplicate", map[string]any{"signal_id": rec.SignalID})
		return HistoryEntry{}, "duplicate"
	}

	parsed, err := signal.ParseID(rec.SignalID)
	if err != nil {
		observ.Warn("feedback_unparseable_id", map[string]any{"signal_id": rec.SignalID})
		return HistoryEntry{}, "unparseable_id"
	}

	entry := HistoryEntry{
		SignalID:    rec.SignalID,
		Strategy:    parsed.Strategy,
		Direction:   parsed.Action,
		Result:      rec.Result,
		Pips:        rec.Pips,
		Timestamp:   rec.Timestamp,
		ProcessedAt: now,
	}
	if entry.Timestamp == "" {
		entry.Timestamp = now.Format(time.RFC3339)
	}
	if enrich != nil {
		if origin, ok := enrich.Origin(rec.SignalID); ok {
			entry.Confidence = origin.Confidence
			entry.Trend = origin.Context.Trend
			entry.Volatility = origin.Context.Volatility
		}
	}
	return entry, ""
}

// commit folds an entry already in the history into stats and the ledger.
func (p *Processor) commit(entry HistoryEntry) {
	p.Stats.Apply(entry.Strategy, entry.Result, decimal.NewFromFloat(entry.Pips))
	if err := p.Ledger.Mark(entry.SignalID); err != nil {
		observ.Error("ledger_write_error", map[string]any{"signal_id": entry.SignalID, "error": err.Error()})
	}

	observ.IncCounter("feedback_processed_total", map[string]string{"result": entry.Result})
	observ.Log("feedback_processed", map[string]any{
		"signal_id": entry.SignalID,
		"strategy":  entry.Strategy,
		"result":    entry.Result,
		"pips":      entry.Pips,
	})
}

func (p *Processor) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		observ.Warn("feedback_remove_error", map[string]any{"file": path, "error": err.Error()})
	}
}
