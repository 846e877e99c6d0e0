package agentsim

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/feedback"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// Options tune the simulated execution agent.
type Options struct {
	LatencyMsMin    int
	LatencyMsMax    int
	SlippagePipsMax float64
	WinRate         float64 // probability a trade reaches TP
	Seed            int64
}

func DefaultOptions() Options {
	return Options{LatencyMsMin: 2000, LatencyMsMax: 8000, SlippagePipsMax: 0.5, WinRate: 0.5}
}

// Ticket is a consumed signal waiting for its simulated close.
type Ticket struct {
	ID       string
	Signal   signal.Signal
	ClosesAt time.Time
}

// Agent stands in for the real execution agent: it consumes signal files and
// reports outcomes as per-trade feedback files.
type Agent struct {
	signalPath  string
	feedbackDir string
	opts        Options
	rng         *rand.Rand
	Now         func() time.Time

	open []Ticket
}

func New(paths config.Paths, opts Options) *Agent {
	if opts.LatencyMsMax < opts.LatencyMsMin {
		opts.LatencyMsMax = opts.LatencyMsMin
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Agent{
		signalPath:  paths.SignalFile,
		feedbackDir: paths.FeedbackDir,
		opts:        opts,
		rng:         rand.New(rand.NewSource(seed)),
		Now:         time.Now,
	}
}

// Open returns the tickets not yet closed.
func (a *Agent) Open() []Ticket {
	return append([]Ticket(nil), a.open...)
}

// Poll consumes a pending signal file. It reports stop when the engine wrote
// its STOP sentinel.
func (a *Agent) Poll() (stop bool, err error) {
	var s signal.Signal
	found, err := store.ReadJSON(a.signalPath, &s)
	if err != nil {
		// Half-written or foreign file; the engine writes atomically so this is transient.
		return false, fmt.Errorf("failed to read signal: %w", err)
	}
	if !found {
		return false, nil
	}
	if signal.IsStop(s) {
		observ.Log("agent_stop_received", map[string]any{"signal_id": s.SignalID})
		return true, nil
	}
	if err := store.Remove(a.signalPath); err != nil {
		return false, err
	}

	latency := a.opts.LatencyMsMin
	if span := a.opts.LatencyMsMax - a.opts.LatencyMsMin; span > 0 {
		latency += a.rng.Intn(span + 1)
	}
	t := Ticket{
		ID:       uuid.NewString(),
		Signal:   s,
		ClosesAt: a.Now().Add(time.Duration(latency) * time.Millisecond),
	}
	a.open = append(a.open, t)
	observ.Log("agent_signal_consumed", map[string]any{
		"ticket":     t.ID,
		"signal_id":  s.SignalID,
		"action":     s.Action,
		"latency_ms": latency,
	})
	return false, nil
}

// Settle closes every ticket whose time has come and writes its feedback.
// With force all open tickets are closed.
func (a *Agent) Settle(force bool) ([]feedback.Record, error) {
	now := a.Now()
	sort.Slice(a.open, func(i, j int) bool { return a.open[i].ClosesAt.Before(a.open[j].ClosesAt) })

	var out []feedback.Record
	var keep []Ticket
	for _, t := range a.open {
		if !force && now.Before(t.ClosesAt) {
			keep = append(keep, t)
			continue
		}
		rec := a.outcome(t.Signal, now)
		path := filepath.Join(a.feedbackDir, "fb_"+t.Signal.SignalID+".json")
		if err := store.WriteJSON(path, rec); err != nil {
			a.open = append(keep, a.openAfter(t)...)
			return out, fmt.Errorf("failed to write feedback for %s: %w", t.Signal.SignalID, err)
		}
		out = append(out, rec)
		observ.Log("agent_trade_closed", map[string]any{
			"ticket":    t.ID,
			"signal_id": rec.SignalID,
			"result":    rec.Result,
			"pips":      rec.Pips,
		})
	}
	a.open = keep
	return out, nil
}

// openAfter returns t and every ticket after it in the current order.
func (a *Agent) openAfter(t Ticket) []Ticket {
	for i := range a.open {
		if a.open[i].ID == t.ID {
			return append([]Ticket(nil), a.open[i:]...)
		}
	}
	return nil
}

func (a *Agent) outcome(s signal.Signal, closedAt time.Time) feedback.Record {
	slip := decimal.NewFromFloat(a.rng.Float64() * a.opts.SlippagePipsMax)
	rec := feedback.Record{SignalID: s.SignalID, Timestamp: closedAt.UTC().Format(time.RFC3339)}
	if a.rng.Float64() < a.opts.WinRate {
		rec.Result = feedback.ResultWin
		rec.Pips = decimal.NewFromFloat(s.TPPips).Sub(slip).Round(1).InexactFloat64()
	} else {
		rec.Result = feedback.ResultLoss
		rec.Pips = decimal.NewFromFloat(s.SLPips).Add(slip).Neg().Round(1).InexactFloat64()
	}
	return rec
}

// Run polls every interval until ctx ends or the engine stops.
func (a *Agent) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stop, err := a.Poll()
		if err != nil {
			observ.Warn("agent_poll_error", map[string]any{"error": err.Error()})
		}
		if _, err := a.Settle(stop); err != nil {
			observ.Warn("agent_settle_error", map[string]any{"error": err.Error()})
		}
		if stop {
			return nil
		}
		select {
		case <-ctx.Done():
			_, err := a.Settle(true)
			return err
		case <-ticker.C:
		}
	}
}
