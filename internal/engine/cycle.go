package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
)

// Skip reasons reported in CycleResult.
const (
	SkipBlocked        = "blocked"
	SkipNoMarketData   = "no_market_data"
	SkipBadMarketData  = "malformed_market_data"
	SkipNotTradeable   = "context_not_tradeable"
	SkipNoSetup        = "no_setup"
	SkipNoSignal       = "no_signal"
	SkipLowConfidence  = "insufficient_confidence"
	SkipAntiSpam       = "anti_spam"
	SkipCancelled      = "cancelled"
	SkipWriteFailed    = "write_failed"
	SkipRegisterFailed = "register_failed"
)

// CycleResult summarises one iteration.
type CycleResult struct {
	CycleID   string
	Cycle     int64
	Processed int
	Expired   int
	Adjusted  bool
	Context   *market.Context
	Selected  *strategy.Scored
	Emitted   *signal.Signal
	Skipped   string
	BlockedBy []string
	Err       error
}

// RunCycle performs one iteration of the control loop.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	e.mu.Lock()
	e.cycle++
	res := CycleResult{CycleID: uuid.NewString(), Cycle: e.cycle}
	e.mu.Unlock()
	defer func() {
		observ.RecordDuration("cycle", time.Since(start), nil)
	}()

	if err := e.writeHeartbeat(true); err != nil {
		e.cycleError(&res, "heartbeat", err)
	}

	cfg := e.reloadConfig(&res)

	if e.tuner.Due(cfg.AutoOptimize) {
		cfg = e.adapt(cfg, &res)
	}

	e.processFeedback(&res)
	e.expire(&res)

	if ctx.Err() != nil {
		res.Skipped = SkipCancelled
		return res
	}

	pre := e.controller.PreCheck(cfg, e.router.Pending())
	if !pre.Allowed {
		res.Skipped, res.BlockedBy = SkipBlocked, pre.BlockedBy
		observ.Debug("cycle_blocked", map[string]any{"cycle_id": res.CycleID, "blocked_by": pre.BlockedBy})
		return res
	}

	snap, err := market.ReadSnapshot(e.paths.MarketFile)
	switch {
	case errors.Is(err, market.ErrNoSnapshot):
		res.Skipped = SkipNoMarketData
		observ.Debug("market_data_missing", map[string]any{"file": e.paths.MarketFile})
		return res
	case errors.Is(err, market.ErrMalformedSnapshot):
		res.Skipped = SkipBadMarketData
		observ.Warn("market_data_malformed", map[string]any{"error": err.Error()})
		return res
	case err != nil:
		e.cycleError(&res, "market", err)
		return res
	}

	mctx := e.classifier.Classify(snap)
	res.Context = &mctx
	if !mctx.TradeAllowed {
		res.Skipped = SkipNotTradeable
		observ.Log("context_not_tradeable", map[string]any{
			"cycle_id": res.CycleID,
			"trend":    mctx.Trend,
			"regime":   mctx.MarketRegime,
			"reasons":  mctx.Reasons,
		})
		return res
	}

	now := e.clock()
	if e.tuner.IsBadHour(now) {
		observ.Debug("bad_hour_advisory", map[string]any{"hour": now.UTC().Hour()})
	}

	ranked := strategy.Rank(e.catalog, mctx, e.tuner)
	selected, ok := strategy.Select(ranked, e.tuner.MinSelectionScore(), e.registry.Has)
	if !ok {
		res.Skipped = SkipNoSetup
		top := map[string]any{"cycle_id": res.CycleID, "context": mctx.Key()}
		if len(ranked) > 0 {
			top["best"], top["best_score"] = ranked[0].Name, ranked[0].Score
		}
		observ.Log("no_setup", top)
		return res
	}
	res.Selected = &selected

	proposal, ok, err := e.registry.Evaluate(selected.Name, mctx, snap)
	if err != nil {
		e.cycleError(&res, "evaluate", err)
		return res
	}
	if !ok {
		res.Skipped = SkipNoSignal
		observ.Log("no_signal", map[string]any{"cycle_id": res.CycleID, "strategy": selected.Name})
		return res
	}

	minConf := e.effectiveMinConfidence(cfg)
	sig, err := e.router.Build(selected.Name, proposal, minConf)
	if err != nil {
		res.Skipped = SkipLowConfidence
		if errors.Is(err, signal.ErrNoAction) {
			res.Skipped = SkipNoSignal
		}
		observ.IncCounter("signals_rejected_total", map[string]string{"reason": res.Skipped})
		observ.Log("signal_rejected", map[string]any{
			"cycle_id": res.CycleID,
			"strategy": selected.Name,
			"reason":   err.Error(),
		})
		return res
	}

	check := e.controller.Check(cfg, selected.Name, sig.Action, e.router.Pending())
	if !check.Allowed {
		res.Skipped, res.BlockedBy = SkipAntiSpam, check.BlockedBy
		observ.Log("signal_blocked", map[string]any{
			"cycle_id":   res.CycleID,
			"strategy":   selected.Name,
			"action":     sig.Action,
			"blocked_by": check.BlockedBy,
		})
		return res
	}

	if err := e.router.Write(sig); err != nil {
		res.Skipped = SkipWriteFailed
		e.cycleError(&res, "write", err)
		return res
	}
	if _, err := e.controller.Register(sig, mctx, cfg.MaxConcurrentTrades); err != nil {
		res.Skipped = SkipRegisterFailed
		if cerr := e.router.Clear(); cerr != nil {
			observ.Warn("signal_clear_error", map[string]any{"error": cerr.Error()})
		}
		e.cycleError(&res, "register", err)
		return res
	}

	res.Emitted = &sig
	observ.IncCounter("signals_emitted_total", map[string]string{"strategy": sig.StrategyName, "action": sig.Action})
	observ.Log("signal_emitted", map[string]any{
		"cycle_id":   res.CycleID,
		"run_id":     e.runID,
		"signal_id":  sig.SignalID,
		"strategy":   sig.StrategyName,
		"action":     sig.Action,
		"confidence": sig.Confidence,
		"score":      selected.Score,
		"context":    mctx.Key(),
		"regime":     mctx.MarketRegime,
	})
	return res
}

// reloadConfig reads EngineConfig; on error the previous values are kept.
func (e *Engine) reloadConfig(res *CycleResult) config.EngineConfig {
	cfg, err := config.LoadEngineConfig(e.paths.ConfigFile)
	if err != nil {
		e.cycleError(res, "config", err)
		return e.Config()
	}
	if active := e.controller.ActiveCount(); cfg.MaxConcurrentTrades < active {
		observ.Warn("concurrency_cap_below_active", map[string]any{"cap": cfg.MaxConcurrentTrades, "active": active})
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return cfg
}

func (e *Engine) adapt(cfg config.EngineConfig, res *CycleResult) config.EngineConfig {
	trades, err := e.processor.History.Recent(e.root.Tuner.Window)
	if err != nil {
		e.cycleError(res, "tuner", err)
		return cfg
	}
	next, out := e.tuner.Adapt(cfg, trades, e.controller.ActiveCount())
	res.Adjusted = true
	if !out.Changed {
		return cfg
	}
	if err := config.SaveEngineConfig(e.paths.ConfigFile, next); err != nil {
		e.cycleError(res, "tuner", err)
		return cfg
	}
	e.mu.Lock()
	e.cfg = next
	e.mu.Unlock()
	return next
}

func (e *Engine) processFeedback(res *CycleResult) {
	batch, err := e.processor.Process(e.controller)
	if err != nil {
		e.cycleError(res, "feedback", err)
	}
	for _, entry := range batch.Processed {
		if _, ok := e.controller.Resolve(entry.SignalID, entry.Result); !ok {
			observ.Debug("feedback_for_inactive_signal", map[string]any{"signal_id": entry.SignalID})
		}
	}
	res.Processed = len(batch.Processed)
	if res.Processed > 0 {
		e.tuner.SetTotalTrades(e.processor.History.Count())
	}
}

func (e *Engine) expire(res *CycleResult) {
	expired := e.controller.Expire()
	if len(expired) == 0 {
		return
	}
	res.Expired = len(expired)
	ids := make([]string, 0, len(expired))
	for _, x := range expired {
		ids = append(ids, x.SignalID)
		observ.Log("signal_expired", map[string]any{
			"signal_id": x.SignalID,
			"strategy":  x.Strategy,
			"age_s":     int(e.clock().Sub(x.CreatedAt).Seconds()),
		})
	}
	if _, err := e.router.ClearIf(ids...); err != nil {
		e.cycleError(res, "expire", err)
	}
}

// effectiveMinConfidence applies the optional exploration floor.
func (e *Engine) effectiveMinConfidence(cfg config.EngineConfig) float64 {
	if e.root.Tuner.ExplorationFloor && e.tuner.TotalTrades() < explorationFloorTrades {
		return min(cfg.MinConfidence, explorationFloorConfidence)
	}
	return cfg.MinConfidence
}

func (e *Engine) cycleError(res *CycleResult, stage string, err error) {
	res.Err = errors.Join(res.Err, err)
	observ.IncCounter("cycle_errors_total", map[string]string{"stage": stage})
	e.log.Warn().Err(err).Str("stage", stage).Str("cycle_id", res.CycleID).Msg("cycle_error")
}
