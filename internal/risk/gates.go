package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// Gate is one emission rule. Check is called with the controller lock held.
type Gate interface {
	Name() string
	Check(req Request) (bool, string)
	Priority() int // lower runs first
}

func sortGates(gates []Gate) []Gate {
	sort.SliceStable(gates, func(i, j int) bool { return gates[i].Priority() < gates[j].Priority() })
	return gates
}

func remainingSecs(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

type concurrencyGate struct{ c *Controller }

func (g *concurrencyGate) Name() string  { return "concurrency" }
func (g *concurrencyGate) Priority() int { return 10 }
func (g *concurrencyGate) Check(req Request) (bool, string) {
	n, limit := len(g.c.active), req.Config.MaxConcurrentTrades
	if limit > 0 && n >= limit {
		return false, fmt.Sprintf("concurrency_%d_of_%d", n, limit)
	}
	return true, ""
}

// pendingFileGate holds emission while the agent has not consumed the last file.
type pendingFileGate struct{}

func (g *pendingFileGate) Name() string  { return "pending_file" }
func (g *pendingFileGate) Priority() int { return 20 }
func (g *pendingFileGate) Check(req Request) (bool, string) {
	if req.PendingFile {
		return false, "pending_signal_file"
	}
	return true, ""
}

type cooldownGate struct{ c *Controller }

func (g *cooldownGate) Name() string  { return "cooldown" }
func (g *cooldownGate) Priority() int { return 30 }
func (g *cooldownGate) Check(req Request) (bool, string) {
	if g.c.lastEmission.IsZero() || req.Config.CooldownSeconds <= 0 {
		return true, ""
	}
	cooldown := time.Duration(req.Config.CooldownSeconds) * time.Second
	if elapsed := req.Now.Sub(g.c.lastEmission); elapsed < cooldown {
		return false, fmt.Sprintf("cooldown_remaining_%ds", remainingSecs(cooldown-elapsed))
	}
	return true, ""
}

type dailyCapGate struct{ c *Controller }

func (g *dailyCapGate) Name() string  { return "daily_cap" }
func (g *dailyCapGate) Priority() int { return 40 }
func (g *dailyCapGate) Check(req Request) (bool, string) {
	limit := req.Config.MaxDailyTrades
	if limit > 0 && g.c.dailyCount >= limit {
		return false, fmt.Sprintf("daily_trades_%d_exceeds_%d", g.c.dailyCount, limit)
	}
	return true, ""
}

type lossPauseGate struct{ c *Controller }

func (g *lossPauseGate) Name() string  { return "loss_pause" }
func (g *lossPauseGate) Priority() int { return 50 }
func (g *lossPauseGate) Check(req Request) (bool, string) {
	if !g.c.lossPauseUntil.IsZero() && req.Now.Before(g.c.lossPauseUntil) {
		return false, fmt.Sprintf("loss_pause_remaining_%ds", remainingSecs(g.c.lossPauseUntil.Sub(req.Now)))
	}
	return true, ""
}

// rateGate is a global token bucket over successful emissions.
type rateGate struct{ c *Controller }

func (g *rateGate) Name() string  { return "rate" }
func (g *rateGate) Priority() int { return 60 }
func (g *rateGate) Check(req Request) (bool, string) {
	if g.c.limiter.Limit() == rate.Inf {
		return true, ""
	}
	if g.c.limiter.TokensAt(req.Now) < 1 {
		return false, "rate_limited"
	}
	return true, ""
}

type minIntervalGate struct{ c *Controller }

func (g *minIntervalGate) Name() string  { return "min_interval" }
func (g *minIntervalGate) Priority() int { return 70 }
func (g *minIntervalGate) Check(req Request) (bool, string) {
	last, ok := g.c.pairLastEmitted[req.pairKey()]
	if !ok || req.Config.MinSignalIntervalSeconds <= 0 {
		return true, ""
	}
	interval := time.Duration(req.Config.MinSignalIntervalSeconds) * time.Second
	if elapsed := req.Now.Sub(last); elapsed < interval {
		return false, fmt.Sprintf("min_interval_%s_%s_remaining_%ds", req.Strategy, req.Direction, remainingSecs(interval-elapsed))
	}
	return true, ""
}

type duplicateActiveGate struct{ c *Controller }

func (g *duplicateActiveGate) Name() string  { return "duplicate_active" }
func (g *duplicateActiveGate) Priority() int { return 80 }
func (g *duplicateActiveGate) Check(req Request) (bool, string) {
	if !req.Config.AvoidRepeatStrategy {
		return true, ""
	}
	for _, e := range g.c.active {
		if e.Strategy == req.Strategy && e.Direction == req.Direction {
			return false, fmt.Sprintf("duplicate_active_%s_%s", req.Strategy, req.Direction)
		}
	}
	return true, ""
}

type failStreakGate struct{ c *Controller }

func (g *failStreakGate) Name() string  { return "fail_streak" }
func (g *failStreakGate) Priority() int { return 90 }
func (g *failStreakGate) Check(req Request) (bool, string) {
	until, ok := g.c.suspendedUntil[req.pairKey()]
	if ok && req.Now.Before(until) {
		return false, fmt.Sprintf("fail_streak_%s_%s_remaining_%ds", req.Strategy, req.Direction, remainingSecs(until.Sub(req.Now)))
	}
	return true, ""
}
