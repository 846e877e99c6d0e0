package risk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/feedback"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
)

// Phase is the lifecycle state of an emitted signal.
type Phase string

const (
	PhaseProposed Phase = "PROPOSED"
	PhaseActive   Phase = "ACTIVE"
	PhaseConsumed Phase = "CONSUMED"
	PhaseExpired  Phase = "EXPIRED"
)

var ErrConcurrencyCap = errors.New("concurrency cap reached")

// ActiveEntry tracks one in-flight signal until feedback or timeout.
type ActiveEntry struct {
	SignalID   string         `json:"signalId"`
	Strategy   string         `json:"strategy"`
	Direction  string         `json:"direction"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"createdAt"`
	Context    market.Context `json:"context"`
	Phase      Phase          `json:"phase"`
}

// Settings are the controller's fixed (non-tunable) parameters.
type Settings struct {
	SignalTimeout       time.Duration
	SuspendWindow       time.Duration
	FailStreakThreshold int
	SignalsPerMinute    float64
	Burst               int
	StatePath           string // empty disables persistence
}

func DefaultSettings() Settings {
	return Settings{
		SignalTimeout:       300 * time.Second,
		SuspendWindow:       300 * time.Second,
		FailStreakThreshold: 3,
		SignalsPerMinute:    6,
		Burst:               1,
	}
}

// Request is the input to a gate check. Strategy and Direction are empty for
// the strategy-independent pre-check.
type Request struct {
	Config      config.EngineConfig
	Strategy    string
	Direction   string
	PendingFile bool
	Now         time.Time
}

func (r Request) pairKey() string { return pairKey(r.Strategy, r.Direction) }

// Decision collects every gate that blocked a request.
type Decision struct {
	Allowed   bool     `json:"allowed"`
	BlockedBy []string `json:"blocked_by,omitempty"`
	Passed    []string `json:"passed,omitempty"`
}

// Controller enforces concurrency and anti-spam rules for signal emission.
type Controller struct {
	mu       sync.Mutex
	settings Settings
	now      func() time.Time
	limiter  *rate.Limiter

	active            map[string]*ActiveEntry
	lastEmission      time.Time
	pairLastEmitted   map[string]time.Time
	failStreaks       map[string]int
	suspendedUntil    map[string]time.Time
	consecutiveLosses int
	lossPauseUntil    time.Time
	day               string
	dailyCount        int

	preGates  []Gate
	pairGates []Gate
}

func NewController(settings Settings) *Controller {
	if settings.FailStreakThreshold <= 0 {
		settings.FailStreakThreshold = 3
	}
	limit := rate.Inf
	if settings.SignalsPerMinute > 0 {
		limit = rate.Limit(settings.SignalsPerMinute / 60)
	}
	burst := settings.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Controller{
		settings:        settings,
		now:             time.Now,
		limiter:         rate.NewLimiter(limit, burst),
		active:          map[string]*ActiveEntry{},
		pairLastEmitted: map[string]time.Time{},
		failStreaks:     map[string]int{},
		suspendedUntil:  map[string]time.Time{},
	}
	c.preGates = sortGates([]Gate{
		&concurrencyGate{c},
		&pendingFileGate{},
		&cooldownGate{c},
		&dailyCapGate{c},
		&lossPauseGate{c},
		&rateGate{c},
	})
	c.pairGates = sortGates([]Gate{
		&minIntervalGate{c},
		&duplicateActiveGate{c},
		&failStreakGate{c},
	})
	return c
}

// SetClock replaces the time source.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Controller) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// PreCheck runs the strategy-independent gates.
func (c *Controller) PreCheck(cfg config.EngineConfig, pendingFile bool) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := Request{Config: cfg, PendingFile: pendingFile, Now: c.now()}
	c.refresh(req)
	return c.evaluate(req, c.preGates)
}

// Check runs every gate for a concrete (strategy, direction) proposal.
func (c *Controller) Check(cfg config.EngineConfig, strategy, direction string, pendingFile bool) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := Request{Config: cfg, Strategy: strategy, Direction: direction, PendingFile: pendingFile, Now: c.now()}
	c.refresh(req)
	gates := append(append([]Gate{}, c.preGates...), c.pairGates...)
	return c.evaluate(req, gates)
}

func (c *Controller) evaluate(req Request, gates []Gate) Decision {
	d := Decision{Allowed: true}
	for _, g := range gates {
		ok, reason := g.Check(req)
		if ok {
			d.Passed = append(d.Passed, g.Name())
			continue
		}
		d.Allowed = false
		d.BlockedBy = append(d.BlockedBy, reason)
		observ.IncCounter("signals_rejected_total", map[string]string{"reason": g.Name()})
	}
	return d
}

// refresh lifts elapsed suspensions and starts the global loss pause.
// Caller holds c.mu.
func (c *Controller) refresh(req Request) {
	now := req.Now
	c.liftSuspensions(now)

	if !c.lossPauseUntil.IsZero() && !now.Before(c.lossPauseUntil) {
		c.lossPauseUntil = time.Time{}
		c.consecutiveLosses = 0
		observ.Log("loss_pause_lifted", nil)
	}
	if c.lossPauseUntil.IsZero() && req.Config.MaxLosses > 0 && c.consecutiveLosses >= req.Config.MaxLosses {
		c.lossPauseUntil = now.Add(c.settings.SuspendWindow)
		observ.Log("loss_pause_started", map[string]any{
			"consecutive_losses": c.consecutiveLosses,
			"until":              c.lossPauseUntil.UTC().Format(time.RFC3339),
		})
	}

	today := now.UTC().Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.dailyCount = 0
	}
}

// liftSuspensions ends elapsed pair suspensions and resets their streaks.
// Caller holds c.mu.
func (c *Controller) liftSuspensions(now time.Time) {
	for key, until := range c.suspendedUntil {
		if !now.Before(until) {
			delete(c.suspendedUntil, key)
			c.failStreaks[key] = 0
			observ.Log("fail_streak_reset", map[string]any{"pair": key})
		}
	}
}

// Register records an emitted signal as ACTIVE. It refuses to exceed the
// concurrency cap.
func (c *Controller) Register(s signal.Signal, ctx market.Context, maxConcurrent int) (ActiveEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxConcurrent > 0 && len(c.active) >= maxConcurrent {
		return ActiveEntry{}, fmt.Errorf("%w: %d active", ErrConcurrencyCap, len(c.active))
	}
	now := c.now()
	entry := &ActiveEntry{
		SignalID:   s.SignalID,
		Strategy:   s.StrategyName,
		Direction:  s.Action,
		Confidence: s.Confidence,
		CreatedAt:  now,
		Context:    ctx,
		Phase:      PhaseActive,
	}
	c.active[s.SignalID] = entry
	c.lastEmission = now
	c.pairLastEmitted[pairKey(s.StrategyName, s.Action)] = now

	today := now.UTC().Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.dailyCount = 0
	}
	c.dailyCount++
	c.limiter.AllowN(now, 1)

	observ.SetGauge("active_signals", float64(len(c.active)), nil)
	c.persistState()
	return *entry, nil
}

// Resolve applies an outcome for signalID. The pair's fail streak and the
// global loss counter are updated even when the entry is no longer active.
func (c *Controller) Resolve(signalID, result string) (ActiveEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.liftSuspensions(now)
	entry, wasActive := c.active[signalID]

	var key string
	if wasActive {
		key = pairKey(entry.Strategy, entry.Direction)
	} else if parsed, err := signal.ParseID(signalID); err == nil {
		key = pairKey(parsed.Strategy, parsed.Action)
	}

	if key != "" {
		if result == "LOSS" {
			c.failStreaks[key]++
			c.consecutiveLosses++
			if c.failStreaks[key] >= c.settings.FailStreakThreshold {
				if _, already := c.suspendedUntil[key]; !already {
					c.suspendedUntil[key] = now.Add(c.settings.SuspendWindow)
					observ.Log("fail_streak_suspended", map[string]any{
						"pair":   key,
						"losses": c.failStreaks[key],
						"until":  c.suspendedUntil[key].UTC().Format(time.RFC3339),
					})
					observ.IncCounter("fail_streak_suspensions_total", map[string]string{"pair": key})
				}
			}
		} else {
			c.failStreaks[key] = 0
			c.consecutiveLosses = 0
		}
	}

	if !wasActive {
		c.persistState()
		return ActiveEntry{}, false
	}
	delete(c.active, signalID)
	entry.Phase = PhaseConsumed
	observ.SetGauge("active_signals", float64(len(c.active)), nil)
	c.persistState()
	return *entry, true
}

// Expire moves ACTIVE entries older than the signal timeout to EXPIRED.
func (c *Controller) Expire() []ActiveEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []ActiveEntry
	for id, e := range c.active {
		if now.Sub(e.CreatedAt) >= c.settings.SignalTimeout {
			e.Phase = PhaseExpired
			expired = append(expired, *e)
			delete(c.active, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	observ.IncCounterBy("signals_expired_total", nil, float64(len(expired)))
	observ.SetGauge("active_signals", float64(len(c.active)), nil)
	c.persistState()
	return expired
}

// Lookup returns the active entry for signalID.
func (c *Controller) Lookup(signalID string) (ActiveEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.active[signalID]
	if !ok {
		return ActiveEntry{}, false
	}
	return *e, true
}

// Origin lets the feedback processor enrich records with the signal's
// confidence and market context.
func (c *Controller) Origin(signalID string) (feedback.Origin, bool) {
	e, ok := c.Lookup(signalID)
	if !ok {
		return feedback.Origin{}, false
	}
	return feedback.Origin{Confidence: e.Confidence, Context: e.Context}, true
}

// Active returns the in-flight entries, oldest first.
func (c *Controller) Active() []ActiveEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveEntry, 0, len(c.active))
	for _, e := range c.active {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// FailStreak returns the current consecutive-loss count for a pair.
func (c *Controller) FailStreak(strategy, direction string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failStreaks[pairKey(strategy, direction)]
}

func pairKey(strategy, direction string) string {
	return strategy + "|" + direction
}
