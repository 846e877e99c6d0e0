package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/feedback"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/risk"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
	"github.com/Rajchodisetti/signal-engine/internal/store"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
	"github.com/Rajchodisetti/signal-engine/internal/tuner"
)

type State string

const (
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// stateGauge encodes State for the engine_state gauge.
var stateGauge = map[State]float64{
	StateStarting: 0,
	StateRunning:  1,
	StateStopping: 2,
	StateStopped:  3,
}

const (
	explorationFloorTrades     = 20
	explorationFloorConfidence = 0.10
)

var ErrCatalogMismatch = errors.New("strategy catalog and evaluator registry disagree")

// Engine owns every piece of mutable state of the signal engine.
type Engine struct {
	root  config.Root
	paths config.Paths
	runID string
	log   zerolog.Logger

	classifier market.Classifier
	catalog    []strategy.Definition
	registry   *signal.Registry
	router     *signal.Router
	controller *risk.Controller
	processor  *feedback.Processor
	tuner      *tuner.Tuner

	mu    sync.Mutex
	state State
	cycle int64
	cfg   config.EngineConfig
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New prepares the base directory and loads persisted learning state.
func New(root config.Root) (*Engine, error) {
	paths := root.Paths()
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create base directories: %w", err)
	}

	registry := signal.DefaultRegistry()
	catalog := strategy.Catalog()
	if err := checkCatalog(catalog, registry); err != nil {
		return nil, err
	}

	controller := risk.NewController(risk.Settings{
		SignalTimeout:       time.Duration(root.SignalTimeoutSeconds) * time.Second,
		SuspendWindow:       time.Duration(root.FailStreak.SuspendSeconds) * time.Second,
		FailStreakThreshold: root.FailStreak.Threshold,
		SignalsPerMinute:    root.RateLimit.SignalsPerMinute,
		Burst:               root.RateLimit.Burst,
		StatePath:           paths.ControllerFile,
	})
	if err := controller.Load(); err != nil {
		return nil, fmt.Errorf("failed to load controller state: %w", err)
	}

	processor, err := feedback.NewProcessor(paths)
	if err != nil {
		return nil, err
	}

	tn := tuner.New(tuner.Settings{
		LearningEvery:     root.Tuner.LearningEvery,
		OptimizationEvery: root.Tuner.OptimizationEvery,
		Window:            root.Tuner.Window,
		StatePath:         paths.TunerFile,
	})
	if err := tn.Load(); err != nil {
		return nil, err
	}
	tn.SetTotalTrades(processor.History.Count())

	if !store.Exists(paths.ConfigFile) {
		if err := config.SaveEngineConfig(paths.ConfigFile, config.DefaultEngineConfig()); err != nil {
			return nil, fmt.Errorf("failed to write default engine config: %w", err)
		}
	}
	cfg, err := config.LoadEngineConfig(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine config: %w", err)
	}

	runID := uuid.NewString()
	e := &Engine{
		root:  root,
		paths: paths,
		runID: runID,
		log:   observ.Component("engine").With().Str("run_id", runID).Logger(),
		classifier: market.Classifier{
			BlockLowVolatility:   root.Classifier.BlockLowVolatility,
			LowVolatilityPenalty: root.Classifier.LowVolatilityPenalty,
		},
		catalog:    catalog,
		registry:   registry,
		router:     signal.NewRouter(paths.SignalFile, root.Symbol, root.Timeframe),
		controller: controller,
		processor:  processor,
		tuner:      tn,
		state:      StateStarting,
		cfg:        cfg,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	observ.SetGauge("engine_state", stateGauge[StateStarting], nil)
	observ.Log("engine_init", map[string]any{
		"run_id":       runID,
		"base_dir":     paths.Base,
		"strategies":   len(catalog),
		"active":       controller.ActiveCount(),
		"total_trades": tn.TotalTrades(),
		"mode":         tn.Mode(),
	})
	return e, nil
}

func checkCatalog(catalog []strategy.Definition, registry *signal.Registry) error {
	var missing []string
	names := map[string]bool{}
	for _, d := range catalog {
		names[d.Name] = true
		if !registry.Has(d.Name) {
			missing = append(missing, "evaluator:"+d.Name)
		}
	}
	for _, n := range registry.Names() {
		if !names[n] {
			missing = append(missing, "catalog:"+n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %v", ErrCatalogMismatch, missing)
	}
	return nil
}

// SetClock pins time for the engine and every component it owns.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	e.router.Now = now
	e.controller.SetClock(now)
	e.processor.Now = now
	e.tuner.SetClock(now)
}

func (e *Engine) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	observ.SetGauge("engine_state", stateGauge[s], nil)
	if prev != s {
		observ.Log("engine_state", map[string]any{"from": prev, "to": s, "run_id": e.runID})
	}
}

// Config returns the EngineConfig used by the most recent cycle.
func (e *Engine) Config() config.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) Controller() *risk.Controller { return e.controller }
func (e *Engine) Tuner() *tuner.Tuner           { return e.tuner }
func (e *Engine) Processor() *feedback.Processor {
	return e.processor
}

// Stop asks Run to exit after the current cycle.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Run executes cycles until ctx is cancelled or Stop is called. On exit the
// outstanding signal is cleared and the STOP sentinel written.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateRunning)
	interval := time.Duration(e.root.LoopIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for e.State() == StateRunning {
		e.safeCycle(ctx)
		if !e.sleep(ctx, interval) {
			break
		}
	}
	return e.shutdown()
}

// sleep waits in one-second ticks so a stop request is honoured promptly.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.Now().Add(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-e.stopCh:
			return false
		default:
		}
		if !time.Now().Before(deadline) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-e.stopCh:
			return false
		case <-ticker.C:
		}
	}
}

func (e *Engine) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observ.IncCounter("cycle_errors_total", map[string]string{"stage": "panic"})
			e.log.Error().Interface("panic", r).Msg("cycle_panic")
			observ.Error("cycle_panic", map[string]any{"panic": fmt.Sprint(r), "run_id": e.runID})
		}
	}()
	e.RunCycle(ctx)
}

func (e *Engine) shutdown() error {
	e.setState(StateStopping)
	var errs []error
	if err := e.router.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := e.router.WriteStop(); err != nil {
		errs = append(errs, err)
	}
	e.setState(StateStopped)
	if err := e.writeHeartbeat(false); err != nil {
		errs = append(errs, err)
	}
	observ.Log("engine_stopped", map[string]any{"run_id": e.runID, "cycles": e.cycleCount()})
	return errors.Join(errs...)
}

func (e *Engine) cycleCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}
