package risk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController(t *testing.T, settings Settings) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	c := NewController(settings)
	c.SetClock(clock.Now)
	return c, clock
}

func testSignal(at time.Time, action, strategy string) signal.Signal {
	return signal.Signal{
		SignalID:     signal.BuildID(at, action, strategy),
		Action:       action,
		Confidence:   0.7,
		StrategyName: strategy,
	}
}

func relaxedConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.CooldownSeconds = 0
	cfg.MinSignalIntervalSeconds = 0
	cfg.MaxConcurrentTrades = 3
	return cfg
}

func TestPreCheckConcurrencyAndPendingFile(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.MaxConcurrentTrades = 1

	d := c.PreCheck(cfg, false)
	require.True(t, d.Allowed, "blocked by %v", d.BlockedBy)

	_, err := c.Register(testSignal(clock.Now(), signal.ActionBuy, "TREND_FOLLOWING"), market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	d = c.PreCheck(cfg, true)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.BlockedBy, "concurrency_1_of_1")
	assert.Contains(t, d.BlockedBy, "pending_signal_file")

	_, err = c.Register(testSignal(clock.Now(), signal.ActionSell, "BREAKOUT"), market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.ErrorIs(t, err, ErrConcurrencyCap)
	assert.Equal(t, 1, c.ActiveCount())
}

func TestCooldownAndMinInterval(t *testing.T) {
	c, clock := newTestController(t, Settings{SignalTimeout: 5 * time.Minute, SuspendWindow: 5 * time.Minute})
	cfg := config.DefaultEngineConfig()
	cfg.CooldownSeconds = 30
	cfg.MinSignalIntervalSeconds = 60
	cfg.AvoidRepeatStrategy = false

	sig := testSignal(clock.Now(), signal.ActionBuy, "MOMENTUM")
	_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)
	_, ok := c.Resolve(sig.SignalID, "WIN")
	require.True(t, ok)

	clock.Advance(10 * time.Second)
	d := c.Check(cfg, "MOMENTUM", signal.ActionBuy, false)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.BlockedBy, "cooldown_remaining_20s")
	assert.Contains(t, d.BlockedBy, "min_interval_MOMENTUM_BUY_remaining_50s")

	clock.Advance(25 * time.Second)
	d = c.Check(cfg, "MOMENTUM", signal.ActionBuy, false)
	assert.Equal(t, []string{"min_interval_MOMENTUM_BUY_remaining_25s"}, d.BlockedBy)

	// A different direction of the same strategy is not throttled.
	d = c.Check(cfg, "MOMENTUM", signal.ActionSell, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)

	clock.Advance(25 * time.Second)
	d = c.Check(cfg, "MOMENTUM", signal.ActionBuy, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
}

func TestDuplicateActivePair(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.AvoidRepeatStrategy = true

	_, err := c.Register(testSignal(clock.Now(), signal.ActionSell, "SCALPING"), market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	d := c.Check(cfg, "SCALPING", signal.ActionSell, false)
	assert.Contains(t, d.BlockedBy, "duplicate_active_SCALPING_SELL")

	cfg.AvoidRepeatStrategy = false
	d = c.Check(cfg, "SCALPING", signal.ActionSell, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
}

func TestFailStreakSuspendsPair(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.MaxLosses = 0

	for i := 0; i < 3; i++ {
		sig := testSignal(clock.Now(), signal.ActionSell, "MEAN_REVERSION")
		_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
		require.NoError(t, err)
		_, ok := c.Resolve(sig.SignalID, "LOSS")
		require.True(t, ok)
		clock.Advance(20 * time.Second)
	}
	assert.Equal(t, 3, c.FailStreak("MEAN_REVERSION", signal.ActionSell))

	d := c.Check(cfg, "MEAN_REVERSION", signal.ActionSell, false)
	require.False(t, d.Allowed)
	assert.Contains(t, d.BlockedBy[0], "fail_streak_MEAN_REVERSION_SELL_remaining_")

	d = c.Check(cfg, "MEAN_REVERSION", signal.ActionBuy, false)
	assert.True(t, d.Allowed, "opposite direction blocked by %v", d.BlockedBy)

	clock.Advance(5 * time.Minute)
	d = c.Check(cfg, "MEAN_REVERSION", signal.ActionSell, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
	assert.Equal(t, 0, c.FailStreak("MEAN_REVERSION", signal.ActionSell))
}

func TestLossAfterSuspensionElapsedStartsNewStreak(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.MaxLosses = 0

	for i := 0; i < 3; i++ {
		id := signal.BuildID(clock.Now(), signal.ActionSell, "MEAN_REVERSION")
		c.Resolve(id, "LOSS")
		clock.Advance(time.Second)
	}
	require.False(t, c.Check(cfg, "MEAN_REVERSION", signal.ActionSell, false).Allowed)

	// The window elapses and a loss arrives before any gate check.
	clock.Advance(5 * time.Minute)
	c.Resolve(signal.BuildID(clock.Now(), signal.ActionSell, "MEAN_REVERSION"), "LOSS")
	assert.Equal(t, 1, c.FailStreak("MEAN_REVERSION", signal.ActionSell))

	d := c.Check(cfg, "MEAN_REVERSION", signal.ActionSell, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
	assert.Equal(t, 1, c.FailStreak("MEAN_REVERSION", signal.ActionSell))

	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		c.Resolve(signal.BuildID(clock.Now(), signal.ActionSell, "MEAN_REVERSION"), "LOSS")
	}
	assert.False(t, c.Check(cfg, "MEAN_REVERSION", signal.ActionSell, false).Allowed)
}

func TestResolveUnknownIDStillCountsLoss(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())

	id := signal.BuildID(clock.Now(), signal.ActionBuy, "BREAKOUT")
	_, ok := c.Resolve(id, "LOSS")
	assert.False(t, ok)
	assert.Equal(t, 1, c.FailStreak("BREAKOUT", signal.ActionBuy))

	_, ok = c.Resolve(id, "WIN")
	assert.False(t, ok)
	assert.Equal(t, 0, c.FailStreak("BREAKOUT", signal.ActionBuy))
}

func TestLossPause(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.MaxLosses = 2

	for _, strat := range []string{"BREAKOUT", "SCALPING"} {
		sig := testSignal(clock.Now(), signal.ActionBuy, strat)
		_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
		require.NoError(t, err)
		c.Resolve(sig.SignalID, "LOSS")
		clock.Advance(15 * time.Second)
	}

	d := c.PreCheck(cfg, false)
	require.False(t, d.Allowed)
	assert.Equal(t, []string{"loss_pause_remaining_300s"}, d.BlockedBy)

	clock.Advance(5 * time.Minute)
	d = c.PreCheck(cfg, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
}

func TestDailyCapRollsOver(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()
	cfg.MaxDailyTrades = 2

	for i := 0; i < 2; i++ {
		sig := testSignal(clock.Now(), signal.ActionBuy, "BREAKOUT")
		_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
		require.NoError(t, err)
		c.Resolve(sig.SignalID, "WIN")
		clock.Advance(time.Minute)
	}
	d := c.PreCheck(cfg, false)
	assert.Contains(t, d.BlockedBy, "daily_trades_2_exceeds_2")

	clock.Advance(24 * time.Hour)
	d = c.PreCheck(cfg, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
}

func TestRateLimit(t *testing.T) {
	settings := DefaultSettings()
	settings.SignalsPerMinute = 1
	settings.Burst = 1
	c, clock := newTestController(t, settings)
	cfg := relaxedConfig()

	sig := testSignal(clock.Now(), signal.ActionBuy, "BREAKOUT")
	_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)
	c.Resolve(sig.SignalID, "WIN")

	clock.Advance(10 * time.Second)
	d := c.PreCheck(cfg, false)
	assert.Contains(t, d.BlockedBy, "rate_limited")

	clock.Advance(time.Minute)
	d = c.PreCheck(cfg, false)
	assert.True(t, d.Allowed, "blocked by %v", d.BlockedBy)
}

func TestExpire(t *testing.T) {
	c, clock := newTestController(t, DefaultSettings())
	cfg := relaxedConfig()

	first := testSignal(clock.Now(), signal.ActionBuy, "BREAKOUT")
	_, err := c.Register(first, market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	second := testSignal(clock.Now(), signal.ActionSell, "SCALPING")
	_, err = c.Register(second, market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	expired := c.Expire()
	require.Len(t, expired, 1)
	assert.Equal(t, first.SignalID, expired[0].SignalID)
	assert.Equal(t, PhaseExpired, expired[0].Phase)

	_, ok := c.Lookup(first.SignalID)
	assert.False(t, ok)
	_, ok = c.Lookup(second.SignalID)
	assert.True(t, ok)
	assert.Empty(t, c.Expire())
}

func TestStatePersistence(t *testing.T) {
	settings := DefaultSettings()
	settings.StatePath = filepath.Join(t.TempDir(), "controller_state.json")
	c, clock := newTestController(t, settings)
	cfg := relaxedConfig()

	sig := testSignal(clock.Now(), signal.ActionBuy, "TREND_FOLLOWING")
	_, err := c.Register(sig, market.DefaultContext(), cfg.MaxConcurrentTrades)
	require.NoError(t, err)
	loss := signal.BuildID(clock.Now(), signal.ActionSell, "MEAN_REVERSION")
	c.Resolve(loss, "LOSS")

	restored, _ := newTestController(t, settings)
	require.NoError(t, restored.Load())
	entry, ok := restored.Lookup(sig.SignalID)
	require.True(t, ok)
	assert.Equal(t, "TREND_FOLLOWING", entry.Strategy)
	assert.Equal(t, PhaseActive, entry.Phase)
	assert.Equal(t, 1, restored.FailStreak("MEAN_REVERSION", signal.ActionSell))
}

func TestLoadMissingState(t *testing.T) {
	settings := DefaultSettings()
	settings.StatePath = filepath.Join(t.TempDir(), "missing.json")
	c, _ := newTestController(t, settings)
	require.NoError(t, c.Load())
	assert.Zero(t, c.ActiveCount())
}
