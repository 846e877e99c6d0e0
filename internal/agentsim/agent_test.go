package agentsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/feedback"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

func newTestAgent(t *testing.T, opts Options) (*Agent, config.Paths, *time.Time) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirs())
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a := New(paths, opts)
	a.Now = func() time.Time { return now }
	return a, paths, &now
}

func TestAgentConsumesAndReports(t *testing.T) {
	tests := []struct {
		name     string
		winRate  float64
		result   string
		wantPips float64
	}{
		{name: "win", winRate: 1, result: feedback.ResultWin, wantPips: 25},
		{name: "loss", winRate: 0, result: feedback.ResultLoss, wantPips: -15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, paths, now := newTestAgent(t, Options{LatencyMsMin: 1000, LatencyMsMax: 1000, WinRate: tt.winRate, Seed: 7})
			router := signal.NewRouter(paths.SignalFile, "EURUSD", "M5")
			router.Now = func() time.Time { return *now }
			sig, err := router.Route("TREND_FOLLOWING", signal.Proposal{Action: signal.ActionBuy, Confidence: 0.8, SLPips: 15, TPPips: 25}, 0.3)
			require.NoError(t, err)

			stop, err := a.Poll()
			require.NoError(t, err)
			assert.False(t, stop)
			assert.False(t, store.Exists(paths.SignalFile), "signal consumed")
			require.Len(t, a.Open(), 1)

			recs, err := a.Settle(false)
			require.NoError(t, err)
			assert.Empty(t, recs, "not closed before latency elapses")

			*now = now.Add(2 * time.Second)
			recs, err = a.Settle(false)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.result, recs[0].Result)
			assert.Equal(t, tt.wantPips, recs[0].Pips)
			assert.Empty(t, a.Open())

			var onDisk feedback.Record
			found, err := store.ReadJSON(paths.FeedbackDir+"/fb_"+sig.SignalID+".json", &onDisk)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, sig.SignalID, onDisk.SignalID)
		})
	}
}

func TestAgentStopsOnSentinel(t *testing.T) {
	a, paths, _ := newTestAgent(t, DefaultOptions())
	router := signal.NewRouter(paths.SignalFile, "EURUSD", "M5")
	require.NoError(t, router.WriteStop())

	stop, err := a.Poll()
	require.NoError(t, err)
	assert.True(t, stop)
	assert.True(t, store.Exists(paths.SignalFile), "sentinel left for other readers")
}
