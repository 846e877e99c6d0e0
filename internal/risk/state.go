package risk

import (
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/observ"
	"github.com/Rajchodisetti/signal-engine/internal/store"
)

// controllerState is the persisted form of the controller, so suspensions
// and in-flight signals survive a restart.
type controllerState struct {
	Active            []ActiveEntry        `json:"active"`
	LastEmission      time.Time            `json:"lastEmission"`
	PairLastEmitted   map[string]time.Time `json:"pairLastEmitted"`
	FailStreaks       map[string]int       `json:"failStreaks"`
	SuspendedUntil    map[string]time.Time `json:"suspendedUntil"`
	ConsecutiveLosses int                  `json:"consecutiveLosses"`
	LossPauseUntil    time.Time            `json:"lossPauseUntil"`
	Day               string               `json:"day"`
	DailyCount        int                  `json:"dailyCount"`
}

// Load restores persisted state. A missing file leaves the controller empty.
func (c *Controller) Load() error {
	if c.settings.StatePath == "" {
		return nil
	}
	var st controllerState
	found, err := store.ReadJSON(c.settings.StatePath, &st)
	if err != nil || !found {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = map[string]*ActiveEntry{}
	for i := range st.Active {
		e := st.Active[i]
		c.active[e.SignalID] = &e
	}
	c.lastEmission = st.LastEmission
	if st.PairLastEmitted != nil {
		c.pairLastEmitted = st.PairLastEmitted
	}
	if st.FailStreaks != nil {
		c.failStreaks = st.FailStreaks
	}
	if st.SuspendedUntil != nil {
		c.suspendedUntil = st.SuspendedUntil
	}
	c.consecutiveLosses = st.ConsecutiveLosses
	c.lossPauseUntil = st.LossPauseUntil
	c.day = st.Day
	c.dailyCount = st.DailyCount

	observ.Log("controller_state_loaded", map[string]any{
		"active":      len(c.active),
		"suspensions": len(c.suspendedUntil),
	})
	return nil
}

// persistState saves the controller. Caller holds c.mu.
func (c *Controller) persistState() {
	if c.settings.StatePath == "" {
		return
	}
	st := controllerState{
		Active:            make([]ActiveEntry, 0, len(c.active)),
		LastEmission:      c.lastEmission,
		PairLastEmitted:   c.pairLastEmitted,
		FailStreaks:       c.failStreaks,
		SuspendedUntil:    c.suspendedUntil,
		ConsecutiveLosses: c.consecutiveLosses,
		LossPauseUntil:    c.lossPauseUntil,
		Day:               c.day,
		DailyCount:        c.dailyCount,
	}
	for _, e := range c.active {
		st.Active = append(st.Active, *e)
	}
	if err := store.WriteJSON(c.settings.StatePath, st); err != nil {
		observ.Warn("controller_state_save_error", map[string]any{"error": err.Error()})
		observ.IncCounter("controller_persist_errors_total", nil)
	}
}
