package engine

import (
	"github.com/Rajchodisetti/signal-engine/internal/store"
	"github.com/Rajchodisetti/signal-engine/internal/tuner"
)

// Status is the heartbeat document read by the execution agent and UIs.
type Status struct {
	Running             bool       `json:"running"`
	Timestamp           int64      `json:"timestamp"`
	MinConfidence       float64    `json:"minConfidence"`
	MaxConcurrentTrades int        `json:"maxConcurrentTrades"`
	LotSize             float64    `json:"lotSize"`
	State               State      `json:"state"`
	RunID               string     `json:"runId"`
	Cycle               int64      `json:"cycle"`
	Mode                tuner.Mode `json:"mode"`
	ActiveSignals       int        `json:"activeSignals"`
}

func (e *Engine) writeHeartbeat(running bool) error {
	e.mu.Lock()
	st := Status{
		Running:             running,
		Timestamp:           e.now().Unix(),
		MinConfidence:       e.cfg.MinConfidence,
		MaxConcurrentTrades: e.cfg.MaxConcurrentTrades,
		LotSize:             e.cfg.LotSize,
		State:               e.state,
		RunID:               e.runID,
		Cycle:               e.cycle,
	}
	e.mu.Unlock()
	st.Mode = e.tuner.Mode()
	st.ActiveSignals = e.controller.ActiveCount()
	return store.WriteJSON(e.paths.StatusFile, st)
}

// ReadStatus loads a heartbeat file.
func ReadStatus(path string) (Status, bool, error) {
	var st Status
	found, err := store.ReadJSON(path, &st)
	return st, found, err
}
