package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/market"
	"github.com/Rajchodisetti/signal-engine/internal/signal"
	"github.com/Rajchodisetti/signal-engine/internal/strategy"
	"github.com/Rajchodisetti/signal-engine/internal/tuner"
)

// replayLine is printed once per snapshot.
type replayLine struct {
	File       string            `json:"file"`
	Context    market.Context    `json:"context"`
	Top        []strategy.Scored `json:"top"`
	Selected   string            `json:"selected,omitempty"`
	Action     string            `json:"action,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Emit       bool              `json:"emit"`
	Reason     string            `json:"reason"`
}

func main() {
	log.SetFlags(0)
	var cfgPath string
	var glob string
	var minConf float64
	var statePath string
	flag.StringVar(&cfgPath, "config", "config/engine.yaml", "config path")
	flag.StringVar(&glob, "snapshots", "fixtures/snapshots/*.json", "snapshot files to replay")
	flag.Float64Var(&minConf, "min-confidence", config.DefaultEngineConfig().MinConfidence, "confidence gate")
	flag.StringVar(&statePath, "tuner-state", "", "optional ml_state.json for learned priorities")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if os.IsNotExist(err) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	files, err := filepath.Glob(glob)
	if err != nil {
		log.Fatalf("glob %s: %v", glob, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		log.Fatalf("no snapshots match %s", glob)
	}

	tn := tuner.New(tuner.Settings{StatePath: statePath})
	if err := tn.Load(); err != nil {
		log.Fatalf("load tuner state: %v", err)
	}

	classifier := market.Classifier{
		BlockLowVolatility:   cfg.Classifier.BlockLowVolatility,
		LowVolatilityPenalty: cfg.Classifier.LowVolatilityPenalty,
	}
	registry := signal.DefaultRegistry()
	router := signal.NewRouter("", cfg.Symbol, cfg.Timeframe)
	catalog := strategy.Catalog()
	enc := json.NewEncoder(os.Stdout)

	for _, f := range files {
		snap, err := market.ReadSnapshot(f)
		if err != nil {
			log.Printf("skip %s: %v", f, err)
			continue
		}
		line := replayLine{File: f, Context: classifier.Classify(snap)}
		ranked := strategy.Rank(catalog, line.Context, tn)
		line.Top = ranked[:min(3, len(ranked))]

		switch sel, ok := strategy.Select(ranked, tn.MinSelectionScore(), registry.Has); {
		case !line.Context.TradeAllowed:
			line.Reason = "context not tradeable"
		case !ok:
			line.Reason = "no setup"
		default:
			line.Selected = sel.Name
			p, ok, err := registry.Evaluate(sel.Name, line.Context, snap)
			if err != nil {
				log.Fatalf("evaluate %s: %v", sel.Name, err)
			}
			if !ok {
				line.Reason = "evaluator declined"
				break
			}
			line.Action, line.Confidence = p.Action, p.Confidence
			if _, err := router.Build(sel.Name, p, minConf); err != nil {
				line.Reason = err.Error()
				break
			}
			line.Emit = true
			line.Reason = p.Reason
		}
		if err := enc.Encode(line); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}
	fmt.Fprintf(os.Stderr, "replayed %d snapshots\n", len(files))
}
