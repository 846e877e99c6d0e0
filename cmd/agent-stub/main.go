package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rajchodisetti/signal-engine/internal/agentsim"
	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
)

// agent-stub plays the execution agent for local runs: it consumes the
// engine's signal file and answers with simulated trade feedback.
func main() {
	opts := agentsim.DefaultOptions()
	var cfgPath string
	var baseDir string
	var pollMs int
	flag.StringVar(&cfgPath, "config", "config/engine.yaml", "config path")
	flag.StringVar(&baseDir, "base", "", "exchange directory (overrides config and "+config.BaseDirEnv+")")
	flag.IntVar(&pollMs, "poll-ms", 1000, "signal file poll interval")
	flag.IntVar(&opts.LatencyMsMin, "latency-ms-min", opts.LatencyMsMin, "minimum simulated trade duration")
	flag.IntVar(&opts.LatencyMsMax, "latency-ms-max", opts.LatencyMsMax, "maximum simulated trade duration")
	flag.Float64Var(&opts.WinRate, "win-rate", opts.WinRate, "probability a trade hits take-profit")
	flag.Float64Var(&opts.SlippagePipsMax, "slippage-pips", opts.SlippagePipsMax, "maximum adverse slippage in pips")
	flag.Int64Var(&opts.Seed, "seed", 0, "random seed (0 = time based)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if os.IsNotExist(err) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ApplyEnv()
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if err := observ.Setup(observ.LogOptions{Level: cfg.Log.Level, RingSize: cfg.Log.RingSize}); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	paths := cfg.Paths()
	if err := paths.EnsureDirs(); err != nil {
		log.Fatalf("prepare %s: %v", paths.Base, err)
	}

	agent := agentsim.New(paths, opts)
	observ.Log("agent_startup", map[string]any{
		"base_dir": paths.Base,
		"win_rate": opts.WinRate,
		"poll_ms":  pollMs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := agent.Run(ctx, time.Duration(pollMs)*time.Millisecond); err != nil {
		log.Fatalf("agent: %v", err)
	}
	observ.Log("agent_stopped", nil)
}
