package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rajchodisetti/signal-engine/internal/config"
	"github.com/Rajchodisetti/signal-engine/internal/engine"
	"github.com/Rajchodisetti/signal-engine/internal/observ"
)

func main() {
	var cfgPath string
	var baseDir string
	var metricsAddr string
	var oneShot bool
	flag.StringVar(&cfgPath, "config", "config/engine.yaml", "config path")
	flag.StringVar(&baseDir, "base", "", "exchange directory (overrides config and "+config.BaseDirEnv+")")
	flag.StringVar(&metricsAddr, "metrics", "", "serve /metrics and /health on this address, e.g. 127.0.0.1:8090")
	flag.BoolVar(&oneShot, "oneshot", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	usedDefaults := false
	if errors.Is(err, os.ErrNotExist) {
		cfg, err, usedDefaults = config.Default(), nil, true
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Apply environment variable overrides
	cfg.ApplyEnv()

	// Apply command line overrides
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	if err := observ.Setup(observ.LogOptions{
		Level:    cfg.Log.Level,
		RingSize: cfg.Log.RingSize,
		FilePath: cfg.LogPath(),
	}); err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer observ.Close()

	if usedDefaults {
		observ.Log("config_default", map[string]any{"path": cfgPath})
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}

	observ.Log("startup", map[string]any{
		"run_id":        eng.RunID(),
		"base_dir":      cfg.BaseDir,
		"loop_interval": cfg.LoopIntervalSeconds,
		"symbol":        cfg.Symbol,
		"timeframe":     cfg.Timeframe,
		"metrics_addr":  cfg.Metrics.Addr,
	})

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observ.Handler())
		mux.Handle("/health", observ.HealthHandler())
		observ.Log("metrics_listen", map[string]any{"addr": cfg.Metrics.Addr})
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				observ.Error("metrics_listen_error", map[string]any{"error": err.Error()})
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if oneShot {
		res := eng.RunCycle(ctx)
		observ.Log("oneshot_done", map[string]any{
			"cycle_id": res.CycleID,
			"emitted":  res.Emitted != nil,
			"skipped":  res.Skipped,
		})
		return
	}

	if err := eng.Run(ctx); err != nil {
		observ.Error("shutdown_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
