// monitor runs the live positions engine behind an HTTP API.
// Usage: go run ./cmd/monitor --config configs/monitor.yaml
//
// With no config file the simulator drives the built-in demo positions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/position-monitor/internal/clock"
	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/engine"
	"github.com/rickgao/position-monitor/internal/highlight"
	"github.com/rickgao/position-monitor/internal/metrics"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/router"
	"github.com/rickgao/position-monitor/internal/server"
	"github.com/rickgao/position-monitor/internal/version"
	"github.com/rickgao/position-monitor/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults)")
	source := flag.String("source", "", "override update source: simulator, stream or rest")
	port := flag.Int("port", 0, "override HTTP port")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	writeSeed := flag.Bool("write-seed", false, "write the demo positions to the configured database and exit")
	printConfig := flag.Bool("print-config", false, "print the effective config with secrets masked and exit")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting position monitor",
		"version", version.String(),
		"go", version.Get().Go,
		"config", *configPath,
	)

	cfg, err := loadConfig(*configPath, *source, *port)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := config.Dump(cfg)
		if err != nil {
			logger.Error("failed to render config", "error", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"source", cfg.Source,
		"database", cfg.Database.Driver,
		"highlight_duration", cfg.Engine.HighlightDuration,
		"insertion_glow_duration", cfg.Engine.InsertionGlowDuration,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *writeSeed {
		if err := writeDemoSeed(ctx, cfg, logger); err != nil {
			logger.Error("failed to write seed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("monitor failed", "error", err)
		os.Exit(1)
	}

	logger.Info("position monitor stopped")
}

func run(ctx context.Context, cfg *config.MonitorConfig, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	eng := engine.New(engine.Config{
		Highlight: highlight.Config{
			HighlightDuration:     cfg.Engine.HighlightDuration,
			InsertionGlowDuration: cfg.Engine.InsertionGlowDuration,
		},
		Schema: cfg.Schema(),
	}, clock.NewReal(), m, logger)
	defer eng.Close()

	seed, err := loadSeed(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	defer seed.Close()

	if err := eng.Seed(seed.Records); err != nil {
		return fmt.Errorf("seed engine: %w", err)
	}
	logger.Info("engine seeded", "records", len(seed.Records), "from", seed.From)

	events := router.NewGrowableBuffer[model.Event](cfg.Engine.EventBufferSize,
		router.WithMaxCapacity(cfg.Engine.EventBufferMax))

	src, err := startSource(ctx, cfg, eng, events, logger)
	if err != nil {
		return fmt.Errorf("start %s source: %w", cfg.Source, err)
	}

	hub := server.NewHub(logger)
	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		MetricsPath: cfg.Server.MetricsPath,
	}, eng, hub, metrics.Handler(reg), logger)
	srv.AddStatus("source", src.Status)
	srv.AddStatus("events", func() any { return events.Stats() })
	if seed.Check != nil {
		srv.AddCheck("database", seed.Check)
	}

	checkpoint, err := startCheckpoint(ctx, cfg, seed, eng, hub, logger)
	if err != nil {
		src.Stop(ctx)
		return fmt.Errorf("start checkpoint writer: %w", err)
	}
	if checkpoint != nil {
		srv.AddStatus("checkpoint", func() any { return checkpoint.Stats() })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx, events); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx, eng.Changes())
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	logger.Info("position monitor running",
		"instance_id", cfg.Instance.ID,
		"positions_url", fmt.Sprintf("http://localhost:%d/positions", cfg.Server.Port),
	)

	err = g.Wait()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	src.Stop(shutdownCtx)
	events.Close()
	if checkpoint != nil {
		checkpoint.Stop(shutdownCtx)
	}

	return err
}

// startCheckpoint starts the checkpoint writer when enabled. It returns
// nil when checkpointing is off.
func startCheckpoint(ctx context.Context, cfg *config.MonitorConfig, seed *seedResult, eng *engine.Engine, hub *server.Hub, logger *slog.Logger) (*writer.CheckpointWriter, error) {
	if !cfg.Checkpoint.Enabled {
		return nil, nil
	}
	if seed.Store == nil {
		return nil, errors.New("checkpoint requires a database")
	}

	msgs, unsubscribe := hub.Subscribe()
	w := writer.NewCheckpointWriter(writer.WriterConfig{
		BatchSize:     cfg.Checkpoint.BatchSize,
		FlushInterval: cfg.Checkpoint.FlushInterval,
	}, msgs, eng, seed.Store, logger)
	if err := w.Start(ctx); err != nil {
		unsubscribe()
		return nil, err
	}

	logger.Info("checkpointing enabled", "table", cfg.Database.Table)
	return w, nil
}

// loadConfig loads the config file, or defaults when path is empty, and
// applies command line overrides.
func loadConfig(path, source string, port int) (*config.MonitorConfig, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadWithDefaults(path)
		if err != nil {
			return nil, err
		}
	}

	if source != "" {
		cfg.Source = source
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
