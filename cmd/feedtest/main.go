// feedtest dials the positions stream and prints every decoded event.
//
//	go run ./cmd/feedtest -config configs/monitor.yaml
//	go run ./cmd/feedtest -url ws://localhost:9000/ws/positions -verbose
//
// Stream URL, key and portfolios come from the config's stream section.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/connection"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/router"
)

type options struct {
	verbose    bool
	statsEvery time.Duration
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	url := flag.String("url", "", "stream URL, overrides the config")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	statsEvery := flag.Duration("stats", 10*time.Second, "stats log interval, 0 disables")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg, err := loadStreamConfig(*configPath, *url)
	if err != nil {
		logger.Error("invalid stream settings", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, options{verbose: *verbose, statsEvery: *statsEvery}, logger); err != nil {
		logger.Error("feedtest failed", "error", err)
		os.Exit(1)
	}
}

func loadStreamConfig(path, url string) (config.StreamConfig, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadWithDefaults(path)
		if err != nil {
			return config.StreamConfig{}, err
		}
		cfg = loaded
	}
	if url != "" {
		cfg.Stream.URL = url
	}
	if cfg.Stream.URL == "" {
		return config.StreamConfig{}, fmt.Errorf("stream URL required: set stream.url or pass -url")
	}
	return cfg.Stream, nil
}

// run streams until ctx is canceled, writing one line per event to out.
func run(ctx context.Context, sc config.StreamConfig, out io.Writer, opts options, logger *slog.Logger) error {
	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Client.URL = sc.URL
	mgrCfg.Client.APIKey = sc.APIKey
	mgrCfg.Client.PingInterval = sc.PingInterval
	mgrCfg.Client.PingTimeout = sc.PingTimeout
	mgrCfg.Portfolios = sc.Portfolios
	mgrCfg.ReconnectBaseWait = sc.ReconnectBaseDelay
	mgrCfg.ReconnectMaxWait = sc.ReconnectMaxDelay

	mgr := connection.NewManager(mgrCfg, logger)
	rtr := router.NewRouter(router.DefaultRouterConfig(), mgr.Messages(), nil, logger)

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	if err := rtr.Start(ctx); err != nil {
		mgr.Stop(context.Background())
		return err
	}
	logger.Info("streaming, interrupt to stop", "url", sc.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			ev, ok := rtr.Buffer().ReceiveContext(gctx)
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(out, formatEvent(ev, opts.verbose)); err != nil {
				return err
			}
		}
	})
	if opts.statsEvery > 0 {
		g.Go(func() error {
			logStats(gctx, opts.statsEvery, mgr, rtr, logger)
			return nil
		})
	}
	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rtr.Stop(shutdownCtx)
	mgr.Stop(shutdownCtx)
	return err
}

func logStats(ctx context.Context, every time.Duration, mgr connection.Manager, rtr router.Router, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs, rs := mgr.Stats(), rtr.Stats()
			logger.Info("stats",
				"connected", cs.Connected,
				"reconnects", cs.Reconnects,
				"seq_gaps", cs.SeqGaps,
				"frames_dropped", cs.Session.Dropped,
				"received", rs.MessagesReceived,
				"routed", rs.MessagesRouted,
				"parse_errors", rs.ParseErrors,
				"buffered", rs.Buffer.Count,
			)
		}
	}
}

func formatEvent(ev model.Event, verbose bool) string {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		return fmt.Sprintf("[%s] %s", ev.Kind, data)
	}

	switch ev.Kind {
	case model.KindUpdate:
		return fmt.Sprintf("[UPDATE] id=%s field=%s value=%.2f", ev.Update.ID, ev.Update.Field, ev.Update.Value)
	case model.KindInsert:
		fields := make([]string, 0, len(ev.Insert.Numbers))
		for f := range ev.Insert.Numbers {
			fields = append(fields, f)
		}
		slices.Sort(fields)
		return fmt.Sprintf("[INSERT] id=%s instrument=%q fields=%v", ev.Insert.ID, ev.Insert.Label(model.FieldInstrument), fields)
	default:
		return fmt.Sprintf("[%s] %+v", ev.Kind, ev)
	}
}
