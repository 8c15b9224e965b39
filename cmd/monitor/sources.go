package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/position-monitor/internal/api"
	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/connection"
	"github.com/rickgao/position-monitor/internal/database"
	"github.com/rickgao/position-monitor/internal/engine"
	"github.com/rickgao/position-monitor/internal/feed"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/poller"
	"github.com/rickgao/position-monitor/internal/router"
)

// seedResult is the initial snapshot and where it came from.
type seedResult struct {
	Records []model.Record
	From    string
	Check   func(ctx context.Context) error // Nil unless a database is open
	Store   database.Store                  // Nil unless a database is open
	close   func()
}

// Close releases the seed database, if any.
func (s *seedResult) Close() {
	if s.close != nil {
		s.close()
	}
}

// loadSeed picks the initial snapshot: the configured database, else the
// REST API when it is the update source, else the demo positions.
func loadSeed(ctx context.Context, cfg *config.MonitorConfig, logger *slog.Logger) (*seedResult, error) {
	switch {
	case cfg.Database.Driver != config.DriverNone:
		logger.Info("loading seed from database",
			"driver", cfg.Database.Driver,
			"table", cfg.Database.Table,
		)
		loader, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		records, err := loader.LoadPositions(ctx)
		if err != nil {
			loader.Close()
			return nil, err
		}
		res := &seedResult{Records: records, From: cfg.Database.Driver, Store: loader, close: loader.Close}
		if pg, ok := loader.(*database.PGSource); ok {
			res.Check = pg.Ping
		}
		return res, nil

	case cfg.Source == config.SourceREST:
		client := newAPIClient(cfg, logger)
		var records []model.Record
		for _, portfolio := range portfoliosOrAll(cfg.Poller.Portfolios) {
			positions, err := client.GetAllPositions(ctx, portfolio)
			if err != nil {
				return nil, fmt.Errorf("fetch positions: %w", err)
			}
			records = append(records, api.ToRecords(positions)...)
		}
		return &seedResult{Records: records, From: "rest"}, nil

	default:
		return &seedResult{Records: feed.SamplePositions(), From: "demo"}, nil
	}
}

// writeDemoSeed stores the demo positions in the configured database.
func writeDemoSeed(ctx context.Context, cfg *config.MonitorConfig, logger *slog.Logger) error {
	records := feed.SamplePositions()

	if cfg.Database.Driver == config.DriverNone {
		return errors.New("database.driver must be set to write a seed")
	}

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SavePositions(ctx, records); err != nil {
		return err
	}

	logger.Info("seed written", "records", len(records), "table", cfg.Database.Table)
	return nil
}

// runningSource is a started update source.
type runningSource struct {
	Stop   func(ctx context.Context)
	Status func() any
}

// startSource starts the configured update source feeding events.
func startSource(ctx context.Context, cfg *config.MonitorConfig, eng *engine.Engine, events *router.GrowableBuffer[model.Event], logger *slog.Logger) (*runningSource, error) {
	switch cfg.Source {
	case config.SourceSimulator:
		sim := feed.NewSimulator(feed.Config{
			UpdateSchedule: cfg.Simulator.UpdateSchedule,
			JitterPct:      cfg.Simulator.JitterPct,
			InsertDelay:    cfg.Simulator.InsertDelay,
			Fields:         cfg.Schema().MutableFields,
			Seed:           cfg.Simulator.Seed,
		}, eng, events, logger)
		if err := sim.Start(ctx); err != nil {
			return nil, err
		}
		return &runningSource{
			Stop:   func(ctx context.Context) { sim.Stop(ctx) },
			Status: func() any { return sim.Stats() },
		}, nil

	case config.SourceStream:
		mgrCfg := connection.DefaultManagerConfig()
		mgrCfg.Client.URL = cfg.Stream.URL
		mgrCfg.Client.APIKey = cfg.Stream.APIKey
		mgrCfg.Client.PingInterval = cfg.Stream.PingInterval
		mgrCfg.Client.PingTimeout = cfg.Stream.PingTimeout
		mgrCfg.Portfolios = cfg.Stream.Portfolios
		mgrCfg.ReconnectBaseWait = cfg.Stream.ReconnectBaseDelay
		mgrCfg.ReconnectMaxWait = cfg.Stream.ReconnectMaxDelay
		mgrCfg.MessageBufferSize = cfg.Stream.BufferSize

		mgr := connection.NewManager(mgrCfg, logger)
		rtr := router.NewRouter(router.RouterConfig{
			BufferSize: cfg.Engine.EventBufferSize,
			Source:     config.SourceStream,
		}, mgr.Messages(), events, logger)

		logger.Info("starting connection manager", "url", cfg.Stream.URL)
		if err := mgr.Start(ctx); err != nil {
			return nil, err
		}
		if err := rtr.Start(ctx); err != nil {
			mgr.Stop(ctx)
			return nil, err
		}
		return &runningSource{
			Stop: func(ctx context.Context) {
				rtr.Stop(ctx)
				mgr.Stop(ctx)
			},
			Status: func() any {
				return map[string]any{
					"connection": mgr.Stats(),
					"router":     rtr.Stats(),
				}
			},
		}, nil

	case config.SourceREST:
		client := newAPIClient(cfg, logger)
		p := poller.New(poller.Config{
			Interval:    cfg.Poller.Interval,
			Concurrency: cfg.Poller.Concurrency,
			Timeout:     cfg.Poller.Timeout,
			Portfolios:  cfg.Poller.Portfolios,
		}, client, eng, events, cfg.Schema(), logger)
		if err := p.Start(ctx); err != nil {
			return nil, err
		}
		return &runningSource{
			Stop:   func(ctx context.Context) { p.Stop(ctx) },
			Status: func() any {
				return map[string]any{
					"poller": p.Stats(),
					"api":    client.Stats(),
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func newAPIClient(cfg *config.MonitorConfig, logger *slog.Logger) *api.Client {
	return api.NewClient(
		cfg.API.RestURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)
}

func portfoliosOrAll(portfolios []string) []string {
	if len(portfolios) == 0 {
		return []string{""}
	}
	return portfolios
}
