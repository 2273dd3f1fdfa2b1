// Command backtest runs one simulation: it loads the yaml config, replays
// the configured window through the selected strategy, and writes the
// performance report as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"backtest_go/internal/domain"
	"backtest_go/internal/engine"
	"backtest_go/internal/infra"
	"backtest_go/internal/results"
	"backtest_go/internal/storage"
	"backtest_go/internal/strategy"
)

func main() {
	configPath := flag.String("config", "backtest.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("backtest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := infra.NewLogger(cfg.Logging.Level)
	infra.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, cleanup, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	strat, err := strategy.Default().Create(cfg.Strategy.Name)
	if err != nil {
		return err
	}

	engCfg, err := cfg.ToEngineConfig(logger)
	if err != nil {
		return err
	}
	b, err := engine.New(engCfg, source, strat)
	if err != nil {
		return err
	}

	out, err := b.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	res := results.Compute(out, results.Meta{
		StrategyName: cfg.Strategy.Name,
		Symbols:      cfg.Run.Symbols,
		Interval:     cfg.Run.Interval,
		StartTs:      engCfg.Start,
		EndTs:        engCfg.End,
	})

	path, err := storage.NewReportWriter(cfg.Report.Dir).Save(res)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	logger.Info("run complete",
		slog.String("report", path),
		slog.Float64("return_pct", res.TotalReturnPct),
		slog.Int("trades", res.TotalTrades),
		slog.Float64("win_rate", res.WinRate),
		slog.Float64("sharpe", res.SharpeRatio),
		slog.Float64("max_drawdown_pct", res.MaxDrawdownPct))
	return nil
}

func openSource(cfg *infra.Config) (domain.CandleSource, func(), error) {
	switch cfg.Data.Backend {
	case "sqlite":
		store, err := storage.NewCandleStore(cfg.Data.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open candle store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "parquet":
		return storage.NewParquetStore(cfg.Data.ParquetDir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown data backend %q", cfg.Data.Backend)
	}
}
