// Command gencandles seeds a candle store with a deterministic synthetic
// price series, for demos and integration testing. The same seed always
// produces the same candles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/infra"
	"backtest_go/internal/storage"
	"backtest_go/pkg/quant"
)

func main() {
	var (
		backend    = flag.String("backend", "sqlite", "sqlite | parquet")
		sqlitePath = flag.String("sqlite", "candles.db", "sqlite database path")
		parquetDir = flag.String("parquet", "parquet", "parquet data directory")
		symbol     = flag.String("symbol", "BTCUSDT", "symbol to generate")
		interval   = flag.String("interval", "1m", "candle interval label")
		start      = flag.String("start", "2025-01-01T00:00:00Z", "first candle time (RFC3339)")
		step       = flag.Duration("step", time.Minute, "time between candles")
		count      = flag.Int("count", 10_000, "number of candles")
		seed       = flag.Int64("seed", 42, "random walk seed")
		price      = flag.Float64("price", 50_000, "starting price")
		vol        = flag.Float64("vol", 0.002, "per-step volatility")
	)
	flag.Parse()

	logger := infra.NewLogger("info")
	infra.SetDefault(logger)

	if err := run(*backend, *sqlitePath, *parquetDir, *symbol, *interval, *start, *step, *count, *seed, *price, *vol); err != nil {
		slog.Error("gencandles failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(backend, sqlitePath, parquetDir, symbol, interval, start string, step time.Duration, count int, seed int64, price, vol float64) error {
	startTime, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	candles := generate(symbol, interval, startTime, step, count, seed, price, vol)

	ctx := context.Background()
	switch backend {
	case "sqlite":
		store, err := storage.NewCandleStore(sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveCandles(ctx, candles); err != nil {
			return err
		}
	case "parquet":
		if err := storage.NewParquetStore(parquetDir).WriteCandles(ctx, candles); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}

	slog.Info("candles generated",
		slog.String("symbol", symbol),
		slog.Int("count", count),
		slog.String("first", startTime.Format(time.RFC3339)),
		slog.String("last", startTime.Add(time.Duration(count-1)*step).Format(time.RFC3339)))
	return nil
}

// generate walks a geometric random series and shapes each step into an
// OHLCV candle.
func generate(symbol, interval string, start time.Time, step time.Duration, count int, seed int64, price, vol float64) []domain.Candle {
	rng := rand.New(rand.NewSource(seed))
	candles := make([]domain.Candle, 0, count)

	last := price
	for i := 0; i < count; i++ {
		open := last
		close := open * math.Exp(rng.NormFloat64()*vol)
		high := math.Max(open, close) * (1 + rng.Float64()*vol)
		low := math.Min(open, close) * (1 - rng.Float64()*vol)
		volume := 1 + rng.Float64()*100

		candles = append(candles, domain.Candle{
			Symbol:      symbol,
			Interval:    interval,
			Ts:          quant.TSFromTime(start.Add(time.Duration(i) * step)),
			OpenMicros:  quant.ToPriceMicros(open),
			HighMicros:  quant.ToPriceMicros(high),
			LowMicros:   quant.ToPriceMicros(low),
			CloseMicros: quant.ToPriceMicros(close),
			VolumeSats:  quant.ToQtySats(volume),
		})
		last = close
	}
	return candles
}
