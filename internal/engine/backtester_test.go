package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"backtest_go/internal/cost"
	"backtest_go/internal/domain"
	"backtest_go/internal/event"
	"backtest_go/internal/strategy"
	"backtest_go/pkg/quant"
)

// memSource serves candles from memory, implementing domain.CandleSource.
type memSource struct {
	candles []domain.Candle
}

func (m *memSource) QueryCandles(_ context.Context, symbol, interval string, start, end quant.TimeStamp) ([]domain.Candle, error) {
	var out []domain.Candle
	for _, c := range m.candles {
		if c.Symbol == symbol && c.Interval == interval && c.Ts >= start && c.Ts <= end {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memSource) LatestCandle(_ context.Context, symbol, interval string) (*domain.Candle, error) {
	var latest *domain.Candle
	for i := range m.candles {
		c := &m.candles[i]
		if c.Symbol == symbol && c.Interval == interval && (latest == nil || c.Ts > latest.Ts) {
			latest = c
		}
	}
	return latest, nil
}

// scriptStrategy replays a fixed signal script keyed by symbol and event
// timestamp, recording everything the engine tells it.
type scriptStrategy struct {
	signals map[string]*domain.Signal
	pending *domain.Signal

	seen    []string
	fills   []domain.Fill
	orders  []domain.Order
	rejects []error
}

func scriptKey(symbol string, ts quant.TimeStamp) string {
	return fmt.Sprintf("%s@%d", symbol, ts)
}

func (s *scriptStrategy) Initialize(strategy.Config) error { return nil }

func (s *scriptStrategy) OnMarketData(ev event.Event) {
	s.seen = append(s.seen, scriptKey(ev.GetSymbol(), ev.GetTs()))
	if sig, ok := s.signals[scriptKey(ev.GetSymbol(), ev.GetTs())]; ok {
		s.pending = sig
	}
}

func (s *scriptStrategy) GenerateSignal() (*domain.Signal, error) {
	sig := s.pending
	s.pending = nil
	return sig, nil
}

func (s *scriptStrategy) OnOrderFill(order domain.Order, fill domain.Fill) {
	s.orders = append(s.orders, order)
	s.fills = append(s.fills, fill)
}

func (s *scriptStrategy) OnOrderReject(_ domain.Order, reason error) {
	s.rejects = append(s.rejects, reason)
}

func (s *scriptStrategy) Metrics() map[string]float64     { return nil }
func (s *scriptStrategy) SerializeState() ([]byte, error) { return nil, nil }
func (s *scriptStrategy) DeserializeState([]byte) error   { return nil }
func (s *scriptStrategy) Shutdown() error                 { return nil }

func mkCandle(symbol string, ts int64, o, h, l, c, vol float64) domain.Candle {
	return domain.Candle{
		Symbol:      symbol,
		Interval:    "1m",
		Ts:          quant.TimeStamp(ts),
		OpenMicros:  quant.ToPriceMicros(o),
		HighMicros:  quant.ToPriceMicros(h),
		LowMicros:   quant.ToPriceMicros(l),
		CloseMicros: quant.ToPriceMicros(c),
		VolumeSats:  quant.ToQtySats(vol),
	}
}

func testConfig(symbols ...string) Config {
	return Config{
		InitialCashMicros: quant.ToPriceMicros(100_000),
		Symbols:           symbols,
		Interval:          "1m",
		Start:             1,
		End:               1_000,
		CostModel:         cost.PresetZero,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRun_BuyThenCloseRealizesPnL(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 10),
		mkCandle("BTCUSDT", 2, 100, 106, 100, 105, 10),
		mkCandle("BTCUSDT", 3, 105, 110, 105, 110, 10),
	}}
	strat := &scriptStrategy{signals: map[string]*domain.Signal{
		scriptKey("BTCUSDT", 1): {Kind: domain.SignalBuy, Symbol: "BTCUSDT", QtySats: quant.ToQtySats(1)},
		scriptKey("BTCUSDT", 3): {Kind: domain.SignalCloseLong, Symbol: "BTCUSDT"},
	}}

	b, err := New(testConfig("BTCUSDT"), src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.EventsProcessed != 3 {
		t.Errorf("events = %d, want 3", out.EventsProcessed)
	}
	if got, want := out.Ledger.RealizedPnL(), quant.ToPriceMicros(10); got != want {
		t.Errorf("realized = %d, want %d", got, want)
	}
	if got, want := out.Ledger.TotalEquity(), quant.ToPriceMicros(100_010); got != want {
		t.Errorf("equity = %d, want %d", got, want)
	}
	if len(out.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(out.Trades))
	}
	tr := out.Trades[0]
	if !tr.Closed || tr.PnLMicros != quant.ToPriceMicros(10) {
		t.Errorf("trade = %+v", tr)
	}
	if tr.AvgEntryPriceMicros != quant.ToPriceMicros(100) || tr.AvgExitPriceMicros != quant.ToPriceMicros(110) {
		t.Errorf("trade prices = %d/%d", tr.AvgEntryPriceMicros, tr.AvgExitPriceMicros)
	}
	// MFE saw the full ride to 110, MAE never went underwater.
	if tr.MFEMicros != quant.ToPriceMicros(10) || tr.MAEMicros != 0 {
		t.Errorf("excursions = MAE %d / MFE %d", tr.MAEMicros, tr.MFEMicros)
	}
}

func TestRun_ForceClosesOpenPositionAtEnd(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 10),
		mkCandle("BTCUSDT", 2, 100, 112, 100, 110, 10),
	}}
	strat := &scriptStrategy{signals: map[string]*domain.Signal{
		scriptKey("BTCUSDT", 1): {Kind: domain.SignalBuy, Symbol: "BTCUSDT", QtySats: quant.ToQtySats(1)},
	}}

	b, err := New(testConfig("BTCUSDT"), src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := out.Ledger.OpenPositions(); len(got) != 0 {
		t.Errorf("open positions after run = %d, want 0", len(got))
	}
	if got, want := out.Ledger.TotalEquity(), quant.ToPriceMicros(100_010); got != want {
		t.Errorf("equity = %d, want %d", got, want)
	}
	if len(out.Trades) != 1 || !out.Trades[0].Closed {
		t.Fatalf("trades = %+v", out.Trades)
	}
	if out.Trades[0].ExitTs != 2 {
		t.Errorf("exit ts = %d, want 2", out.Trades[0].ExitTs)
	}
}

func TestRun_InsufficientFundsRejectsAndContinues(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 10),
		mkCandle("BTCUSDT", 2, 100, 100, 100, 100, 10),
	}}
	strat := &scriptStrategy{signals: map[string]*domain.Signal{
		scriptKey("BTCUSDT", 1): {Kind: domain.SignalBuy, Symbol: "BTCUSDT", QtySats: quant.ToQtySats(1)},
	}}

	cfg := testConfig("BTCUSDT")
	cfg.InitialCashMicros = quant.ToPriceMicros(50)
	b, err := New(cfg, src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.EventsProcessed != 2 {
		t.Errorf("events = %d, want 2", out.EventsProcessed)
	}
	if len(strat.rejects) != 1 || !errors.Is(strat.rejects[0], domain.ErrInsufficientFunds) {
		t.Errorf("rejects = %v", strat.rejects)
	}
	if out.Ledger.Cash() != quant.ToPriceMicros(50) {
		t.Errorf("cash = %d, want untouched", out.Ledger.Cash())
	}
}

func TestRun_LimitOrderPartialFillAndEndOfRun(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 101, 99, 100, 10),
		mkCandle("BTCUSDT", 2, 100, 100, 94, 96, 1),
		mkCandle("BTCUSDT", 3, 96, 99, 96, 98, 10),
	}}
	strat := &scriptStrategy{signals: map[string]*domain.Signal{
		scriptKey("BTCUSDT", 1): {
			Kind:             domain.SignalBuy,
			Symbol:           "BTCUSDT",
			LimitPriceMicros: quant.ToPriceMicros(95),
			QtySats:          quant.ToQtySats(2),
		},
	}}

	b, err := New(testConfig("BTCUSDT"), src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One partial limit fill at ts 2, one force close at ts 3.
	if len(out.Fills) != 2 {
		t.Fatalf("fills = %+v", out.Fills)
	}
	first := out.Fills[0]
	if first.PriceMicros != quant.ToPriceMicros(95) || first.QtySats != quant.ToQtySats(1) {
		t.Errorf("limit fill = %+v", first)
	}
	if strat.orders[0].Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("order status = %s, want PARTIALLY_FILLED", strat.orders[0].Status)
	}

	// Unfilled remainder cancelled with ErrRunEnded.
	foundRunEnded := false
	for _, r := range strat.rejects {
		if errors.Is(r, domain.ErrRunEnded) {
			foundRunEnded = true
		}
	}
	if !foundRunEnded {
		t.Errorf("rejects = %v, want ErrRunEnded", strat.rejects)
	}

	// Filled portion force-closed at 98: realized (98-95)*1 = 3.
	if got, want := out.Ledger.TotalEquity(), quant.ToPriceMicros(100_003); got != want {
		t.Errorf("equity = %d, want %d", got, want)
	}
	if len(out.Trades) != 1 || out.Trades[0].QtySats != quant.ToQtySats(1) {
		t.Fatalf("trades = %+v", out.Trades)
	}
}

func TestRun_MergedStreamIsChronologicalWithSymbolTiebreak(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("ETHUSDT", 1, 10, 10, 10, 10, 1),
		mkCandle("ETHUSDT", 2, 10, 10, 10, 10, 1),
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 1),
		mkCandle("BTCUSDT", 2, 100, 100, 100, 100, 1),
	}}
	strat := &scriptStrategy{}

	b, err := New(testConfig("ETHUSDT", "BTCUSDT"), src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"BTCUSDT@1", "ETHUSDT@1", "BTCUSDT@2", "ETHUSDT@2"}
	if len(strat.seen) != len(want) {
		t.Fatalf("seen = %v", strat.seen)
	}
	for i := range want {
		if strat.seen[i] != want[i] {
			t.Errorf("seen[%d] = %s, want %s", i, strat.seen[i], want[i])
		}
	}
}

func TestRun_MaxPositionsLimit(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 10),
		mkCandle("ETHUSDT", 1, 10, 10, 10, 10, 10),
	}}
	strat := &scriptStrategy{signals: map[string]*domain.Signal{
		scriptKey("BTCUSDT", 1): {Kind: domain.SignalBuy, Symbol: "BTCUSDT", QtySats: quant.ToQtySats(1)},
		scriptKey("ETHUSDT", 1): {Kind: domain.SignalBuy, Symbol: "ETHUSDT", QtySats: quant.ToQtySats(1)},
	}}

	cfg := testConfig("BTCUSDT", "ETHUSDT")
	cfg.MaxPositions = 1
	b, err := New(cfg, src, strat)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(strat.rejects) != 1 || !errors.Is(strat.rejects[0], ErrMaxPositions) {
		t.Errorf("rejects = %v, want ErrMaxPositions", strat.rejects)
	}
}

func TestRun_EmptyDataset(t *testing.T) {
	b, err := New(testConfig("BTCUSDT"), &memSource{}, &scriptStrategy{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Run(context.Background()); !errors.Is(err, domain.ErrEmptyDataset) {
		t.Errorf("err = %v, want ErrEmptyDataset", err)
	}
}

func TestRun_CancelledContextReturnsPartialOutput(t *testing.T) {
	src := &memSource{candles: []domain.Candle{
		mkCandle("BTCUSDT", 1, 100, 100, 100, 100, 10),
	}}
	b, err := New(testConfig("BTCUSDT"), src, &scriptStrategy{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := b.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out == nil || out.EventsProcessed != 0 {
		t.Errorf("output = %+v", out)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Start, cfg.End = 10, 10
	if _, err := New(cfg, &memSource{}, &scriptStrategy{}); !errors.Is(err, domain.ErrInvalidWindow) {
		t.Errorf("err = %v, want ErrInvalidWindow", err)
	}

	cfg = testConfig()
	if _, err := New(cfg, &memSource{}, &scriptStrategy{}); err == nil {
		t.Error("expected error for empty symbol list")
	}
}
