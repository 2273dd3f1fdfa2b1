// Package engine drives the simulation: it replays historical market events
// in chronological order through a strategy, turns signals into simulated
// orders, and settles the resulting fills against the portfolio ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"backtest_go/internal/domain"
	"backtest_go/internal/event"
	"backtest_go/internal/portfolio"
	"backtest_go/internal/strategy"
	"backtest_go/pkg/quant"
)

// ErrMaxPositions is the reject reason for entries that would exceed the
// configured concurrent position limit.
var ErrMaxPositions = errors.New("max concurrent positions reached")

var errZeroQuantity = errors.New("order sized to zero quantity")

// RunOutput is everything a finished (or cancelled) run produced. The ledger
// and trade records stay valid even when Run returns an error.
type RunOutput struct {
	Ledger          *portfolio.Ledger
	Trades          []*domain.Trade
	Fills           []domain.Fill
	EventsProcessed int
	StrategyMetrics map[string]float64
}

// Backtester replays one configured run. It is single-use: create a new one
// per run. The event loop is strictly single-threaded; only candle loading
// fans out.
type Backtester struct {
	cfg    Config
	log    *slog.Logger
	source domain.CandleSource
	strat  strategy.Strategy

	ledger  *portfolio.Ledger
	pending []*domain.Order
	open    map[string]*domain.Trade
	trades  []*domain.Trade
	fills   []domain.Fill
	lastPx  map[string]quant.PriceMicros
	lastVol map[string]quant.QtySats
	events  int
}

// New validates cfg and builds a run.
func New(cfg Config, source domain.CandleSource, strat strategy.Strategy) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("candle source is required")
	}
	if strat == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	cfg.normalize()
	return &Backtester{
		cfg:     cfg,
		log:     cfg.Logger,
		source:  source,
		strat:   strat,
		ledger:  portfolio.NewLedger(cfg.InitialCashMicros, cfg.AllowShort),
		open:    make(map[string]*domain.Trade),
		lastPx:  make(map[string]quant.PriceMicros),
		lastVol: make(map[string]quant.QtySats),
	}, nil
}

// Run executes the full replay. On context cancellation it returns the
// partial output together with the context's error; the ledger and trade
// records reflect everything processed up to that point.
func (b *Backtester) Run(ctx context.Context) (*RunOutput, error) {
	if err := b.strat.Initialize(b.cfg.Strategy); err != nil {
		return nil, fmt.Errorf("strategy init: %w", err)
	}

	events, err := b.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	b.log.Info("backtest started",
		slog.Int("events", len(events)),
		slog.Any("symbols", b.cfg.Symbols),
		slog.String("interval", b.cfg.Interval))

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			b.log.Warn("backtest cancelled", slog.Int("processed", i))
			return b.output(), err
		}
		if err := b.step(ev); err != nil {
			return b.output(), err
		}
	}

	b.closeRun(events[len(events)-1].GetTs())
	if err := b.strat.Shutdown(); err != nil {
		b.log.Warn("strategy shutdown", slog.Any("error", err))
	}

	out := b.output()
	b.log.Info("backtest finished",
		slog.Int("events", out.EventsProcessed),
		slog.Int("trades", len(out.Trades)),
		slog.Int("fills", len(out.Fills)),
		slog.Int64("final_equity", int64(b.ledger.TotalEquity())))
	return out, nil
}

// loadEvents queries every symbol concurrently, then merges into one stream
// stable-sorted by timestamp so replay order is deterministic.
func (b *Backtester) loadEvents(ctx context.Context) ([]event.Event, error) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		evs  []event.Event
		errs []error
	)
	for _, symbol := range b.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			candles, err := b.source.QueryCandles(ctx, symbol, b.cfg.Interval, b.cfg.Start, b.cfg.End)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("load %s: %w", symbol, err))
				return
			}
			for _, c := range candles {
				evs = append(evs, event.FromCandle(c.Symbol, c.Ts, c.OpenMicros, c.HighMicros, c.LowMicros, c.CloseMicros, c.VolumeSats))
			}
		}(symbol)
	}
	wg.Wait()

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, errors.Join(errs...)
	}
	if len(evs) == 0 {
		return nil, domain.ErrEmptyDataset
	}
	// Symbol tiebreak: append order for equal timestamps depends on
	// goroutine completion order, which must not leak into replay order.
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].GetTs() != evs[j].GetTs() {
			return evs[i].GetTs() < evs[j].GetTs()
		}
		return evs[i].GetSymbol() < evs[j].GetSymbol()
	})
	return evs, nil
}

func (b *Backtester) step(ev event.Event) error {
	symbol := ev.GetSymbol()
	if price, ok := event.MarkPrice(ev); ok {
		b.lastPx[symbol] = price
		b.ledger.MarkToMarket(symbol, price)
		if t := b.open[symbol]; t != nil {
			t.UpdateExcursion(price)
		}
	}
	if vol := event.TradedVolume(ev); vol > 0 {
		b.lastVol[symbol] = vol
	}

	b.evalPending(ev)

	b.strat.OnMarketData(ev)
	sig, err := b.strat.GenerateSignal()
	if err != nil {
		return fmt.Errorf("strategy signal: %w", err)
	}
	if sig != nil && sig.Kind != domain.SignalHold {
		b.execSignal(sig, ev.GetTs())
	}

	b.ledger.RecordEquity(ev.GetTs())
	b.events++
	return nil
}

// evalPending checks every resting limit order against the incoming event.
// A marketable order fills at its limit price, capped by the event's traded
// volume; the unfilled remainder keeps resting.
func (b *Backtester) evalPending(ev event.Event) {
	if len(b.pending) == 0 {
		return
	}
	kept := b.pending[:0]
	for _, ord := range b.pending {
		if ord.Symbol != ev.GetSymbol() || !limitCrossed(ord, ev) {
			kept = append(kept, ord)
			continue
		}
		qty := min(ord.RemainingSats(), event.TradedVolume(ev))
		if qty <= 0 {
			kept = append(kept, ord)
			continue
		}

		fill := b.buildFill(ord, ord.LimitPriceMicros, qty, ev.GetTs())
		realized, err := b.ledger.ApplyFill(fill)
		if err != nil {
			ord.Status = domain.OrderStatusRejected
			b.log.Debug("limit order rejected",
				slog.String("order_id", ord.ID),
				slog.Any("error", err))
			b.strat.OnOrderReject(*ord, err)
			continue
		}

		ord.FilledSats += qty
		if ord.RemainingSats() == 0 {
			ord.Status = domain.OrderStatusFilled
		} else {
			ord.Status = domain.OrderStatusPartiallyFilled
			kept = append(kept, ord)
		}
		b.recordFill(ord, fill, realized)
		b.strat.OnOrderFill(*ord, *fill)
	}
	b.pending = kept
}

func limitCrossed(ord *domain.Order, ev event.Event) bool {
	switch e := ev.(type) {
	case *event.CandleEvent:
		if ord.Side == domain.SideBuy {
			return e.LowMicros <= ord.LimitPriceMicros
		}
		return e.HighMicros >= ord.LimitPriceMicros
	case *event.TradeEvent:
		if ord.Side == domain.SideBuy {
			return e.PriceMicros <= ord.LimitPriceMicros
		}
		return e.PriceMicros >= ord.LimitPriceMicros
	case *event.BookSnapshotEvent:
		if ord.Side == domain.SideBuy {
			return e.AskPriceMicros > 0 && e.AskPriceMicros <= ord.LimitPriceMicros
		}
		return e.BidPriceMicros > 0 && e.BidPriceMicros >= ord.LimitPriceMicros
	default:
		return false
	}
}

// execSignal turns a strategy signal into an order. Market orders execute
// against the symbol's last seen price; limit orders go to the resting book
// and are evaluated from the next event on.
func (b *Backtester) execSignal(sig *domain.Signal, ts quant.TimeStamp) {
	orderType := domain.OrderMarket
	if sig.LimitPriceMicros > 0 {
		orderType = domain.OrderLimit
	}
	ord := &domain.Order{
		ID:               uuid.NewString(),
		Symbol:           sig.Symbol,
		Type:             orderType,
		LimitPriceMicros: sig.LimitPriceMicros,
		Status:           domain.OrderStatusNew,
		CreatedTs:        ts,
	}

	pos, havePos := b.ledger.Position(sig.Symbol)
	var qty quant.QtySats
	switch sig.Kind {
	case domain.SignalBuy:
		ord.Side = domain.SideBuy
	case domain.SignalSell:
		ord.Side = domain.SideSell
	case domain.SignalCloseLong:
		ord.Side = domain.SideSell
		if !havePos || !pos.IsLong() {
			b.rejectOrder(ord, domain.ErrNoPosition)
			return
		}
		qty = pos.QtySats
	case domain.SignalCloseShort:
		ord.Side = domain.SideBuy
		if !havePos || !pos.IsShort() {
			b.rejectOrder(ord, domain.ErrNoPosition)
			return
		}
		qty = -pos.QtySats
	default:
		return
	}

	price, havePrice := b.lastPx[sig.Symbol]
	if !havePrice {
		b.rejectOrder(ord, domain.ErrNoPrice)
		return
	}

	if qty == 0 {
		if sig.QtySats > 0 {
			qty = sig.QtySats
		} else {
			qty = b.cfg.Sizer.Size(sig, b.ledger.TotalEquity(), price)
		}
	}
	// Orders never flip a position through zero: opposing quantity is
	// capped at the open size, so a reversal takes two signals.
	if havePos {
		if ord.Side == domain.SideSell && pos.IsLong() && qty > pos.QtySats {
			qty = pos.QtySats
		}
		if ord.Side == domain.SideBuy && pos.IsShort() && qty > -pos.QtySats {
			qty = -pos.QtySats
		}
	}
	if qty <= 0 {
		b.rejectOrder(ord, errZeroQuantity)
		return
	}
	ord.QtySats = qty

	if !havePos && b.cfg.MaxPositions > 0 && len(b.ledger.OpenPositions()) >= b.cfg.MaxPositions {
		b.rejectOrder(ord, ErrMaxPositions)
		return
	}

	if orderType.IsResting() {
		b.pending = append(b.pending, ord)
		b.log.Debug("limit order resting",
			slog.String("order_id", ord.ID),
			slog.String("symbol", ord.Symbol),
			slog.Int64("limit", int64(ord.LimitPriceMicros)))
		return
	}

	fill := b.buildFill(ord, price, qty, ts)
	realized, err := b.ledger.ApplyFill(fill)
	if err != nil {
		b.rejectOrder(ord, err)
		return
	}
	ord.FilledSats = qty
	ord.Status = domain.OrderStatusFilled
	b.recordFill(ord, fill, realized)
	b.strat.OnOrderFill(*ord, *fill)
}

func (b *Backtester) buildFill(ord *domain.Order, price quant.PriceMicros, qty quant.QtySats, ts quant.TimeStamp) *domain.Fill {
	execPx, commission, slippage := b.cfg.CostModel.TotalCost(ord.Type, ord.Side, price, qty, b.lastVol[ord.Symbol])
	return &domain.Fill{
		OrderID:          ord.ID,
		Symbol:           ord.Symbol,
		Side:             ord.Side,
		PriceMicros:      price,
		ExecPriceMicros:  execPx,
		QtySats:          qty,
		CommissionMicros: commission,
		SlippageMicros:   slippage,
		Ts:               ts,
	}
}

func (b *Backtester) rejectOrder(ord *domain.Order, reason error) {
	ord.Status = domain.OrderStatusRejected
	b.log.Debug("order rejected",
		slog.String("order_id", ord.ID),
		slog.String("symbol", ord.Symbol),
		slog.String("side", string(ord.Side)),
		slog.Any("error", reason))
	b.strat.OnOrderReject(*ord, reason)
}

// recordFill appends to the audit log and folds the fill into the symbol's
// round-trip trade record, closing the record when the position goes flat.
func (b *Backtester) recordFill(ord *domain.Order, fill *domain.Fill, realized quant.PriceMicros) {
	b.fills = append(b.fills, *fill)

	t := b.open[fill.Symbol]
	if t == nil {
		t = domain.NewTrade(uuid.NewString(), fill.Symbol, fill.Side, fill.Ts)
		b.open[fill.Symbol] = t
	}
	if fill.Side == t.Side {
		t.AddEntry(*fill)
	} else {
		t.AddExit(*fill, realized)
	}

	if _, stillOpen := b.ledger.Position(fill.Symbol); !stillOpen {
		t.Close(fill.Ts)
		b.trades = append(b.trades, t)
		delete(b.open, fill.Symbol)
	}
}

// closeRun cancels every resting order, then force-closes all open positions
// at their last seen price. Symbols close in sorted order so results are
// reproducible.
func (b *Backtester) closeRun(ts quant.TimeStamp) {
	for _, ord := range b.pending {
		ord.Status = domain.OrderStatusCanceled
		b.log.Debug("resting order cancelled at end of run", slog.String("order_id", ord.ID))
		b.strat.OnOrderReject(*ord, domain.ErrRunEnded)
	}
	b.pending = nil

	for _, pos := range b.ledger.OpenPositions() {
		price, ok := b.lastPx[pos.Symbol]
		if !ok {
			continue
		}
		side, qty := domain.SideSell, pos.QtySats
		if pos.IsShort() {
			side, qty = domain.SideBuy, -pos.QtySats
		}
		ord := &domain.Order{
			ID:        uuid.NewString(),
			Symbol:    pos.Symbol,
			Side:      side,
			Type:      domain.OrderMarket,
			QtySats:   qty,
			Status:    domain.OrderStatusNew,
			CreatedTs: ts,
		}
		fill := b.buildFill(ord, price, qty, ts)
		realized, err := b.ledger.ApplyFill(fill)
		if err != nil {
			b.log.Error("force close failed",
				slog.String("symbol", pos.Symbol),
				slog.Any("error", err))
			continue
		}
		ord.FilledSats = qty
		ord.Status = domain.OrderStatusFilled
		b.log.Info("position force-closed",
			slog.String("symbol", pos.Symbol),
			slog.Int64("qty", int64(qty)),
			slog.Int64("price", int64(price)))
		b.recordFill(ord, fill, realized)
		b.strat.OnOrderFill(*ord, *fill)
	}
}

func (b *Backtester) output() *RunOutput {
	trades := make([]*domain.Trade, 0, len(b.trades)+len(b.open))
	trades = append(trades, b.trades...)
	stillOpen := make([]*domain.Trade, 0, len(b.open))
	for _, t := range b.open {
		stillOpen = append(stillOpen, t)
	}
	sort.Slice(stillOpen, func(i, j int) bool { return stillOpen[i].Symbol < stillOpen[j].Symbol })
	trades = append(trades, stillOpen...)

	return &RunOutput{
		Ledger:          b.ledger,
		Trades:          trades,
		Fills:           b.fills,
		EventsProcessed: b.events,
		StrategyMetrics: b.strat.Metrics(),
	}
}
