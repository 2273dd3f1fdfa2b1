package strategy

import (
	"encoding/json"
	"fmt"
	"strconv"

	"backtest_go/internal/domain"
	"backtest_go/internal/event"
	"backtest_go/pkg/safe"
)

// SMACross is a simple moving-average crossover strategy. A golden cross
// (short SMA rising above long SMA) emits a Buy, a dead cross emits a
// CloseLong. It is stateful and deterministic, and uses a ring buffer so the
// hot path allocates nothing.
type SMACross struct {
	symbol      string
	shortPeriod int
	longPeriod  int

	// Ring buffer over the last longPeriod prices. head is the next write
	// slot, which is also the oldest value once the buffer is full.
	prices []int64
	head   int
	count  int
	sum    int64

	prevShortSMA int64
	prevLongSMA  int64

	inPosition bool
	pending    *domain.Signal

	signalsEmitted int
	fillsSeen      int
	rejectsSeen    int
}

func (s *SMACross) Initialize(cfg Config) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("sma_cross: symbol is required")
	}
	short, long := 10, 30
	var err error
	if v, ok := cfg.Params["short_period"]; ok {
		if short, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("sma_cross: bad short_period %q: %w", v, err)
		}
	}
	if v, ok := cfg.Params["long_period"]; ok {
		if long, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("sma_cross: bad long_period %q: %w", v, err)
		}
	}
	if short <= 0 || long <= 0 || short >= long {
		return fmt.Errorf("sma_cross: need 0 < short_period < long_period, got %d/%d", short, long)
	}

	s.symbol = cfg.Symbol
	s.shortPeriod = short
	s.longPeriod = long
	s.prices = make([]int64, long)
	s.head = 0
	s.count = 0
	s.sum = 0
	s.prevShortSMA = 0
	s.prevLongSMA = 0
	s.inPosition = false
	s.pending = nil
	return nil
}

func (s *SMACross) OnMarketData(ev event.Event) {
	if ev.GetSymbol() != s.symbol {
		return
	}
	price, ok := event.MarkPrice(ev)
	if !ok {
		return
	}
	currentPrice := int64(price)

	if s.count == s.longPeriod {
		s.sum = safe.Sub(s.sum, s.prices[s.head])
	}
	s.prices[s.head] = currentPrice
	s.sum = safe.Add(s.sum, currentPrice)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}
	if s.count < s.longPeriod {
		return
	}

	currLongSMA := safe.Div(s.sum, int64(s.longPeriod))
	currShortSMA := s.shortSMA()

	if s.prevShortSMA != 0 && s.prevLongSMA != 0 {
		switch {
		case !s.inPosition && s.prevShortSMA <= s.prevLongSMA && currShortSMA > currLongSMA:
			s.pending = &domain.Signal{
				Kind:       domain.SignalBuy,
				Symbol:     s.symbol,
				Confidence: 1.0,
			}
		case s.inPosition && s.prevShortSMA >= s.prevLongSMA && currShortSMA < currLongSMA:
			s.pending = &domain.Signal{
				Kind:       domain.SignalCloseLong,
				Symbol:     s.symbol,
				Confidence: 1.0,
			}
		}
	}

	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA
}

func (s *SMACross) GenerateSignal() (*domain.Signal, error) {
	sig := s.pending
	s.pending = nil
	if sig != nil {
		s.signalsEmitted++
	}
	return sig, nil
}

func (s *SMACross) OnOrderFill(order domain.Order, fill domain.Fill) {
	s.fillsSeen++
	switch fill.Side {
	case domain.SideBuy:
		s.inPosition = true
	case domain.SideSell:
		if order.RemainingSats() == 0 {
			s.inPosition = false
		}
	}
}

func (s *SMACross) OnOrderReject(order domain.Order, reason error) {
	s.rejectsSeen++
}

func (s *SMACross) Metrics() map[string]float64 {
	return map[string]float64{
		"signals_emitted": float64(s.signalsEmitted),
		"fills_seen":      float64(s.fillsSeen),
		"rejects_seen":    float64(s.rejectsSeen),
		"short_sma":       float64(s.prevShortSMA),
		"long_sma":        float64(s.prevLongSMA),
	}
}

type smaCrossState struct {
	Symbol       string  `json:"symbol"`
	ShortPeriod  int     `json:"short_period"`
	LongPeriod   int     `json:"long_period"`
	Prices       []int64 `json:"prices"`
	Head         int     `json:"head"`
	Count        int     `json:"count"`
	Sum          int64   `json:"sum"`
	PrevShortSMA int64   `json:"prev_short_sma"`
	PrevLongSMA  int64   `json:"prev_long_sma"`
	InPosition   bool    `json:"in_position"`
}

func (s *SMACross) SerializeState() ([]byte, error) {
	return json.Marshal(smaCrossState{
		Symbol:       s.symbol,
		ShortPeriod:  s.shortPeriod,
		LongPeriod:   s.longPeriod,
		Prices:       s.prices,
		Head:         s.head,
		Count:        s.count,
		Sum:          s.sum,
		PrevShortSMA: s.prevShortSMA,
		PrevLongSMA:  s.prevLongSMA,
		InPosition:   s.inPosition,
	})
}

func (s *SMACross) DeserializeState(data []byte) error {
	var st smaCrossState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("sma_cross: decode state: %w", err)
	}
	if st.LongPeriod <= 0 || len(st.Prices) != st.LongPeriod {
		return fmt.Errorf("sma_cross: corrupt state: long_period %d, %d prices", st.LongPeriod, len(st.Prices))
	}
	s.symbol = st.Symbol
	s.shortPeriod = st.ShortPeriod
	s.longPeriod = st.LongPeriod
	s.prices = st.Prices
	s.head = st.Head
	s.count = st.Count
	s.sum = st.Sum
	s.prevShortSMA = st.PrevShortSMA
	s.prevLongSMA = st.PrevLongSMA
	s.inPosition = st.InPosition
	return nil
}

func (s *SMACross) Shutdown() error { return nil }

// shortSMA walks the ring buffer backwards from the latest write.
func (s *SMACross) shortSMA() int64 {
	var sum int64
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = safe.Add(sum, s.prices[idx])
	}
	return safe.Div(sum, int64(s.shortPeriod))
}
