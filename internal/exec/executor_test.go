package exec

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"funding-arb-bot/internal/exchange"
	"funding-arb-bot/internal/ledger"
	"funding-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

func f64(v float64) *float64 { return &v }

type scriptedGateway struct {
	serverTime   int64
	fetchTimeErr error
	ticker       exchange.Ticker
	tickerErr    error
	precision    func(qty float64) float64
	orders       []placedOrder
	openResult   exchange.Order
	openErr      error
	closeResult  exchange.Order
	closeErr     error
	closed       bool
}

type placedOrder struct {
	symbol string
	side   exchange.Side
	qty    float64
}

func (g *scriptedGateway) LoadMarkets(ctx context.Context, forceReload bool) (map[string]exchange.Market, error) {
	return map[string]exchange.Market{}, nil
}

func (g *scriptedGateway) FetchFundingRates(ctx context.Context) (map[string]exchange.RateInfo, error) {
	return nil, errors.New("not implemented")
}

func (g *scriptedGateway) FetchTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return g.ticker, g.tickerErr
}

func (g *scriptedGateway) FetchTime(ctx context.Context) (int64, error) {
	return g.serverTime, g.fetchTimeErr
}

func (g *scriptedGateway) AmountToPrecision(symbol string, qty float64) (float64, error) {
	if g.precision != nil {
		return g.precision(qty), nil
	}
	return qty, nil
}

func (g *scriptedGateway) CreateMarketOrder(ctx context.Context, symbol string, side exchange.Side, qty float64, params map[string]any) (exchange.Order, error) {
	g.orders = append(g.orders, placedOrder{symbol: symbol, side: side, qty: qty})
	if len(g.orders) == 1 {
		return g.openResult, g.openErr
	}
	return g.closeResult, g.closeErr
}

func (g *scriptedGateway) Close() error {
	g.closed = true
	return nil
}

type captureSink struct {
	events []ledger.Event
}

func (s *captureSink) RecordArbitrageEvent(ctx context.Context, event ledger.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error { return nil }

const localNowMs = int64(1700000000000)

func newTestExecutor(gateway *scriptedGateway, sink *captureSink) (*Executor, *[]time.Duration) {
	open := func(id string) (exchange.Gateway, error) { return gateway, nil }
	e := New(open, sink, nil, zap.NewNop(), Config{
		NotionalUSD: 50,
		OpenOffset:  2 * time.Second,
		CloseOffset: 10 * time.Millisecond,
	})
	e.now = func() time.Time { return time.UnixMilli(localNowMs) }
	var sleeps []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return e, &sleeps
}

func TestExecuteSuccess(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime:  localNowMs + 5000,
		openResult:  exchange.Order{ID: "o1", AveragePrice: f64(100), Fee: &exchange.Fee{Cost: 0.1, Currency: "USDT"}},
		closeResult: exchange.Order{ID: "o2", AveragePrice: f64(99), Fee: &exchange.Fee{Cost: 0.1, Currency: "USDT"}},
	}
	sink := &captureSink{}
	e, sleeps := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		MarkPrice:            f64(100),
		NextFundingTimestamp: localNowMs + 5000 + 7000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS (notes: %s)", event.Status, event.Notes)
	}
	if len(gateway.orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(gateway.orders))
	}
	if gateway.orders[0].side != exchange.SideSell {
		t.Fatalf("positive rate must open with a sell, got %s", gateway.orders[0].side)
	}
	if gateway.orders[1].side != exchange.SideBuy {
		t.Fatalf("close side must be the complement, got %s", gateway.orders[1].side)
	}
	if gateway.orders[0].qty != 0.5 {
		t.Fatalf("qty = %v, want 0.5 (50 notional at mark 100)", gateway.orders[0].qty)
	}

	// open fires 2s before settlement, close 10ms after, on the venue clock.
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 deadline waits, got %d", len(*sleeps))
	}
	if (*sleeps)[0] != 5*time.Second {
		t.Fatalf("open wait = %v, want 5s", (*sleeps)[0])
	}
	if (*sleeps)[1] != 7010*time.Millisecond {
		t.Fatalf("close wait = %v, want 7.01s", (*sleeps)[1])
	}

	if event.TradePnL == nil || *event.TradePnL != 0.5 {
		t.Fatalf("trade pnl = %v, want 0.5", event.TradePnL)
	}
	if event.FundingPayment == nil || *event.FundingPayment != -0.15 {
		t.Fatalf("funding payment = %v, want -0.15", event.FundingPayment)
	}
	if event.NetPnL == nil || math.Abs(*event.NetPnL-0.15) > 1e-9 {
		t.Fatalf("net pnl = %v, want 0.15", event.NetPnL)
	}
	if event.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if event.Notes != "PnL is an estimation." {
		t.Fatalf("notes = %q, want the estimation caveat", event.Notes)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one recorded event, got %d", len(sink.events))
	}
	if !gateway.closed {
		t.Fatalf("expected session closed")
	}
}

func TestExecuteNoUsablePrice(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime: localNowMs,
		ticker:     exchange.Ticker{},
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusFailed {
		t.Fatalf("status = %s, want FAILED", event.Status)
	}
	if !strings.Contains(event.Notes, ErrNoUsablePrice.Error()) {
		t.Fatalf("notes = %q, want sizing error", event.Notes)
	}
	if event.Amount != nil || event.OpenPrice != nil || event.NetPnL != nil {
		t.Fatalf("unknown fields must stay nil on early failure: %+v", event)
	}
	if len(gateway.orders) != 0 {
		t.Fatalf("no orders expected, got %d", len(gateway.orders))
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly one recorded event, got %d", len(sink.events))
	}
	if !gateway.closed {
		t.Fatalf("expected session closed on failure")
	}
}

func TestExecuteTickerFallbackToLast(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime:  localNowMs,
		ticker:      exchange.Ticker{Last: f64(200)},
		openResult:  exchange.Order{ID: "o1"},
		closeResult: exchange.Order{ID: "o2"},
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "bybit",
		Symbol:               "ETH/USDT:USDT",
		Rate:                 -0.004,
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS (notes: %s)", event.Status, event.Notes)
	}
	if gateway.orders[0].side != exchange.SideBuy {
		t.Fatalf("negative rate must open with a buy, got %s", gateway.orders[0].side)
	}
	if gateway.orders[0].qty != 0.25 {
		t.Fatalf("qty = %v, want 0.25 (50 notional at last 200)", gateway.orders[0].qty)
	}
	// Order acks carried no fill price; the sizing price stands in.
	if event.OpenPrice == nil || *event.OpenPrice != 200 {
		t.Fatalf("open price = %v, want 200", event.OpenPrice)
	}
}

func TestExecuteClosePriceFallsBackToSizingMark(t *testing.T) {
	// The open order reports its fill, the close order omits it: the close
	// leg must be priced at the sizing mark, not at the open fill.
	gateway := &scriptedGateway{
		serverTime:  localNowMs,
		openResult:  exchange.Order{ID: "o1", AveragePrice: f64(105)},
		closeResult: exchange.Order{ID: "o2"},
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		MarkPrice:            f64(100),
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS (notes: %s)", event.Status, event.Notes)
	}
	if event.OpenPrice == nil || *event.OpenPrice != 105 {
		t.Fatalf("open price = %v, want 105", event.OpenPrice)
	}
	if event.ClosePrice == nil || *event.ClosePrice != 100 {
		t.Fatalf("close price = %v, want the sizing mark 100", event.ClosePrice)
	}
	// Short-first at 105, closed at mark 100, qty 0.5.
	if event.TradePnL == nil || *event.TradePnL != 2.5 {
		t.Fatalf("trade pnl = %v, want 2.5", event.TradePnL)
	}
}

func TestExecuteTimestampIsAttemptStart(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime: localNowMs,
		ticker:     exchange.Ticker{},
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	// Advance the clock one second per reading so a completion-time stamp
	// would differ from the creation-time stamp.
	calls := 0
	e.now = func() time.Time {
		calls++
		return time.UnixMilli(localNowMs + int64(calls-1)*1000)
	}

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Timestamp != localNowMs {
		t.Fatalf("timestamp = %d, want attempt start %d", event.Timestamp, localNowMs)
	}
}

func TestExecuteQuantityRoundedToZero(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime: localNowMs,
		precision:  func(qty float64) float64 { return 0 },
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.01,
		MarkPrice:            f64(100000),
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusFailed {
		t.Fatalf("status = %s, want FAILED", event.Status)
	}
	if !errorsNoteIs(event.Notes, ErrQuantityRoundedToZero) {
		t.Fatalf("notes = %q, want quantity error", event.Notes)
	}
	if len(gateway.orders) != 0 {
		t.Fatalf("no orders expected, got %d", len(gateway.orders))
	}
}

func TestExecuteCloseFailureFlagsUnhedged(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime: localNowMs,
		openResult: exchange.Order{ID: "o1", AveragePrice: f64(100)},
		closeErr:   errors.New("venue rejected"),
	}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		MarkPrice:            f64(100),
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusFailed {
		t.Fatalf("status = %s, want FAILED", event.Status)
	}
	if !strings.Contains(event.Notes, "open position may be unhedged") {
		t.Fatalf("notes = %q, want unhedged flag", event.Notes)
	}
	// The open half still happened and its fill is preserved.
	if event.OpenPrice == nil || *event.OpenPrice != 100 {
		t.Fatalf("open price = %v, want 100", event.OpenPrice)
	}
	if event.ClosePrice != nil {
		t.Fatalf("close price must stay nil, got %v", *event.ClosePrice)
	}
}

func TestExecuteLateDeadlineFiresImmediately(t *testing.T) {
	gateway := &scriptedGateway{
		serverTime:  localNowMs,
		openResult:  exchange.Order{ID: "o1", AveragePrice: f64(100)},
		closeResult: exchange.Order{ID: "o2", AveragePrice: f64(100)},
	}
	sink := &captureSink{}
	e, sleeps := newTestExecutor(gateway, sink)

	// Settlement already in the past: both waits clamp to zero.
	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		MarkPrice:            f64(100),
		NextFundingTimestamp: localNowMs - 60000,
	}
	event := e.Execute(context.Background(), opp)

	if event.Status != ledger.StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS (notes: %s)", event.Status, event.Notes)
	}
	for i, d := range *sleeps {
		if d != 0 {
			t.Fatalf("wait %d = %v, want 0 for past deadline", i, d)
		}
	}
}

func TestExecuteCancelledRunStillRecordsEvent(t *testing.T) {
	gateway := &scriptedGateway{serverTime: localNowMs}
	sink := &captureSink{}
	e, _ := newTestExecutor(gateway, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opp := strategy.Opportunity{
		Exchange:             "binance",
		Symbol:               "BTC/USDT:USDT",
		Rate:                 0.003,
		MarkPrice:            f64(100),
		NextFundingTimestamp: localNowMs + 10000,
	}
	event := e.Execute(ctx, opp)

	if event.Status != ledger.StatusFailed {
		t.Fatalf("status = %s, want FAILED", event.Status)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected the terminal event despite cancellation, got %d", len(sink.events))
	}
	if !gateway.closed {
		t.Fatalf("expected session closed on cancellation")
	}
}

func errorsNoteIs(notes string, target error) bool {
	return strings.Contains(notes, target.Error())
}
