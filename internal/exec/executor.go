// Package exec runs one funding-rate arbitrage attempt end to end: time
// sync, sizing, the deadline-driven open and close orders, and settlement
// accounting. A run produces exactly one ledger event no matter how it ends.
package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funding-arb-bot/internal/exchange"
	"funding-arb-bot/internal/ledger"
	"funding-arb-bot/internal/metrics"
	"funding-arb-bot/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoUsablePrice         = errors.New("no usable price for sizing")
	ErrQuantityRoundedToZero = errors.New("quantity rounded to zero")
)

// The funding payment is never reconciled against the venue's credited
// amount, so every successful event carries this caveat.
const estimationNote = "PnL is an estimation."

// Config holds the per-run trade parameters.
type Config struct {
	// NotionalUSD is the target position size in quote currency.
	NotionalUSD float64
	// OpenOffset is how long before settlement the opening order fires.
	OpenOffset time.Duration
	// CloseOffset is how long after settlement the closing order fires.
	CloseOffset time.Duration
}

type Executor struct {
	open    exchange.SessionFunc
	sink    ledger.Sink
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     Config

	// Seams for tests. now feeds the local side of the clock-offset
	// computation; sleep waits out the deadline gaps.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(open exchange.SessionFunc, sink ledger.Sink, m *metrics.Metrics, log *zap.Logger, cfg Config) *Executor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{
		open:    open,
		sink:    sink,
		metrics: m,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs the full open/close sequence for one opportunity and returns
// the terminal event. The event is recorded to the sink exactly once, on
// every exit path, including cancellation mid-run.
func (e *Executor) Execute(ctx context.Context, opp strategy.Opportunity) ledger.Event {
	e.metrics.RunsStarted.Inc()

	event := ledger.Event{
		RunID:            uuid.NewString(),
		Timestamp:        e.now().UnixMilli(),
		Exchange:         opp.Exchange,
		Symbol:           opp.Symbol,
		FundingRate:      opp.Rate,
		FundingTimestamp: opp.NextFundingTimestamp,
		NotionalUSD:      e.cfg.NotionalUSD,
		Status:           ledger.StatusInitiated,
	}
	log := e.log.With(
		zap.String("run_id", event.RunID),
		zap.String("exchange", opp.Exchange),
		zap.String("symbol", opp.Symbol),
	)

	machine := strategy.NewStateMachine()
	err := e.run(ctx, opp, &event, machine, log)

	if err != nil {
		machine.Apply(strategy.EventFailed)
		event.Status = ledger.StatusFailed
		event.Notes = err.Error()
		e.metrics.RunsFailed.Inc()
		log.Error("arbitrage run failed", zap.String("state", string(machine.Current())), zap.Error(err))
	} else {
		machine.Apply(strategy.EventSucceeded)
		event.Status = ledger.StatusSuccess
		event.Notes = estimationNote
		e.metrics.RunsSucceeded.Inc()
		log.Info("arbitrage run complete", zap.Float64p("net_pnl", event.NetPnL))
	}

	// The audit record must survive shutdown: a cancelled ctx still writes.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.sink.RecordArbitrageEvent(recordCtx, event); err != nil {
		log.Error("event record failed", zap.Error(err))
	}
	return event
}

func (e *Executor) run(ctx context.Context, opp strategy.Opportunity, event *ledger.Event, machine *strategy.StateMachine, log *zap.Logger) error {
	session, err := e.open(opp.Exchange)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("session close failed", zap.Error(err))
		}
	}()

	if _, err := session.LoadMarkets(ctx, true); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}

	serverTime, err := session.FetchTime(ctx)
	if err != nil {
		return fmt.Errorf("fetch server time: %w", err)
	}
	clockOffset := serverTime - e.now().UnixMilli()
	machine.Apply(strategy.EventTimeSynced)

	openDeadline := opp.NextFundingTimestamp - e.cfg.OpenOffset.Milliseconds()
	closeDeadline := opp.NextFundingTimestamp + e.cfg.CloseOffset.Milliseconds()
	log.Info("run scheduled",
		zap.Int64("clock_offset_ms", clockOffset),
		zap.Int64("funding_ts", opp.NextFundingTimestamp),
		zap.Int64("open_deadline", openDeadline),
		zap.Int64("close_deadline", closeDeadline),
	)

	price, err := e.sizingPrice(ctx, session, opp)
	if err != nil {
		return err
	}
	qty, err := session.AmountToPrecision(opp.Symbol, e.cfg.NotionalUSD/price)
	if err != nil {
		return fmt.Errorf("round quantity: %w", err)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: notional %.2f at price %.8f", ErrQuantityRoundedToZero, e.cfg.NotionalUSD, price)
	}
	event.Amount = &qty
	machine.Apply(strategy.EventSized)

	openSide := strategy.OpenSide(opp.Rate)
	closeSide := openSide.Opposite()

	machine.Apply(strategy.EventOpenScheduled)
	if err := e.waitUntil(ctx, openDeadline, clockOffset, "open", log); err != nil {
		return err
	}
	openOrder, err := session.CreateMarketOrder(ctx, opp.Symbol, openSide, qty, nil)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return fmt.Errorf("open order: %w", err)
	}
	e.metrics.OrdersPlaced.Inc()
	openPrice := orderPrice(openOrder, price)
	openFee := orderFee(openOrder)
	event.OpenPrice = &openPrice
	event.OpenFee = &openFee
	machine.Apply(strategy.EventOpened)
	log.Info("position opened",
		zap.String("side", string(openSide)),
		zap.Float64("qty", qty),
		zap.Float64("price", openPrice),
		zap.String("order_id", openOrder.ID),
	)

	machine.Apply(strategy.EventCloseScheduled)
	if err := e.waitUntil(ctx, closeDeadline, clockOffset, "close", log); err != nil {
		return fmt.Errorf("close order (open position may be unhedged): %w", err)
	}
	closeOrder, err := session.CreateMarketOrder(ctx, opp.Symbol, closeSide, qty, nil)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return fmt.Errorf("close order (open position may be unhedged): %w", err)
	}
	e.metrics.OrdersPlaced.Inc()
	closePrice := orderPrice(closeOrder, price)
	closeFee := orderFee(closeOrder)
	event.ClosePrice = &closePrice
	event.CloseFee = &closeFee
	machine.Apply(strategy.EventClosed)
	log.Info("position closed",
		zap.String("side", string(closeSide)),
		zap.Float64("price", closePrice),
		zap.String("order_id", closeOrder.ID),
	)

	tradePnL := strategy.TradePnL(openPrice, closePrice, qty, openSide)
	fundingPayment := strategy.FundingPaymentEstimateUSD(opp.Rate, e.cfg.NotionalUSD)
	netPnL := strategy.NetPnL(tradePnL, openFee, closeFee, fundingPayment)
	event.TradePnL = &tradePnL
	event.FundingPayment = &fundingPayment
	event.NetPnL = &netPnL
	return nil
}

// sizingPrice picks the reference price for quantity sizing: the scan-time
// mark price if the scanner carried one, otherwise a live ticker's mark or
// last price.
func (e *Executor) sizingPrice(ctx context.Context, session exchange.Gateway, opp strategy.Opportunity) (float64, error) {
	if opp.MarkPrice != nil && *opp.MarkPrice > 0 {
		return *opp.MarkPrice, nil
	}
	ticker, err := session.FetchTicker(ctx, opp.Symbol)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	if ticker.MarkPrice != nil && *ticker.MarkPrice > 0 {
		return *ticker.MarkPrice, nil
	}
	if ticker.Last != nil && *ticker.Last > 0 {
		return *ticker.Last, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNoUsablePrice, opp.Symbol)
}

// waitUntil sleeps until the given exchange-clock deadline. A deadline that
// is already past does not abort the run: the order fires immediately with a
// warning, since a late order is still better than a one-sided position.
func (e *Executor) waitUntil(ctx context.Context, deadline, clockOffset int64, step string, log *zap.Logger) error {
	remaining := time.Duration(deadline-(e.now().UnixMilli()+clockOffset)) * time.Millisecond
	if remaining < 0 {
		log.Warn("deadline already passed, firing immediately",
			zap.String("step", step),
			zap.Duration("late_by", -remaining),
		)
		remaining = 0
	}
	if err := e.sleep(ctx, remaining); err != nil {
		return fmt.Errorf("wait for %s deadline: %w", step, err)
	}
	return nil
}

func orderPrice(order exchange.Order, fallback float64) float64 {
	if order.AveragePrice != nil && *order.AveragePrice > 0 {
		return *order.AveragePrice
	}
	return fallback
}

func orderFee(order exchange.Order) float64 {
	if order.Fee != nil {
		return order.Fee.Cost
	}
	return 0
}
