// Package app wires the scanner, selector, and executor together and drives
// them on the minute-of-hour schedule.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"funding-arb-bot/internal/alerts"
	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/exchange"
	"funding-arb-bot/internal/exec"
	"funding-arb-bot/internal/ledger"
	"funding-arb-bot/internal/ledger/sqlite"
	"funding-arb-bot/internal/metrics"
	"funding-arb-bot/internal/scanner"
	"funding-arb-bot/internal/strategy"
	"funding-arb-bot/internal/timescale"

	"go.uber.org/zap"
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *sqlite.Store
	journal  *ledger.Journal
	mirror   *timescale.Writer
	sink     ledger.Sink
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	alerts   *alerts.Telegram
	scanner  *scanner.Scanner
	executor *exec.Executor
	cycle    *executionCycle

	now func() time.Time
}

func New(cfg *config.Config, registry *exchange.Registry, log *zap.Logger) (*App, error) {
	for _, id := range cfg.EnabledExchanges() {
		if !registry.Has(id) {
			return nil, errors.New("no gateway registered for exchange " + id)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Ledger.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.Ledger.SQLitePath, cfg.Strategy.Name)
	if err != nil {
		return nil, err
	}

	sinks := []ledger.Sink{store}
	var journal *ledger.Journal
	if cfg.Ledger.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.JournalPath), 0o755); err != nil {
			_ = store.Close()
			return nil, err
		}
		journal, err = ledger.OpenJournal(cfg.Ledger.JournalPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sinks = append(sinks, journal)
	}
	mirror, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		if journal != nil {
			_ = journal.Close()
		}
		return nil, err
	}
	if mirror != nil {
		sinks = append(sinks, mirror)
	}
	sink := ledger.Fanout(sinks...)

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	open := func(id string) (exchange.Gateway, error) {
		excfg, _ := cfg.ExchangeByID(id)
		return registry.Open(id, exchange.Credentials{APIKey: excfg.APIKey, Secret: excfg.Secret})
	}

	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		journal: journal,
		mirror:  mirror,
		sink:    sink,
		metrics: m,
		prom:    prom,
		alerts:  alerts.NewTelegram(cfg.Telegram, log),
		scanner: scanner.New(open, cfg.Strategy.QuoteCurrency, m, log),
		executor: exec.New(open, sink, m, log, exec.Config{
			NotionalUSD: cfg.Strategy.NotionalUSD,
			OpenOffset:  cfg.Strategy.OpenOffset,
			CloseOffset: cfg.Strategy.CloseOffset,
		}),
		cycle: newExecutionCycle(),
		now:   time.Now,
	}, nil
}

// Run drives the scan/execute loop until ctx is cancelled. The first cycle
// fires immediately; after that, ticks land on the configured minute of
// every hour.
func (a *App) Run(ctx context.Context) error {
	defer a.closeAll()

	a.logParameters()
	a.mirror.Start(ctx)
	a.serveMetrics(ctx)

	a.runCycle(ctx)

	for {
		tick := nextCheck(a.now(), a.cfg.Strategy.CheckMinuteValue())
		timer := time.NewTimer(time.Until(tick))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.log.Info("shutting down, waiting for in-flight runs")
			a.cycle.Wait()
			return ctx.Err()
		case <-timer.C:
			a.runCycle(ctx)
		}
	}
}

// runCycle is one coordinator tick: prune finished runs, skip the tick
// entirely while anything is still in flight, otherwise scan and dispatch
// at most one run per exchange.
func (a *App) runCycle(ctx context.Context) {
	a.cycle.Prune()
	if active := a.cycle.Active(); active > 0 {
		a.metrics.TicksSkipped.Inc()
		a.log.Warn("skipping cycle, runs still in flight", zap.Int("active", active))
		return
	}

	exchanges := a.cfg.EnabledExchanges()
	byExchange := a.scanner.Scan(ctx, exchanges)

	for _, id := range exchanges {
		opp, ok := strategy.SelectBest(byExchange[id], a.cfg.Strategy.RateThreshold)
		if !ok {
			continue
		}
		a.metrics.OpportunitiesSelected.Inc()
		a.log.Info("opportunity selected",
			zap.String("exchange", opp.Exchange),
			zap.String("symbol", opp.Symbol),
			zap.Float64("rate", opp.Rate),
			zap.Int64("funding_ts", opp.NextFundingTimestamp),
		)
		a.cycle.Dispatch(ctx, a.executor, opp, func(event ledger.Event) {
			// Shutdown must not suppress the bookkeeping for a run that
			// already produced its terminal event.
			doneCtx := context.WithoutCancel(ctx)
			a.recordFills(doneCtx, event)
			a.alerts.NotifyEvent(doneCtx, event)
		})
	}
}

// recordFills books the individual fills and the estimated funding payment
// of a successful run into the realized-PnL tables.
func (a *App) recordFills(ctx context.Context, event ledger.Event) {
	if event.Status != ledger.StatusSuccess {
		return
	}
	if event.OpenPrice == nil || event.ClosePrice == nil || event.Amount == nil {
		return
	}
	openSide := strategy.OpenSide(event.FundingRate)
	currency := ledger.FeeCurrencyFromSymbol(event.Symbol)
	trades := []ledger.Trade{
		{
			Timestamp:   event.Timestamp,
			Symbol:      event.Symbol,
			Side:        string(openSide),
			Price:       *event.OpenPrice,
			Amount:      *event.Amount,
			FeeCost:     deref(event.OpenFee),
			FeeCurrency: currency,
		},
		{
			Timestamp:   event.Timestamp,
			Symbol:      event.Symbol,
			Side:        string(openSide.Opposite()),
			Price:       *event.ClosePrice,
			Amount:      *event.Amount,
			FeeCost:     deref(event.CloseFee),
			FeeCurrency: currency,
		},
	}
	for _, trade := range trades {
		if err := a.store.RecordTrade(ctx, trade); err != nil {
			a.log.Warn("trade record failed", zap.String("run_id", event.RunID), zap.Error(err))
		}
	}
	if event.FundingPayment != nil {
		payment := ledger.FundingPayment{
			Timestamp: event.FundingTimestamp,
			Symbol:    event.Symbol,
			Amount:    *event.FundingPayment,
			Currency:  currency,
		}
		if err := a.store.RecordFundingPayment(ctx, payment); err != nil {
			a.log.Warn("funding payment record failed", zap.String("run_id", event.RunID), zap.Error(err))
		}
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (a *App) logParameters() {
	a.log.Info("starting funding arbitrage bot",
		zap.Strings("exchanges", a.cfg.EnabledExchanges()),
		zap.Int("check_minute", a.cfg.Strategy.CheckMinuteValue()),
		zap.Float64("rate_threshold", a.cfg.Strategy.RateThreshold),
		zap.Float64("notional_usd", a.cfg.Strategy.NotionalUSD),
		zap.Duration("open_offset", a.cfg.Strategy.OpenOffset),
		zap.Duration("close_offset", a.cfg.Strategy.CloseOffset),
		zap.String("quote_currency", a.cfg.Strategy.QuoteCurrency),
	)
}

func (a *App) serveMetrics(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
}

func (a *App) closeAll() {
	if err := a.sink.Close(); err != nil {
		a.log.Warn("sink close failed", zap.Error(err))
	}
}

// nextCheck returns the next wall-clock instant whose minute equals minute,
// at second zero, strictly after now.
func nextCheck(now time.Time, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}
