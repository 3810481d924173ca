package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/ledger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Writer mirrors arbitrage events into TimescaleDB for dashboarding. It is
// asynchronous and best-effort: the SQLite ledger remains the source of
// truth, so enqueue drops and insert failures are logged, never surfaced.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	events  chan ledger.Event
	started atomic.Bool
	dropped atomic.Uint64
}

// New returns a nil Writer (and nil error) when the mirror is disabled.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		events: make(chan ledger.Event, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// RecordArbitrageEvent implements ledger.Sink. The event is queued for the
// background writer; a full queue drops the event rather than blocking the
// run that produced it.
func (w *Writer) RecordArbitrageEvent(_ context.Context, event ledger.Event) error {
	w.Enqueue(event)
	return nil
}

func (w *Writer) Enqueue(event ledger.Event) {
	if w == nil {
		return
	}
	select {
	case w.events <- event:
		return
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale event queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.writeEvent(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		funding_rate DOUBLE PRECISION NOT NULL,
		funding_ts TIMESTAMPTZ NOT NULL,
		notional_usd DOUBLE PRECISION NOT NULL,
		open_price DOUBLE PRECISION,
		close_price DOUBLE PRECISION,
		amount DOUBLE PRECISION,
		trade_pnl DOUBLE PRECISION,
		open_fee DOUBLE PRECISION,
		close_fee DOUBLE PRECISION,
		funding_payment DOUBLE PRECISION,
		net_pnl DOUBLE PRECISION,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`, w.table("funding_arbitrage_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("funding_arbitrage_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale funding_arbitrage_events hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, event ledger.Event) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, run_id, exchange, symbol, funding_rate, funding_ts, notional_usd,
		open_price, close_price, amount, trade_pnl, open_fee, close_fee,
		funding_payment, net_pnl, status, notes
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
	)`, w.table("funding_arbitrage_events"))
	if _, err := w.db.ExecContext(ctx, query,
		time.UnixMilli(event.Timestamp).UTC(),
		event.RunID,
		event.Exchange,
		event.Symbol,
		event.FundingRate,
		time.UnixMilli(event.FundingTimestamp).UTC(),
		event.NotionalUSD,
		event.OpenPrice,
		event.ClosePrice,
		event.Amount,
		event.TradePnL,
		event.OpenFee,
		event.CloseFee,
		event.FundingPayment,
		event.NetPnL,
		string(event.Status),
		event.Notes,
	); err != nil && w.log != nil {
		w.log.Warn("timescale event insert failed", zap.String("run_id", event.RunID), zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
