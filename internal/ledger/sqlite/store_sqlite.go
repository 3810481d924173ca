package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"funding-arb-bot/internal/ledger"

	_ "modernc.org/sqlite"
)

// Store persists arbitrage events, trades and funding payments, keyed by
// strategy name so several strategies can share one database file.
type Store struct {
	db       *sql.DB
	strategy string
}

func New(path, strategyName string) (*Store, error) {
	if strategyName == "" {
		return nil, errors.New("strategy name is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, strategy: strategyName}, nil
}

func initSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			amount REAL NOT NULL,
			fee_cost REAL NOT NULL,
			fee_currency TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funding_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funding_arbitrage_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			funding_rate REAL NOT NULL,
			funding_timestamp INTEGER NOT NULL,
			position_size_usd REAL NOT NULL,
			open_price REAL,
			close_price REAL,
			amount REAL,
			trade_pnl REAL,
			open_fee REAL,
			close_fee REAL,
			funding_payment REAL,
			net_pnl REAL,
			status TEXT NOT NULL,
			notes TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordArbitrageEvent(ctx context.Context, event ledger.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO funding_arbitrage_log (
		strategy_name, run_id, timestamp, exchange, symbol, funding_rate, funding_timestamp,
		position_size_usd, open_price, close_price, amount, trade_pnl,
		open_fee, close_fee, funding_payment, net_pnl, status, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.strategy,
		event.RunID,
		event.Timestamp,
		event.Exchange,
		event.Symbol,
		event.FundingRate,
		event.FundingTimestamp,
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
	)
	return err
}

func (s *Store) RecordTrade(ctx context.Context, trade ledger.Trade) error {
	if trade.Timestamp == 0 {
		return errors.New("trade timestamp is required")
	}
	currency := trade.FeeCurrency
	if currency == "" {
		currency = ledger.FeeCurrencyFromSymbol(trade.Symbol)
	}
	if currency == "" {
		currency = "N/A"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO trades (
		strategy_name, timestamp, symbol, side, price, amount, fee_cost, fee_currency
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.strategy,
		trade.Timestamp,
		trade.Symbol,
		trade.Side,
		trade.Price,
		trade.Amount,
		trade.FeeCost,
		currency,
	)
	return err
}

// RecordFundingPayment skips payments already present for the same
// timestamp, symbol and amount; venues replay history on reconnect.
func (s *Store) RecordFundingPayment(ctx context.Context, payment ledger.FundingPayment) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM funding_payments WHERE strategy_name = ? AND timestamp = ? AND symbol = ? AND amount = ?`,
		s.strategy, payment.Timestamp, payment.Symbol, payment.Amount,
	).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO funding_payments (
		strategy_name, timestamp, symbol, amount, currency
	) VALUES (?, ?, ?, ?, ?)`,
		s.strategy,
		payment.Timestamp,
		payment.Symbol,
		payment.Amount,
		payment.Currency,
	)
	return err
}

type PnLSummary struct {
	TradeProfit  float64
	TotalFees    float64
	TotalFunding float64
	NetProfit    float64
	Currency     string
}

// RealizedPnL sums recorded trades, fees and funding payments for one
// currency. Buys count negative, sells positive.
func (s *Store) RealizedPnL(ctx context.Context, currency string) (PnLSummary, error) {
	summary := PnLSummary{Currency: currency}
	rows, err := s.db.QueryContext(ctx,
		`SELECT side, price, amount FROM trades WHERE strategy_name = ?`, s.strategy)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var side string
		var price, amount float64
		if err := rows.Scan(&side, &price, &amount); err != nil {
			return summary, err
		}
		if side == "buy" {
			summary.TradeProfit -= price * amount
		} else {
			summary.TradeProfit += price * amount
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	var fees sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT SUM(fee_cost) FROM trades WHERE strategy_name = ? AND fee_currency = ?`,
		s.strategy, currency,
	).Scan(&fees)
	if err != nil {
		return summary, err
	}
	summary.TotalFees = fees.Float64

	var funding sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT SUM(amount) FROM funding_payments WHERE strategy_name = ? AND currency = ?`,
		s.strategy, currency,
	).Scan(&funding)
	if err != nil {
		return summary, err
	}
	summary.TotalFunding = funding.Float64

	summary.NetProfit = summary.TradeProfit - summary.TotalFees + summary.TotalFunding
	return summary, nil
}

// Events returns the recorded arbitrage events, newest first.
func (s *Store) Events(ctx context.Context, limit int) ([]ledger.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, timestamp, exchange, symbol, funding_rate, funding_timestamp,
		position_size_usd, open_price, close_price, amount, trade_pnl,
		open_fee, close_fee, funding_payment, net_pnl, status, notes
	FROM funding_arbitrage_log WHERE strategy_name = ? ORDER BY id DESC LIMIT ?`,
		s.strategy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []ledger.Event
	for rows.Next() {
		var event ledger.Event
		var status string
		var notes sql.NullString
		if err := rows.Scan(
			&event.RunID,
			&event.Timestamp,
			&event.Exchange,
			&event.Symbol,
			&event.FundingRate,
			&event.FundingTimestamp,
			&event.NotionalUSD,
			&event.OpenPrice,
			&event.ClosePrice,
			&event.Amount,
			&event.TradePnL,
			&event.OpenFee,
			&event.CloseFee,
			&event.FundingPayment,
			&event.NetPnL,
			&status,
			&notes,
		); err != nil {
			return nil, err
		}
		event.Status = ledger.Status(status)
		event.Notes = notes.String
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
