package ledger

import (
	"context"
	"errors"
	"strings"
)

type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// Event is the durable record of one arbitrage execution attempt. It is
// owned by the single run that created it and written to the sink exactly
// once, at run completion. Pointer fields stay nil when the run failed
// before the value was known.
type Event struct {
	RunID            string   `msgpack:"run_id"`
	Timestamp        int64    `msgpack:"timestamp"`
	Exchange         string   `msgpack:"exchange"`
	Symbol           string   `msgpack:"symbol"`
	FundingRate      float64  `msgpack:"funding_rate"`
	FundingTimestamp int64    `msgpack:"funding_timestamp"`
	NotionalUSD      float64  `msgpack:"notional_usd"`
	OpenPrice        *float64 `msgpack:"open_price"`
	ClosePrice       *float64 `msgpack:"close_price"`
	Amount           *float64 `msgpack:"amount"`
	TradePnL         *float64 `msgpack:"trade_pnl"`
	OpenFee          *float64 `msgpack:"open_fee"`
	CloseFee         *float64 `msgpack:"close_fee"`
	FundingPayment   *float64 `msgpack:"funding_payment"`
	NetPnL           *float64 `msgpack:"net_pnl"`
	Status           Status   `msgpack:"status"`
	Notes            string   `msgpack:"notes"`
}

// Trade is one filled order, recorded for realized-PnL bookkeeping.
type Trade struct {
	Timestamp   int64
	Symbol      string
	Side        string
	Price       float64
	Amount      float64
	FeeCost     float64
	FeeCurrency string
}

// FundingPayment is one funding credit or debit as the venue reports it.
type FundingPayment struct {
	Timestamp int64
	Symbol    string
	Amount    float64
	Currency  string
}

// Sink records arbitrage events. Durability and deduplication are the sink's
// contract; the engine fires exactly one event per run and moves on.
type Sink interface {
	RecordArbitrageEvent(ctx context.Context, event Event) error
	Close() error
}

type fanout []Sink

// Fanout returns a Sink that forwards every event to all given sinks.
// All sinks are attempted even when earlier ones fail.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

func (f fanout) RecordArbitrageEvent(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.RecordArbitrageEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, sink := range f {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FeeCurrencyFromSymbol infers the quote currency from symbols of the form
// BASE/QUOTE or BASE/QUOTE:SETTLE. Used when the venue omits fee currency.
func FeeCurrencyFromSymbol(symbol string) string {
	_, rest, ok := strings.Cut(symbol, "/")
	if !ok {
		return ""
	}
	quote, _, _ := strings.Cut(rest, ":")
	return quote
}
