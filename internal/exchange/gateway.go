package exchange

import "context"

// Side is a market order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Market describes one instrument as the venue reports it. Expiry is an
// epoch-millisecond timestamp; 0 means no expiry (perpetual).
type Market struct {
	Symbol string
	Swap   bool
	Expiry int64
	Settle string
}

// RateInfo is one row of a venue's funding-rate table. Venues disagree on
// which timestamp field they populate, so both are carried.
type RateInfo struct {
	FundingRate          *float64
	MarkPrice            *float64
	NextFundingTimestamp *int64
	FundingTimestamp     *int64
}

// SettlementTimestamp returns the next funding settlement instant, preferring
// NextFundingTimestamp over FundingTimestamp.
func (r RateInfo) SettlementTimestamp() (int64, bool) {
	if r.NextFundingTimestamp != nil {
		return *r.NextFundingTimestamp, true
	}
	if r.FundingTimestamp != nil {
		return *r.FundingTimestamp, true
	}
	return 0, false
}

type Ticker struct {
	MarkPrice *float64
	Last      *float64
}

type Fee struct {
	Cost     float64
	Currency string
}

// Order is the venue's acknowledgement of a submitted order. AveragePrice and
// Fee are nil when the venue omits them from the response.
type Order struct {
	ID           string
	AveragePrice *float64
	Fee          *Fee
}

// Gateway is one authenticated session against a perpetual-futures venue.
// Sessions are expensive; callers must Close on every exit path.
type Gateway interface {
	LoadMarkets(ctx context.Context, forceReload bool) (map[string]Market, error)
	FetchFundingRates(ctx context.Context) (map[string]RateInfo, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	FetchTime(ctx context.Context) (int64, error)
	AmountToPrecision(symbol string, qty float64) (float64, error)
	CreateMarketOrder(ctx context.Context, symbol string, side Side, qty float64, params map[string]any) (Order, error)
	Close() error
}

// SessionFunc opens a fresh Gateway session for the given exchange id.
type SessionFunc func(id string) (Gateway, error)
