// Package scanner polls enabled venues for funding rates and turns them
// into per-instrument opportunities. Each scan opens short-lived sessions,
// one per venue, and closes them before returning.
package scanner

import (
	"context"
	"sort"
	"strings"

	"funding-arb-bot/internal/exchange"
	"funding-arb-bot/internal/metrics"
	"funding-arb-bot/internal/strategy"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Scanner struct {
	open    exchange.SessionFunc
	quote   string
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(open exchange.SessionFunc, quote string, m *metrics.Metrics, log *zap.Logger) *Scanner {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Scanner{open: open, quote: quote, metrics: m, log: log}
}

// Scan fetches funding rates from every exchange in parallel and returns the
// candidates grouped by exchange id, in the order given. An exchange that
// fails to respond is logged and omitted; one slow or broken venue must not
// spoil the rest of the cycle.
func (s *Scanner) Scan(ctx context.Context, exchangeIDs []string) map[string][]strategy.Opportunity {
	s.metrics.ScansStarted.Inc()

	results := make([][]strategy.Opportunity, len(exchangeIDs))
	group, ctx := errgroup.WithContext(ctx)
	for i, id := range exchangeIDs {
		i, id := i, id
		group.Go(func() error {
			opps, err := s.scanExchange(ctx, id)
			if err != nil {
				s.metrics.ScanFailures.Inc()
				s.log.Warn("exchange scan failed", zap.String("exchange", id), zap.Error(err))
				return nil
			}
			results[i] = opps
			return nil
		})
	}
	_ = group.Wait()

	byExchange := make(map[string][]strategy.Opportunity, len(exchangeIDs))
	for i, id := range exchangeIDs {
		if len(results[i]) > 0 {
			byExchange[id] = results[i]
		}
	}
	return byExchange
}

func (s *Scanner) scanExchange(ctx context.Context, id string) ([]strategy.Opportunity, error) {
	session, err := s.open(id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.log.Warn("session close failed", zap.String("exchange", id), zap.Error(err))
		}
	}()

	markets, err := session.LoadMarkets(ctx, true)
	if err != nil {
		return nil, err
	}
	rates, err := session.FetchFundingRates(ctx)
	if err != nil {
		return nil, err
	}

	// Walk the rate table in sorted symbol order so the candidate list, and
	// with it the selector's first-encountered tie-break, is deterministic.
	symbols := make([]string, 0, len(rates))
	for symbol := range rates {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var opps []strategy.Opportunity
	for _, symbol := range symbols {
		market, ok := markets[symbol]
		if !ok || !market.Swap || market.Expiry != 0 {
			continue
		}
		if !strings.EqualFold(market.Settle, s.quote) {
			continue
		}
		info := rates[symbol]
		if info.FundingRate == nil {
			s.log.Debug("skipping instrument without funding rate", zap.String("exchange", id), zap.String("symbol", symbol))
			continue
		}
		settlement, ok := info.SettlementTimestamp()
		if !ok {
			s.log.Debug("skipping instrument without settlement timestamp", zap.String("exchange", id), zap.String("symbol", symbol))
			continue
		}
		opps = append(opps, strategy.Opportunity{
			Exchange:             id,
			Symbol:               symbol,
			Rate:                 *info.FundingRate,
			MarkPrice:            info.MarkPrice,
			NextFundingTimestamp: settlement,
		})
	}
	return opps, nil
}
