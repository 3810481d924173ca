package strategy

import "testing"

func opp(symbol string, rate float64) Opportunity {
	return Opportunity{Exchange: "binance", Symbol: symbol, Rate: rate, NextFundingTimestamp: 1}
}

func TestSelectBestPicksMaxAbsoluteRate(t *testing.T) {
	candidates := []Opportunity{
		opp("BTC/USDT:USDT", 0.003),
		opp("ETH/USDT:USDT", -0.008),
		opp("SOL/USDT:USDT", 0.005),
	}
	best, ok := SelectBest(candidates, 0.0025)
	if !ok {
		t.Fatalf("expected an opportunity")
	}
	if best.Symbol != "ETH/USDT:USDT" {
		t.Fatalf("expected ETH/USDT:USDT, got %s", best.Symbol)
	}
}

func TestSelectBestThresholdIsStrict(t *testing.T) {
	candidates := []Opportunity{opp("BTC/USDT:USDT", 0.0025), opp("ETH/USDT:USDT", -0.0025)}
	if _, ok := SelectBest(candidates, 0.0025); ok {
		t.Fatalf("rates exactly at threshold must not qualify")
	}
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	candidates := []Opportunity{
		opp("BTC/USDT:USDT", 0.004),
		opp("ETH/USDT:USDT", -0.004),
	}
	best, ok := SelectBest(candidates, 0.001)
	if !ok || best.Symbol != "BTC/USDT:USDT" {
		t.Fatalf("expected first-encountered candidate to win the tie, got %+v (ok=%v)", best, ok)
	}
}

func TestSelectBestEmptyInput(t *testing.T) {
	if _, ok := SelectBest(nil, 0.0025); ok {
		t.Fatalf("expected no opportunity for empty input")
	}
	candidates := []Opportunity{opp("BTC/USDT:USDT", 0.0001)}
	if _, ok := SelectBest(candidates, 0.0025); ok {
		t.Fatalf("expected no opportunity below threshold")
	}
}
