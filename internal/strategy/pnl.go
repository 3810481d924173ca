package strategy

import "funding-arb-bot/internal/exchange"

// OpenSide returns the opening order side for a funding rate. A positive rate
// means longs pay shorts, so the position opens short to receive the payment.
func OpenSide(rate float64) exchange.Side {
	if rate > 0 {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

// TradePnL is the realized price PnL of an open/close round trip.
func TradePnL(openPrice, closePrice, qty float64, openSide exchange.Side) float64 {
	if openSide == exchange.SideBuy {
		return (closePrice - openPrice) * qty
	}
	return (openPrice - closePrice) * qty
}

// FundingPaymentEstimateUSD estimates the funding payment as -rate * notional.
// This is an estimate only; the venue's actually credited payment is never
// reconciled here, and the sign convention has not been verified against
// every venue's funding-payment direction.
func FundingPaymentEstimateUSD(rate, notionalUSD float64) float64 {
	return -rate * notionalUSD
}

func NetPnL(tradePnL, openFee, closeFee, fundingPayment float64) float64 {
	return tradePnL - openFee - closeFee + fundingPayment
}
