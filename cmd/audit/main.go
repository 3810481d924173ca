// Command audit inspects the bot's ledger offline: recent arbitrage events
// from SQLite, realized PnL, and an optional raw journal replay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"funding-arb-bot/internal/config"
	"funding-arb-bot/internal/ledger"
	"funding-arb-bot/internal/ledger/sqlite"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	limit := flag.Int("limit", 20, "number of recent events to print")
	currency := flag.String("currency", "", "realized PnL currency (default: strategy quote currency)")
	journal := flag.Bool("journal", false, "replay the msgpack journal instead of the SQLite ledger")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	if *journal {
		if cfg.Ledger.JournalPath == "" {
			fatal(fmt.Errorf("no journal path configured"))
		}
		events, err := ledger.ReadJournal(cfg.Ledger.JournalPath)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("journal: %d events\n", len(events))
		for _, event := range events {
			printEvent(event)
		}
		return
	}

	store, err := sqlite.New(cfg.Ledger.SQLitePath, cfg.Strategy.Name)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := store.Events(ctx, *limit)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("last %d events:\n", len(events))
	for _, event := range events {
		printEvent(event)
	}

	cur := *currency
	if cur == "" {
		cur = cfg.Strategy.QuoteCurrency
	}
	summary, err := store.RealizedPnL(ctx, cur)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("\nrealized pnl (%s): trade=%.6f fees=%.6f funding=%.6f net=%.6f\n",
		cur, summary.TradeProfit, summary.TotalFees, summary.TotalFunding, summary.NetProfit)
}

func printEvent(event ledger.Event) {
	ts := time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339)
	fmt.Printf("%s  %-7s  %-10s  %-18s  rate=%+.6f", ts, event.Status, event.Exchange, event.Symbol, event.FundingRate)
	if event.NetPnL != nil {
		fmt.Printf("  net=%+.6f", *event.NetPnL)
	}
	if event.Status == ledger.StatusFailed && event.Notes != "" {
		fmt.Printf("  (%s)", event.Notes)
	}
	fmt.Println()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
