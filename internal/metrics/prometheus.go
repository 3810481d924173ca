package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "funding_arb_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	scansStarted  prometheus.Counter
	scanFailures  prometheus.Counter
	oppsSelected  prometheus.Counter
	runsStarted   prometheus.Counter
	runsSucceeded prometheus.Counter
	runsFailed    prometheus.Counter
	ordersPlaced  prometheus.Counter
	ordersFailed  prometheus.Counter
	ticksSkipped  prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	scansStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "scans_started_total",
		Help:      "Total number of funding-rate scan cycles started.",
	})
	scanFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "scan_failures_total",
		Help:      "Total number of per-exchange scan failures.",
	})
	oppsSelected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "opportunities_selected_total",
		Help:      "Total number of opportunities selected for execution.",
	})
	runsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_started_total",
		Help:      "Total number of arbitrage executor runs started.",
	})
	runsSucceeded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_succeeded_total",
		Help:      "Total number of arbitrage executor runs that completed.",
	})
	runsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_failed_total",
		Help:      "Total number of arbitrage executor runs that failed.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of market orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of market order submission failures.",
	})
	ticksSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ticks_skipped_total",
		Help:      "Total number of coordinator ticks skipped due to in-flight runs.",
	})

	registry.MustRegister(scansStarted, scanFailures, oppsSelected, runsStarted, runsSucceeded, runsFailed, ordersPlaced, ordersFailed, ticksSkipped)

	m := &Metrics{
		ScansStarted:          promCounter{scansStarted},
		ScanFailures:          promCounter{scanFailures},
		OpportunitiesSelected: promCounter{oppsSelected},
		RunsStarted:           promCounter{runsStarted},
		RunsSucceeded:         promCounter{runsSucceeded},
		RunsFailed:            promCounter{runsFailed},
		OrdersPlaced:          promCounter{ordersPlaced},
		OrdersFailed:          promCounter{ordersFailed},
		TicksSkipped:          promCounter{ticksSkipped},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		scansStarted:  scansStarted,
		scanFailures:  scanFailures,
		oppsSelected:  oppsSelected,
		runsStarted:   runsStarted,
		runsSucceeded: runsSucceeded,
		runsFailed:    runsFailed,
		ordersPlaced:  ordersPlaced,
		ordersFailed:  ordersFailed,
		ticksSkipped:  ticksSkipped,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
