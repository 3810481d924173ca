package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	ScansStarted          Counter
	ScanFailures          Counter
	OpportunitiesSelected Counter
	RunsStarted           Counter
	RunsSucceeded         Counter
	RunsFailed            Counter
	OrdersPlaced          Counter
	OrdersFailed          Counter
	TicksSkipped          Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		ScansStarted:          n,
		ScanFailures:          n,
		OpportunitiesSelected: n,
		RunsStarted:           n,
		RunsSucceeded:         n,
		RunsFailed:            n,
		OrdersPlaced:          n,
		OrdersFailed:          n,
		TicksSkipped:          n,
	}
}
