package strategy

// Opportunity is an immutable snapshot of a candidate funding-rate trade,
// produced once per scan cycle and consumed by exactly one executor run.
type Opportunity struct {
	Exchange string
	Symbol   string
	// Rate is the signed funding rate as a fraction (0.003 = 0.3%).
	Rate      float64
	MarkPrice *float64
	// NextFundingTimestamp is the settlement instant in epoch milliseconds.
	NextFundingTimestamp int64
}

type State string

type Event string

const (
	StateInitiated      State = "INITIATED"
	StateTimeSynced     State = "TIME_SYNCED"
	StateSized          State = "SIZED"
	StateOpenScheduled  State = "OPEN_SCHEDULED"
	StateOpened         State = "OPENED"
	StateCloseScheduled State = "CLOSE_SCHEDULED"
	StateClosed         State = "CLOSED"
	StateSuccess        State = "SUCCESS"
	StateFailed         State = "FAILED"
)

const (
	EventTimeSynced     Event = "TIME_SYNCED"
	EventSized          Event = "SIZED"
	EventOpenScheduled  Event = "OPEN_SCHEDULED"
	EventOpened         Event = "OPENED"
	EventCloseScheduled Event = "CLOSE_SCHEDULED"
	EventClosed         Event = "CLOSED"
	EventSucceeded      Event = "SUCCEEDED"
	EventFailed         Event = "FAILED"
)
