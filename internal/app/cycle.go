package app

import (
	"context"

	"funding-arb-bot/internal/exec"
	"funding-arb-bot/internal/ledger"
	"funding-arb-bot/internal/strategy"
)

// runHandle tracks one dispatched executor run. done is closed by the run
// goroutine when the terminal event has been recorded.
type runHandle struct {
	exchange string
	symbol   string
	done     chan struct{}
}

// executionCycle owns the set of in-flight runs. Only the coordinator
// goroutine mutates the handle map, so no lock is needed: run goroutines
// signal completion through their done channels and never touch the map.
type executionCycle struct {
	handles map[string]*runHandle
}

func newExecutionCycle() *executionCycle {
	return &executionCycle{handles: make(map[string]*runHandle)}
}

// Prune drops handles whose runs have finished. Non-blocking.
func (c *executionCycle) Prune() {
	for id, handle := range c.handles {
		select {
		case <-handle.done:
			delete(c.handles, id)
		default:
		}
	}
}

// Active reports how many dispatched runs have not finished yet.
func (c *executionCycle) Active() int {
	return len(c.handles)
}

// Dispatch starts one executor run for the opportunity. The onDone callback
// fires from the run goroutine with the terminal event, after the ledger
// write, before the handle is released.
func (c *executionCycle) Dispatch(ctx context.Context, executor *exec.Executor, opp strategy.Opportunity, onDone func(ledger.Event)) {
	handle := &runHandle{
		exchange: opp.Exchange,
		symbol:   opp.Symbol,
		done:     make(chan struct{}),
	}
	c.handles[opp.Exchange] = handle
	go func() {
		defer close(handle.done)
		event := executor.Execute(ctx, opp)
		if onDone != nil {
			onDone(event)
		}
	}()
}

// Wait blocks until every in-flight run has finished.
func (c *executionCycle) Wait() {
	for _, handle := range c.handles {
		<-handle.done
	}
	c.handles = make(map[string]*runHandle)
}
