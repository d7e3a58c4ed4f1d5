package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentkit/core"
)

// LoopAgent repeatedly executes its children in order until one of them
// escalates, the iteration cap is reached, or the invocation is cooperatively
// ended. All iterations share the invocation context, so children accumulate
// state across runs.
//
// Escalation is consumed here: when a child event carries the escalate
// action, the loop commits that event, cancels the child's derived context,
// and returns without running the remaining children or iterations.
type LoopAgent struct {
	BaseAgent
	children      []core.Agent
	maxIterations int
	interval      time.Duration
}

// LoopOption configures LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIterations caps the number of loop iterations. The loop terminates
// after this many full passes even without an escalation.
func WithMaxIterations(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIterations = n }
}

// WithInterval sets a delay between iterations, useful for polling scenarios.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// NewLoopAgent constructs a looping coordinator around an ordered child set.
// Default: 100 iterations, no interval.
func NewLoopAgent(name string, children []core.Agent, opts ...LoopOption) *LoopAgent {
	l := &LoopAgent{
		BaseAgent:     NewBaseAgent(name),
		children:      children,
		maxIterations: 100,
	}
	for _, o := range opts {
		o(l)
	}
	if err := l.SetSubAgents(children...); err != nil {
		panic(err)
	}
	return l
}

// Run implements core.Agent performing iterative execution with escalation
// interception. Escalation terminates the loop without error; a child error
// terminates it immediately with the error.
func (l *LoopAgent) Run(ictx *core.InvocationContext) error {
	for i := 0; i < l.maxIterations; i++ {
		select {
		case <-ictx.Done():
			return ictx.Err()
		default:
		}

		ictx.Logger.Debug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1)

		for _, child := range l.children {
			if ictx.EndInvocation() {
				return nil
			}
			escalated, err := l.runChild(ictx, child)
			if err != nil {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, child.Name(), err)
			}
			if escalated {
				ictx.Logger.Info("agent.loop.escalated", "agent", l.Name(), "child", child.Name(), "iteration", i+1)
				return nil
			}
		}

		if l.interval > 0 && i < l.maxIterations-1 {
			select {
			case <-ictx.Done():
				return ictx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	ictx.Logger.Debug("agent.loop.completed", "agent", l.Name(), "iterations", l.maxIterations)

	return nil
}

// runChild executes one child behind an intercept channel, forwarding and
// committing its events while watching for the escalate action. On
// escalation the child's derived context is cancelled so any in-flight
// producer unblocks, remaining (uncommitted) events are discarded, and true
// is returned.
func (l *LoopAgent) runChild(ictx *core.InvocationContext, child core.Agent) (bool, error) {
	childCtx, cancel := context.WithCancel(ictx.Context)
	defer cancel()

	interceptChan := make(chan core.Event)
	resumeChan := make(chan struct{})
	cctx := ictx.WithContext(childCtx).NewChildContext(child, interceptChan, resumeChan, "")

	done := make(chan error, 1)
	go func() {
		done <- core.RunAgent(child, cctx)
		close(interceptChan)
	}()

	for ev := range interceptChan {
		if err := ictx.Forward(ev); err != nil {
			cancel()
			l.drain(interceptChan, done)
			return false, err
		}
		if ev.IsPartial() {
			continue
		}
		if err := ictx.WaitForResume(); err != nil {
			cancel()
			l.drain(interceptChan, done)
			return false, err
		}
		if ev.Actions.IsEscalate() {
			cancel()
			l.drain(interceptChan, done)
			return true, nil
		}
		select {
		case resumeChan <- struct{}{}:
		case <-ictx.Done():
			l.drain(interceptChan, done)
			return false, ictx.Err()
		}
	}

	return false, <-done
}

// drain discards leftover child events after cancellation and waits for the
// child goroutine to finish. Discarded events were never committed.
func (l *LoopAgent) drain(interceptChan <-chan core.Event, done <-chan error) {
	for range interceptChan {
	}
	<-done
}
