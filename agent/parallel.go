package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentkit/core"
)

// ParallelAgent coordinates the concurrent execution of multiple child
// agents. Each child runs in its own goroutine on an isolated branch
// ("parent.ParallelName.ChildName"), so siblings never see each other's
// intermediate events, while all committed state lands in the shared session.
//
// Event fan-in is serialized: for every non-partial child event the
// coordinator forwards the event upstream, waits for the runner's resume
// token, and only then relays the token to the producing child. This
// preserves the one-token-per-committed-event pairing even with concurrent
// producers.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
}

// NewParallelAgent creates a new parallel execution coordinator.
func NewParallelAgent(name string, children ...core.Agent) *ParallelAgent {
	p := &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
	if err := p.SetSubAgents(children...); err != nil {
		panic(err)
	}
	return p
}

// Run implements core.Agent launching all children concurrently. All children
// run to completion even if siblings fail; the first error encountered is
// returned afterwards.
func (p *ParallelAgent) Run(ictx *core.InvocationContext) error {
	var (
		wg        sync.WaitGroup
		forwardMu sync.Mutex // serializes forward + resume-wait across children
	)
	errCh := make(chan error, len(p.children))

	for _, child := range p.children {
		wg.Add(1)
		go func(c core.Agent) {
			defer wg.Done()
			if err := p.runChild(ictx, c, &forwardMu); err != nil {
				errCh <- fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}
		}(child)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}

	return nil
}

// runChild executes one child on its own branch, relaying its events upstream
// under the shared forward lock.
func (p *ParallelAgent) runChild(ictx *core.InvocationContext, c core.Agent, forwardMu *sync.Mutex) error {
	childEmit := make(chan core.Event)
	childResume := make(chan struct{})
	branch := buildBranchPath(ictx.Branch, fmt.Sprintf("%s.%s", p.Name(), c.Name()))
	childCtx := ictx.NewChildContext(c, childEmit, childResume, branch)

	runDone := make(chan error, 1)
	go func() {
		runDone <- core.RunAgent(c, childCtx)
		close(childEmit)
	}()

	for ev := range childEmit {
		forwardMu.Lock()
		err := ictx.Forward(ev)
		if err == nil && !ev.IsPartial() {
			err = ictx.WaitForResume()
		}
		forwardMu.Unlock()
		if err != nil {
			// Unblock the child and surface the transport error.
			for range childEmit {
			}
			<-runDone
			return err
		}
		if !ev.IsPartial() {
			select {
			case childResume <- struct{}{}:
			case <-ictx.Done():
				for range childEmit {
				}
				<-runDone
				return ictx.Err()
			}
		}
	}

	return <-runDone
}
