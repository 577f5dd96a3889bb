package explore

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/symlift/symlift/pkg/solver"
	"github.com/symlift/symlift/pkg/symexec"
)

// Path is one terminal execution path Run discovered: the block
// addresses visited, the events emitted along the way, and the state
// it ended in.
type Path struct {
	Trace  []uint64
	Events []*symexec.Event
	State  *symexec.State
	Stop   string // "exit", "end-of-program", "unresolved-jump", "step-limit"
}

// Explorer walks a Program from a starting state, forking a clone at
// every Jump event whose condition the solver can't resolve to a
// single concrete outcome.
type Explorer struct {
	Program  *Program
	MaxSteps int
	Workers  int
}

// NewExplorer returns an Explorer bounded to maxSteps blocks per path
// (guarding against an unbounded loop in the lifted stream) and sized
// to the host's CPU count via runtime.NumCPU() for its worker pool.
func NewExplorer(program *Program, maxSteps int) *Explorer {
	if maxSteps <= 0 {
		maxSteps = 64
	}
	return &Explorer{Program: program, MaxSteps: maxSteps, Workers: runtime.NumCPU()}
}

// task is one path still being walked: a state, the address it's
// resuming at, and everything collected before it got there.
type task struct {
	state  *symexec.State
	addr   uint64
	trace  []uint64
	events []*symexec.Event
	steps  int
}

type branch struct {
	state *symexec.State
	addr  uint64
}

// Run explores every path reachable from state at startAddr and
// returns one Path per terminal state. New branches are dispatched
// onto a channel and drained by a fixed pool of goroutines, the same
// channel-plus-WaitGroup fan-out pkg/search/worker.go uses; a second
// WaitGroup tracks in-flight-or-queued tasks so the channel can be
// closed once every forked path has terminated, even though the total
// task count isn't known up front.
func (ex *Explorer) Run(state *symexec.State, startAddr uint64) []Path {
	workers := ex.Workers
	if workers <= 0 {
		workers = 1
	}

	tasks := make(chan task, 64)
	results := make(chan Path, 64)
	var pending sync.WaitGroup
	var forked atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				ex.runTask(t, tasks, results, &pending, &forked)
				pending.Done()
			}
		}()
	}

	pending.Add(1)
	tasks <- task{state: state, addr: startAddr}

	go func() {
		pending.Wait()
		close(tasks)
	}()

	var paths []Path
	collected := make(chan struct{})
	go func() {
		for p := range results {
			paths = append(paths, p)
		}
		close(collected)
	}()

	wg.Wait()
	close(results)
	<-collected
	return paths
}

// runTask walks t forward block by block. Whenever a jump forks it
// dispatches a new task for the taken branch and keeps walking the
// fall-through itself, and finally emits exactly one Path onto results
// for the path this call walked.
func (ex *Explorer) runTask(t task, tasks chan<- task, results chan<- Path, pending *sync.WaitGroup, forked *atomic.Int64) {
	state := t.state
	addr := t.addr
	trace := append([]uint64(nil), t.trace...)
	events := append([]*symexec.Event(nil), t.events...)
	steps := t.steps

	for {
		if steps >= ex.MaxSteps {
			results <- Path{Trace: trace, Events: events, State: state, Stop: "step-limit"}
			return
		}
		block, ok := ex.Program.blockAt(addr)
		if !ok {
			results <- Path{Trace: trace, Events: events, State: state, Stop: "end-of-program"}
			return
		}
		trace = append(trace, addr)
		steps++

		var jumpEvent *symexec.Event
		for _, op := range block.Code.Ops {
			ev := state.Step(block.Addr, op)
			if ev == nil {
				continue
			}
			events = append(events, ev)
			if ev.Kind == symexec.EventExit {
				results <- Path{Trace: trace, Events: events, State: state, Stop: "exit"}
				return
			}
			if ev.Kind == symexec.EventJump {
				jumpEvent = ev
			}
			// Stdio events record themselves but don't divert control
			// flow; the block keeps stepping.
		}

		if jumpEvent == nil {
			addr = block.Next
			continue
		}

		taken, fallsThrough := ex.resolveJump(state, block, jumpEvent)
		switch {
		case taken == nil && fallsThrough == nil:
			results <- Path{Trace: trace, Events: events, State: state, Stop: "unresolved-jump"}
			return
		case taken != nil && fallsThrough == nil:
			addr = taken.addr
		case taken == nil && fallsThrough != nil:
			state, addr = fallsThrough.state, fallsThrough.addr
		default:
			forked.Add(1)
			pending.Add(1)
			tasks <- task{state: taken.state, addr: taken.addr, trace: trace, events: events, steps: steps}
			state, addr = fallsThrough.state, fallsThrough.addr
		}
	}
}

// resolveJump decides what Jump event ev means for block: it asks the
// solver to simplify ev's condition, and returns the branches still
// live. A condition folded to False yields only the fall-through. With
// a concrete target, True yields only the taken branch and a condition
// left ambiguous yields both, with the taken side carrying a
// freshly-cloned state so the two branches don't share mutable memory
// going forward. With a non-concrete target, True yields no live branch
// and an ambiguous condition yields only the fall-through.
func (ex *Explorer) resolveJump(state *symexec.State, block Block, ev *symexec.Event) (taken, fallsThrough *branch) {
	target, hasTarget := concreteTarget(block, ev)
	cond := state.Solver.SimplifyCondition(ev.JumpCondition)

	switch cond.Kind {
	case solver.CondTrue:
		if !hasTarget {
			return nil, nil
		}
		return &branch{state: state, addr: target}, nil
	case solver.CondFalse:
		return nil, &branch{state: state, addr: block.Next}
	default:
		if !hasTarget {
			return nil, &branch{state: state, addr: block.Next}
		}
		return &branch{state: state.Clone(), addr: target}, &branch{state: state, addr: block.Next}
	}
}

// concreteTarget evaluates ev's jump target against block, returning
// false when the target isn't a concrete constant (an indirect jump
// through a symbolic value, out of scope for this demo explorer).
func concreteTarget(block Block, ev *symexec.Event) (uint64, bool) {
	if ev.JumpTarget.Kind != solver.ExprConst {
		return 0, false
	}
	if ev.JumpRelative {
		return block.Next + ev.JumpTarget.Value, true
	}
	return ev.JumpTarget.Value, true
}
