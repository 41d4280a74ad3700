package graph

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrUnsolvable is returned when the runner cannot make progress because
	// of a dependency cycle.
	ErrUnsolvable = errors.New("graph: unsolvable graph")
)

type done struct {
	id  int
	err error
}

type work struct {
	id   int
	ctx  context.Context
	done chan done
}

// ProcessFunc handles a single node.
type ProcessFunc func(ctx context.Context, id int) error

// Runner executes Process over a set of nodes with bounded concurrency,
// starting a node only once all of its dependencies have completed. Nodes
// with no edges between them run in parallel. The first error cancels all
// remaining work.
type Runner struct {
	Concurrency int
	Nodes       map[int][]int
	Process     ProcessFunc
	Logger      zerolog.Logger

	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  map[int]bool
	completed map[int]bool
	work      chan work
	err       error
	done      chan done
}

func (r *Runner) init() {
	r.completed = map[int]bool{}
	r.inFlight = map[int]bool{}
	r.work = make(chan work, r.Concurrency)
	r.done = make(chan done)
	r.wg = &sync.WaitGroup{}
	r.ctx, r.cancel = context.WithCancel(context.Background())
}

// Solve runs every node to completion and returns the first error, or
// ErrUnsolvable if a cycle prevents progress.
func (r *Runner) Solve(ctx context.Context) error {
	r.init()

	r.wg.Add(r.Concurrency)
	for i := 0; i < r.Concurrency; i++ {
		go r.worker(i)
	}
	err := r.pump(ctx)
	r.wg.Wait()
	close(r.done)
	return err
}

// Worker processes individual items from the work queue.
func (r *Runner) worker(i int) {
	r.Logger.Debug().Int("worker", i).Msg("starting")
	defer r.Logger.Debug().Int("worker", i).Msg("stopping")
	defer r.wg.Done()

	for work := range r.work {
		r.Logger.Debug().Int("worker", i).Int("work", work.id).Msg("starting work")
		err := r.Process(work.ctx, work.id)
		work.done <- done{id: work.id, err: err}
		r.Logger.Debug().Int("worker", i).Int("work", work.id).Msg("finished work")
	}
}

// Reads from the done channel and pumps work into the work channel. This
// function sets state on the runner.
func (r *Runner) pump(ctx context.Context) error {
	r.Logger.Debug().Msg("pump: starting")
	defer close(r.work)

	// Prime the initial channel with work to be done. Block when sending work
	// here as we need to get something into the initial channels or else we'll
	// hit deadlock.
	if len(r.Nodes) > 0 && !r.sendWork(true) {
		return ErrUnsolvable
	}

	// Wait for a worker to be freed to send more work down the work channel.
	// If jobs are still in flight, we continue to read from the done channel.
	for !r.finished() || r.working() {
		select {
		case done := <-r.done:
			r.Logger.Debug().Int("work", done.id).Msg("pump: work done")
			r.complete(done.id)

			// If there's an error, mark this globally.
			if done.err != nil {
				r.Logger.Debug().Err(done.err).Msg("pump: receive error")
				r.errored(done.err)
			}

			if !r.finished() {
				sent := r.sendWork(false)
				// Unsolvable case: no in flight processing and no new work
				// sent to the queue. A circular dependency must exist.
				if !sent && !r.working() {
					return ErrUnsolvable
				}
			}
		case <-ctx.Done():
			r.Logger.Debug().Msg("pump: context cancelled - waiting for workers to exit")
			r.errored(ctx.Err())
		}
	}

	r.Logger.Debug().Msg("pump: finished")
	return r.err
}

// Errored sets the error on the runner and cancels all work.
func (r *Runner) errored(err error) {
	if r.err == nil {
		r.err = err
	}
	r.cancel()
}

func (r *Runner) working() bool {
	return len(r.inFlight) > 0
}

func (r *Runner) finished() bool {
	return r.err != nil || len(r.completed) >= len(r.Nodes)
}

// Complete a piece of work, marking it done and not in flight.
func (r *Runner) complete(id int) {
	r.completed[id] = true
	delete(r.inFlight, id)
}

// SendWork pushes work into the work channel. If block is set to true it will
// block and push all ready work into the channel. If block is false it returns
// as soon as the channel blocks.
func (r *Runner) sendWork(block bool) (sent bool) {
	for id := range r.Nodes {
		if r.ready(id) {
			if block {
				r.work <- work{id: id, ctx: r.ctx, done: r.done}
			} else {
				select {
				case r.work <- work{id: id, ctx: r.ctx, done: r.done}:
				default:
					return
				}
			}

			r.inFlight[id] = true
			r.Logger.Debug().Int("work", id).Msg("pump: send work")
			sent = true
		}
	}
	return
}

// Ready returns whether work can be started on.
func (r *Runner) ready(id int) bool {
	if r.inFlight[id] {
		return false
	}
	if r.completed[id] {
		return false
	}
	for _, dep := range r.Nodes[id] {
		if !r.completed[dep] {
			return false
		}
	}
	return true // All dependencies are completed.
}
