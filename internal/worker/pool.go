// Package worker provides a small supervised worker pool, generalized
// from the teacher's internal/worker.go WorkerPool: a fixed number of
// tomb.v2-supervised goroutines pull closures off a shared task channel
// until the tomb is told to die.
package worker

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

// Task is one unit of off-hot-path work. A non-nil error is logged and
// swallowed; it does not stop the worker or the pool.
type Task func() error

// Pool runs up to n workers pulling Tasks from a buffered channel.
type Pool struct {
	n     int
	tasks chan Task
	t     tomb.Tomb
	log   zerolog.Logger
}

// New builds a pool with n workers and the given task queue capacity.
func New(n, queueCapacity int, log zerolog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 100
	}
	return &Pool{n: n, tasks: make(chan Task, queueCapacity), log: log}
}

// Start spawns the pool's workers.
func (p *Pool) Start() {
	for i := 0; i < p.n; i++ {
		p.t.Go(p.worker)
	}
}

// Submit enqueues task for a worker to run. It blocks only if every
// worker is busy and the queue is full — callers on the hot path should
// size the pool and queue so that doesn't happen in practice.
func (p *Pool) Submit(task Task) {
	select {
	case p.tasks <- task:
	case <-p.t.Dying():
	}
}

// Stop closes the task queue, lets queued work finish, and waits for
// every worker to exit.
func (p *Pool) Stop() error {
	close(p.tasks)
	return p.t.Wait()
}

func (p *Pool) worker() error {
	for {
		select {
		case <-p.t.Dying():
			return nil
		case task, ok := <-p.tasks:
			if !ok {
				return nil
			}
			if err := task(); err != nil {
				p.log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
