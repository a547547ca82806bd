// Package worker hands message ids from the API and the scheduler to the
// dispatcher. The queue is bounded; a full queue is reported to the caller
// instead of blocking it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

type Handler func(ctx context.Context, id string) error

type Pool struct {
	workers int
	handler Handler
	queue   chan string

	running atomic.Bool

	mu       sync.Mutex
	stopped  bool
	inflight map[string]struct{}
	pending  int
	idle     *sync.Cond

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(workers, queueSize int, handler Handler) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, errors.New("queueSize must be > 0")
	}
	if handler == nil {
		return nil, errors.New("handler must not be nil")
	}
	p := &Pool{
		workers:  workers,
		handler:  handler,
		queue:    make(chan string, queueSize),
		inflight: map[string]struct{}{},
	}
	p.idle = sync.NewCond(&p.mu)
	return p, nil
}

func (p *Pool) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.stopped = false
	p.running.Store(true)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}

	slog.Info("dispatch workers started", "workers", p.workers, "queue", cap(p.queue))
	return true
}

// Stop waits for running handlers to return and drops queued ids. Dropped
// messages stay pending in the store for the scheduler to pick up again.
func (p *Pool) Stop() bool {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return false
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	dropped := 0
	for {
		select {
		case id := <-p.queue:
			p.finishLocked(id)
			dropped++
			continue
		default:
		}
		break
	}
	p.running.Store(false)
	p.mu.Unlock()

	slog.Info("dispatch workers stopped", "dropped", dropped)
	return true
}

func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// TryEnqueue queues id without blocking. An id that is already queued or being
// handled counts as accepted. It returns false when the queue is full or the
// pool is stopped.
func (p *Pool) TryEnqueue(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	if _, ok := p.inflight[id]; ok {
		return true
	}

	select {
	case p.queue <- id:
		p.inflight[id] = struct{}{}
		p.pending++
		return true
	default:
		return false
	}
}

// Queued returns the ids accepted but not yet finished, whether waiting in
// the queue or being handled.
func (p *Pool) Queued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.inflight))
	for id := range p.inflight {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every accepted id has been handled or dropped.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.pending > 0 {
		p.idle.Wait()
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			if ctx.Err() != nil {
				p.mu.Lock()
				p.finishLocked(id)
				p.mu.Unlock()
				return
			}
			p.handle(id)
		}
	}
}

// handle runs outside the pool's lifecycle context: a send cut short by Stop
// would otherwise be recorded as a provider failure.
func (p *Pool) handle(id string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch worker panic recovered", "message_id", id, "panic", r)
		}
		p.mu.Lock()
		p.finishLocked(id)
		p.mu.Unlock()
	}()

	if err := p.handler(context.Background(), id); err != nil {
		slog.Error("dispatch failed", "message_id", id, "err", err)
	}
}

func (p *Pool) finishLocked(id string) {
	delete(p.inflight, id)
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
}
