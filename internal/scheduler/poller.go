package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type DueLister interface {
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]string, error)
}

type Enqueuer interface {
	TryEnqueue(id string) bool
	// Queued lists ids already handed off and not yet finished.
	Queued() []string
}

type PollerConfig struct {
	BatchSize int
	ClaimTTL  time.Duration
	Now       func() time.Time
}

// Poller finds due messages and hands them to the dispatch queue. It never
// waits for a dispatch to finish.
type Poller struct {
	repo  DueLister
	queue Enqueuer

	batchSize int
	claimTTL  time.Duration
	now       func() time.Time
}

func NewPoller(r DueLister, q Enqueuer, cfg PollerConfig) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		repo:      r,
		queue:     q,
		batchSize: cfg.BatchSize,
		claimTTL:  cfg.ClaimTTL,
		now:       cfg.Now,
	}
}

// Tick enqueues up to one batch of due messages and returns how many were
// accepted. Ids the queue already holds do not count against the batch.
// Messages left over because the queue filled up are found again on the next
// tick.
func (p *Poller) Tick(ctx context.Context) int {
	now := p.now()

	queued := p.queue.Queued()
	skip := make(map[string]struct{}, len(queued))
	for _, id := range queued {
		skip[id] = struct{}{}
	}

	ids, err := p.repo.ListDue(ctx, now, now.Add(-p.claimTTL), p.batchSize+len(skip))
	if err != nil {
		slog.Error("list due messages", "err", err)
		return 0
	}

	enqueued := 0
	for _, id := range ids {
		if enqueued == p.batchSize {
			break
		}
		if _, ok := skip[id]; ok {
			continue
		}
		if !p.queue.TryEnqueue(id) {
			slog.Warn("dispatch queue full, deferring to next tick",
				"message_id", id,
				"enqueued", enqueued,
			)
			break
		}
		enqueued++
	}
	return enqueued
}
