package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/event-messaging/internal/cache"
	"github.com/LeventeLantos/event-messaging/internal/client"
	"github.com/LeventeLantos/event-messaging/internal/model"
	"github.com/LeventeLantos/event-messaging/internal/repo"
)

const maxErrorCode = 120

type DispatchResult struct {
	MessageID string `json:"messageId"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	// Held counts targets another dispatch was still sending.
	Held    int  `json:"held"`
	Skipped bool `json:"skipped"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeHeld
)

type DispatcherConfig struct {
	BaseURL     string
	Concurrency int
	ClaimTTL    time.Duration
	Now         func() time.Time
}

// Dispatcher sends one message to each of its pending targets.
type Dispatcher struct {
	repo   repo.MessageRepository
	client client.Sender
	sent   cache.SentCache

	baseURL     string
	concurrency int
	claimTTL    time.Duration
	now         func() time.Time
}

func NewDispatcher(r repo.MessageRepository, c client.Sender, sent cache.SentCache, cfg DispatcherConfig) *Dispatcher {
	if sent == nil {
		sent = cache.Nop{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		repo:        r,
		client:      c,
		sent:        sent,
		baseURL:     cfg.BaseURL,
		concurrency: cfg.Concurrency,
		claimTTL:    cfg.ClaimTTL,
		now:         cfg.Now,
	}
}

// Dispatch claims the message and attempts every target that has no recorded
// result. Each target is claimed on its own before the provider is called, so
// two dispatches that overlap after a stale message claim never send the same
// target. The message is marked processed only once every target is terminal;
// otherwise it keeps its claim and a later dispatch finishes it.
func (d *Dispatcher) Dispatch(ctx context.Context, messageID string) (*DispatchResult, error) {
	res := &DispatchResult{MessageID: messageID}

	now := d.now()
	ok, err := d.repo.ClaimMessage(ctx, messageID, now, now.Add(-d.claimTTL))
	if err != nil {
		return nil, fmt.Errorf("claim message %s: %w", messageID, err)
	}
	if !ok {
		res.Skipped = true
		return res, nil
	}

	msg, err := d.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	imageURL := ResolveImageURL(d.baseURL, msg.ImageURL)

	var sent, failed, held atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, t := range msg.Targets {
		if t.Status.Terminal() {
			continue
		}
		g.Go(func() error {
			out, err := d.sendTarget(ctx, t, msg.BodyText, imageURL)
			if err != nil {
				return err
			}
			switch out {
			case outcomeSent:
				sent.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeHeld:
				held.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	res.Sent = int(sent.Load())
	res.Failed = int(failed.Load())
	res.Held = int(held.Load())
	if err != nil {
		return res, err
	}

	if res.Held > 0 {
		done, err := d.allTerminal(ctx, messageID)
		if err != nil {
			return res, err
		}
		if !done {
			slog.Info("message left claimed, targets still sending elsewhere",
				"message_id", messageID,
				"held", res.Held,
			)
			return res, nil
		}
	}

	if err := d.repo.MarkProcessed(ctx, messageID, d.now().UTC()); err != nil {
		return res, fmt.Errorf("mark message %s processed: %w", messageID, err)
	}

	slog.Info("message dispatched",
		"message_id", messageID,
		"sent", res.Sent,
		"failed", res.Failed,
	)
	return res, nil
}

func (d *Dispatcher) allTerminal(ctx context.Context, messageID string) (bool, error) {
	msg, err := d.repo.GetMessage(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("reload message %s: %w", messageID, err)
	}
	for _, t := range msg.Targets {
		if !t.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

// sendTarget claims the target and sends it. A target still being sent by a
// live dispatch is held. A stale sending claim is never resent: it is marked
// sent from the sent-cache or recorded as interrupted. Provider failures are
// recorded on the target; only store errors are returned.
func (d *Dispatcher) sendTarget(ctx context.Context, t model.Target, body, imageURL string) (outcome, error) {
	now := d.now()
	won, err := d.repo.ClaimTarget(ctx, t.ID, now)
	if err != nil {
		return outcomeFailed, fmt.Errorf("claim target %s: %w", t.ID, err)
	}
	recovering := false
	if !won {
		won, err = d.repo.ReclaimTarget(ctx, t.ID, now, now.Add(-d.claimTTL))
		if err != nil {
			return outcomeFailed, fmt.Errorf("reclaim target %s: %w", t.ID, err)
		}
		if !won {
			return outcomeHeld, nil
		}
		recovering = true
	}

	providerID, sentAt, found, err := d.sent.LookupSent(ctx, t.ID)
	if err != nil {
		slog.Warn("sent cache lookup failed", "target_id", t.ID, "err", err)
	}
	if found {
		if err := d.repo.MarkTargetSent(ctx, t.ID, providerID, sentAt); err != nil {
			return outcomeFailed, fmt.Errorf("mark target %s sent: %w", t.ID, err)
		}
		return outcomeSent, nil
	}

	if recovering {
		slog.Warn("send interrupted, not resending", "target_id", t.ID, "phone", t.Phone)
		if err := d.repo.MarkTargetFailed(ctx, t.ID, model.ErrorCodeInterrupted); err != nil {
			return outcomeFailed, fmt.Errorf("mark target %s interrupted: %w", t.ID, err)
		}
		return outcomeFailed, nil
	}

	providerID, err = d.client.Send(ctx, t.Phone, body, imageURL)
	if err != nil {
		code := errorCode(err)
		slog.Warn("send failed", "target_id", t.ID, "phone", t.Phone, "err", code)
		if err := d.repo.MarkTargetFailed(ctx, t.ID, code); err != nil {
			return outcomeFailed, fmt.Errorf("mark target %s failed: %w", t.ID, err)
		}
		return outcomeFailed, nil
	}

	sentAt = d.now().UTC()
	if err := d.sent.StoreSent(ctx, t.ID, providerID, sentAt); err != nil {
		slog.Warn("sent cache write failed", "target_id", t.ID, "err", err)
	}
	if err := d.repo.MarkTargetSent(ctx, t.ID, providerID, sentAt); err != nil {
		return outcomeFailed, fmt.Errorf("mark target %s sent: %w", t.ID, err)
	}
	return outcomeSent, nil
}

// errorCode prefers the provider's response body over the wrapped error text.
func errorCode(err error) string {
	msg := err.Error()
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Body != "" {
		msg = apiErr.Body
	}
	return truncateRunes(msg, maxErrorCode)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
