package cache

import (
	"context"
	"time"
)

// SentCache records which provider message id a target was sent under, so a
// recovered dispatch can persist an earlier send instead of repeating it.
type SentCache interface {
	StoreSent(ctx context.Context, targetID, providerMessageID string, sentAt time.Time) error
	LookupSent(ctx context.Context, targetID string) (providerMessageID string, sentAt time.Time, ok bool, err error)
}

// Nop is used when no Redis address is configured.
type Nop struct{}

func (Nop) StoreSent(context.Context, string, string, time.Time) error { return nil }

func (Nop) LookupSent(context.Context, string) (string, time.Time, bool, error) {
	return "", time.Time{}, false, nil
}
