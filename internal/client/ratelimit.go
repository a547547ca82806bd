package client

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited spaces out calls to the wrapped Sender. A wait that outlives
// ctx is reported as the send's error.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimited(next Sender, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) Send(ctx context.Context, to, text, imageURL string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Send(ctx, to, text, imageURL)
}
