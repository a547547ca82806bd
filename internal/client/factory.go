package client

import (
	"log/slog"
	"time"
)

type Options struct {
	APIBase       string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
	RatePerSecond float64
}

func (o Options) configured() bool {
	return o.PhoneNumberID != "" && o.AccessToken != ""
}

// New returns the Cloud API client, or the simulated one when credentials are
// missing, wrapped in a rate limiter unless RatePerSecond is 0.
func New(o Options) Sender {
	var s Sender
	if o.configured() {
		s = NewCloudClient(o.APIBase, o.PhoneNumberID, o.AccessToken, o.Timeout)
	} else {
		slog.Warn("provider credentials not configured, sends are simulated")
		s = NewSimulatedClient()
	}

	if o.RatePerSecond > 0 {
		s = NewRateLimited(s, o.RatePerSecond, int(o.RatePerSecond))
	}
	return s
}
