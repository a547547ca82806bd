package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SimulatedClient stands in for the provider when no credentials are
// configured. It logs the send and fabricates a provider id.
type SimulatedClient struct {
	now func() time.Time
}

func NewSimulatedClient() *SimulatedClient {
	return &SimulatedClient{now: time.Now}
}

func (c *SimulatedClient) Send(ctx context.Context, to, text, imageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("sim_%d_%s", c.now().UnixMilli(), uuid.NewString()[:8])
	slog.Info("simulated send",
		"to", to,
		"text", truncate(text, 120),
		"image", imageURL,
		"provider_message_id", id,
	)
	return id, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
