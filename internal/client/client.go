package client

import (
	"context"
	"fmt"
)

// Sender delivers one message to one phone number and returns the provider's
// message id. imageURL, when non-empty, must be publicly reachable; text then
// becomes the image caption.
type Sender interface {
	Send(ctx context.Context, to, text, imageURL string) (providerMessageID string, err error)
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%q", e.StatusCode, e.Body)
}
