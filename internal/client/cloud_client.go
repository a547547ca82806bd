package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4096

// CloudClient talks to the WhatsApp Cloud API messages endpoint.
type CloudClient struct {
	endpoint    string
	accessToken string
	client      *http.Client
}

func NewCloudClient(apiBase, phoneNumberID, accessToken string, timeout time.Duration) *CloudClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CloudClient{
		endpoint:    strings.TrimRight(apiBase, "/") + "/" + phoneNumberID + "/messages",
		accessToken: accessToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type textBody struct {
	Body string `json:"body"`
}

type imageBody struct {
	Link    string `json:"link"`
	Caption string `json:"caption"`
}

type sendRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             *textBody  `json:"text,omitempty"`
	Image            *imageBody `json:"image,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func newSendRequest(to, text, imageURL string) sendRequest {
	req := sendRequest{MessagingProduct: "whatsapp", To: to}
	if imageURL != "" {
		req.Type = "image"
		req.Image = &imageBody{Link: imageURL, Caption: text}
	} else {
		req.Type = "text"
		req.Text = &textBody{Body: text}
	}
	return req
}

func (c *CloudClient) Send(ctx context.Context, to, text, imageURL string) (string, error) {
	reqBody, err := json.Marshal(newSendRequest(to, text, imageURL))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		return "", fmt.Errorf("missing message id in response body=%q", string(body))
	}

	return sr.Messages[0].ID, nil
}
