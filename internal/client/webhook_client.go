package client

import (
	"context"
	"net/http"
	"time"

	"github.com/prreel/api/internal/model"
)

// WebhookSender delivers terminal job results to caller-supplied URLs
type WebhookSender interface {
	Send(ctx context.Context, url string, payload *model.ResultWebhookPayload) error
}

type WebhookClient struct {
	httpClient *http.Client
}

func NewWebhookClient() *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookClient) Send(ctx context.Context, url string, payload *model.ResultWebhookPayload) error {
	headers := map[string]string{"User-Agent": "prreel-webhook/1.0"}
	return postJSON(ctx, c.httpClient, "webhook", url, headers, payload, nil)
}
