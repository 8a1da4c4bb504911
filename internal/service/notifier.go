package service

import (
	"context"
	"time"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
)

// JobNotifier receives live job events (the websocket hub)
type JobNotifier interface {
	JobProgress(job *model.Job)
	JobComplete(job *model.Job)
	JobFailed(job *model.Job)
}

const webhookTimeout = 15 * time.Second

// Notifications publishes job events to websocket subscribers and, on
// terminal states, to the caller-supplied result webhook.
type Notifications struct {
	hub       JobNotifier
	webhooks  client.WebhookSender
	publicURL string
}

// NewNotifications accepts nil hub or webhooks; the matching channel is skipped.
func NewNotifications(hub JobNotifier, webhooks client.WebhookSender, publicURL string) *Notifications {
	return &Notifications{hub: hub, webhooks: webhooks, publicURL: publicURL}
}

func (n *Notifications) Progress(job *model.Job) {
	if n != nil && n.hub != nil {
		n.hub.JobProgress(job)
	}
}

// Terminal announces a complete or failed job. The webhook is sent in the
// background and its failure only logged.
func (n *Notifications) Terminal(job *model.Job) {
	if n == nil {
		return
	}
	if n.hub != nil {
		n.hub.JobProgress(job)
		if job.Status == model.JobStatusComplete {
			n.hub.JobComplete(job)
		} else {
			n.hub.JobFailed(job)
		}
	}

	if n.webhooks == nil || job.WebhookURL == "" {
		return
	}

	payload := &model.ResultWebhookPayload{
		VideoID:  job.ID,
		Status:   job.Status,
		ShareURL: ShareURL(n.publicURL, job.ShareID),
		VideoURL: job.VideoURL,
		Error:    job.ErrorMessage,
	}
	url := job.WebhookURL
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := n.webhooks.Send(ctx, url, payload); err != nil {
			logger.Job(payload.VideoID).WithError(err).Warn("result webhook delivery failed")
		}
	}()
}

// ShareURL is the public link for a share id
func ShareURL(publicURL, shareID string) string {
	return publicURL + "/share/" + shareID
}

// StatusURL is the public API status link for a job
func StatusURL(publicURL, jobID string) string {
	return publicURL + "/v1/videos/" + jobID
}
