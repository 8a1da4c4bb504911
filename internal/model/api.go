package model

import "time"

// CreateVideoRequest is the owner-facing job submission body
type CreateVideoRequest struct {
	PRURLs     []string `json:"prUrls" validate:"required,min=1,max=10,dive,required"`
	WebhookURL string   `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// CreateVideoResponse is returned with 202 Accepted
type CreateVideoResponse struct {
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	ShareID  string    `json:"shareId"`
	ShareURL string    `json:"shareUrl"`
}

// PublicCreateVideoRequest is the API-key gated ingestion body
type PublicCreateVideoRequest struct {
	PRURLs     []string `json:"pr_urls" validate:"required,min=1,max=10,dive,required"`
	WebhookURL string   `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

type PublicCreateVideoResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	ShareURL  string    `json:"share_url"`
	StatusURL string    `json:"status_url"`
}

// PublicStatusResponse is the status view for API clients
type PublicStatusResponse struct {
	JobID        string     `json:"job_id"`
	Status       JobStatus  `json:"status"`
	Title        string     `json:"title,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	ChangeType   ChangeType `json:"change_type,omitempty"`
	ShareURL     string     `json:"share_url"`
	VideoURL     string     `json:"video_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RenderWebhookPayload is posted by the render collaborator on completion.
// A non-empty Error marks the job failed.
type RenderWebhookPayload struct {
	JobID           string   `json:"jobId" validate:"required"`
	VideoURL        *string  `json:"videoUrl,omitempty"`
	ThumbnailURL    *string  `json:"thumbnailUrl,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
	Error           *string  `json:"error,omitempty"`
}

// ResultWebhookPayload is sent to the caller-supplied webhook on terminal state
type ResultWebhookPayload struct {
	VideoID  string    `json:"video_id"`
	Status   JobStatus `json:"status"`
	ShareURL string    `json:"share_url"`
	VideoURL string    `json:"video_url,omitempty"`
	Error    *string   `json:"error,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"max=64"`
}

// CreateAPIKeyResponse carries the plaintext key; it is never returned again.
type CreateAPIKeyResponse struct {
	APIKeyView
	Key string `json:"key"`
}

// ShareView is the public data behind a share link. Media fields are only
// filled once the job is complete.
type ShareView struct {
	ShareID         string       `json:"shareId"`
	Status          JobStatus    `json:"status"`
	Title           string       `json:"title"`
	Summary         string       `json:"summary"`
	ChangeType      ChangeType   `json:"changeType"`
	RepoOwner       string       `json:"repoOwner"`
	RepoName        string       `json:"repoName"`
	PRCount         int          `json:"prCount"`
	TotalAdditions  int          `json:"totalAdditions"`
	TotalDeletions  int          `json:"totalDeletions"`
	VideoURL        string       `json:"videoUrl"`
	ThumbnailURL    string       `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64      `json:"durationSeconds,omitempty"`
	Screenshots     []Screenshot `json:"screenshots,omitempty"`
	ViewCount       int64        `json:"viewCount"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty"`
}
