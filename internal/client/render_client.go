package client

import (
	"context"
	"net/http"
	"time"

	"github.com/prreel/api/internal/config"
)

// RenderDispatcher hands a job off to the remote video compositor
type RenderDispatcher interface {
	Dispatch(ctx context.Context, req *RenderRequest) error
}

// RenderFile is the per-file stat line shown in the video
type RenderFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// RenderItem describes one linked change request
type RenderItem struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	FilesChanged int    `json:"filesChanged"`
}

type RenderScreenshot struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
	Source  string `json:"source"`
}

// RenderRequest bundles everything the compositor needs
type RenderRequest struct {
	JobID              string             `json:"jobId"`
	Title              string             `json:"title"`
	RepoOwner          string             `json:"repoOwner"`
	RepoName           string             `json:"repoName"`
	Author             string             `json:"author"`
	AuthorAvatar       string             `json:"authorAvatar,omitempty"`
	ChangeType         string             `json:"changeType"`
	Summary            string             `json:"summary"`
	Script             string             `json:"script"`
	FilesChanged       int                `json:"filesChanged"`
	Additions          int                `json:"additions"`
	Deletions          int                `json:"deletions"`
	Files              []RenderFile       `json:"files"`
	Items              []RenderItem       `json:"items"`
	Screenshots        []RenderScreenshot `json:"screenshots"`
	ScreenRecordingURL string             `json:"screenRecordingUrl,omitempty"`
	AudioURL           string             `json:"audioUrl"`
	AudioDuration      float64            `json:"audioDurationSeconds"`
	CallbackURL        string             `json:"callbackUrl"`
}

// RenderClient implements RenderDispatcher over HTTP
type RenderClient struct {
	httpClient *http.Client
	baseURL    string
	secret     string
}

// NewRenderClient creates a new render dispatch client
func NewRenderClient(cfg *config.RenderConfig) *RenderClient {
	return &RenderClient{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		baseURL:    cfg.ServiceURL,
		secret:     cfg.WebhookSecret,
	}
}

// Dispatch submits a render. Any 2xx is an acknowledgment; the result
// arrives later on the callback URL.
func (c *RenderClient) Dispatch(ctx context.Context, req *RenderRequest) error {
	headers := map[string]string{}
	if c.secret != "" {
		headers["Authorization"] = "Bearer " + c.secret
	}
	return postJSON(ctx, c.httpClient, "render", c.baseURL+"/render", headers, req, nil)
}

// IsConfigured returns true if the client has valid configuration
func (c *RenderClient) IsConfigured() bool {
	return c.baseURL != ""
}
