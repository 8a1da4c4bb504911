package client

import (
	"context"
	"net/http"
	"time"

	"github.com/prreel/api/internal/config"
)

// PageCapturer is the headless-capture collaborator
type PageCapturer interface {
	Capture(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error)
}

// Viewport is the browser window size used for captures
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptureRequest asks for screenshots of routes under URL
type CaptureRequest struct {
	URL       string   `json:"url"`
	Routes    []string `json:"routes"`
	TimeoutMs int      `json:"timeout"`
	Viewport  Viewport `json:"viewport"`
}

// CapturedImage is one base64-encoded screenshot
type CapturedImage struct {
	Image string `json:"image"`
	Route string `json:"route"`
}

type CaptureResponse struct {
	Screenshots []CapturedImage `json:"screenshots"`
}

// CaptureClient implements PageCapturer over HTTP
type CaptureClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	viewport   Viewport
}

// NewCaptureClient creates a new headless capture client
func NewCaptureClient(cfg *config.CaptureConfig) *CaptureClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	return &CaptureClient{
		// the browser gets the configured timeout; leave headroom for the round trip
		httpClient: &http.Client{Timeout: timeout + 15*time.Second},
		baseURL:    cfg.ServiceURL,
		timeout:    timeout,
		viewport:   Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
	}
}

// Capture requests screenshots. Zero values in req are filled from config.
func (c *CaptureClient) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResponse, error) {
	if req.TimeoutMs == 0 {
		req.TimeoutMs = int(c.timeout / time.Millisecond)
	}
	if req.Viewport.Width == 0 || req.Viewport.Height == 0 {
		req.Viewport = c.viewport
	}

	var result CaptureResponse
	if err := postJSON(ctx, c.httpClient, "capture", c.baseURL+"/capture", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *CaptureClient) IsConfigured() bool {
	return c.baseURL != ""
}
