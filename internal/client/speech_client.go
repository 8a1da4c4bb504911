package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prreel/api/internal/config"
)

// SpeechSynthesizer converts narration text to raw audio bytes
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SpeechClient implements SpeechSynthesizer for an ElevenLabs-style
// text-to-speech API with a fixed voice.
type SpeechClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	model      string
	stability  float64
	similarity float64
}

// VoiceSettings are the two tuning parameters sent with every request
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// SpeechRequest is the text-to-speech request body
type SpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// NewSpeechClient creates a new speech synthesis client
func NewSpeechClient(cfg *config.SpeechConfig) *SpeechClient {
	return &SpeechClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		model:      cfg.Model,
		stability:  cfg.Stability,
		similarity: cfg.Similarity,
	}
}

// Synthesize returns MP3 audio for text
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := SpeechRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: VoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Service: "speech", StatusCode: resp.StatusCode, Body: string(audio)}
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("speech API returned no audio")
	}

	return audio, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SpeechClient) IsConfigured() bool {
	return c.apiKey != "" && c.voiceID != ""
}
