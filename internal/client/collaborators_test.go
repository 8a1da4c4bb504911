package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prreel/api/internal/config"
	"github.com/prreel/api/internal/model"
)

func TestChatClientCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "doc" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"s\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(&config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	out, err := c.ChatCompletion(context.Background(), "sys", "doc")
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if out != `{"summary":"s"}` {
		t.Errorf("content = %q", out)
	}
}

func TestSpeechClientSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req SpeechRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.VoiceSettings.Stability != 0.5 || req.VoiceSettings.SimilarityBoost != 0.75 {
			t.Errorf("voice settings = %+v", req.VoiceSettings)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xff, 0xfb, 0x90, 0x00})
	}))
	defer srv.Close()

	c := NewSpeechClient(&config.SpeechConfig{
		APIKey: "secret", BaseURL: srv.URL, VoiceID: "voice-1", Stability: 0.5, Similarity: 0.75,
	})
	audio, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio) != 4 {
		t.Errorf("audio length = %d", len(audio))
	}
}

func TestSpeechClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	c := NewSpeechClient(&config.SpeechConfig{APIKey: "x", BaseURL: srv.URL, VoiceID: "v"})
	_, err := c.Synthesize(context.Background(), "hello")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected StatusError 401, got %v", err)
	}
}

func TestCaptureClientFillsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CaptureRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TimeoutMs != 30000 || req.Viewport.Width != 1280 || req.Viewport.Height != 800 {
			t.Errorf("defaults not applied: %+v", req)
		}
		json.NewEncoder(w).Encode(CaptureResponse{Screenshots: []CapturedImage{{Image: "aGk=", Route: "/"}}})
	}))
	defer srv.Close()

	c := NewCaptureClient(&config.CaptureConfig{ServiceURL: srv.URL, Timeout: 30, ViewportWidth: 1280, ViewportHeight: 800})
	resp, err := c.Capture(context.Background(), &CaptureRequest{URL: "https://x.vercel.app", Routes: []string{"/"}})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(resp.Screenshots) != 1 || resp.Screenshots[0].Route != "/" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRenderClientDispatch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "ok", status: http.StatusOK},
		{name: "rejected", status: http.StatusServiceUnavailable, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer shh" {
					t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
				}
				var req RenderRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.CallbackURL == "" {
					t.Error("callback url missing")
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewRenderClient(&config.RenderConfig{ServiceURL: srv.URL, WebhookSecret: "shh", Timeout: 5})
			err := c.Dispatch(context.Background(), &RenderRequest{JobID: "j", CallbackURL: "http://api/webhooks/render"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Dispatch err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookClientSend(t *testing.T) {
	var got model.ResultWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookClient().Send(context.Background(), srv.URL, &model.ResultWebhookPayload{
		VideoID: "job-1", Status: model.JobStatusComplete, ShareURL: "http://x/s/abc",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.VideoID != "job-1" || got.Status != model.JobStatusComplete {
		t.Errorf("payload = %+v", got)
	}
}
