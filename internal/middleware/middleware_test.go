package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/ratelimit"
	"github.com/prreel/api/internal/service"
)

func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c) + "|" + GetAPIKeyID(c))
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestAuthenticate(t *testing.T) {
	verifier := auth.NewHMACVerifier("test-secret")
	token, err := verifier.Issue("user-1", "u@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(auth.Chain{verifier}).Authenticate(), whoami)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusOK && body(t, resp) != "user-1|" {
				t.Error("user id not set")
			}
		})
	}
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without headers: %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "gw-user")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != http.StatusOK || body(t, resp) != "gw-user|" {
		t.Errorf("with headers: %d", resp.StatusCode)
	}
}

type stubKeys struct {
	creds map[string]*model.APICredential
	err   error
}

func (s *stubKeys) Validate(_ context.Context, key string) (*model.APICredential, error) {
	if s.err != nil {
		return nil, s.err
	}
	if key == "" {
		return nil, &service.AuthFailure{Reason: service.ReasonMissingKey}
	}
	cred, ok := s.creds[key]
	if !ok {
		return nil, &service.AuthFailure{Reason: service.ReasonUnknownKey}
	}
	if !cred.Active() {
		return nil, &service.AuthFailure{Reason: service.ReasonRevoked}
	}
	return cred, nil
}

func TestAPIKeyAuth(t *testing.T) {
	revoked := time.Now()
	keys := &stubKeys{creds: map[string]*model.APICredential{
		"prr_good": {ID: "key-1", OwnerID: "owner-1"},
		"prr_gone": {ID: "key-2", OwnerID: "owner-1", RevokedAt: &revoked},
	}}

	app := fiber.New()
	app.Get("/v1/me", APIKeyAuth(keys), whoami)

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"valid", "Bearer prr_good", http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, service.ReasonMissingKey},
		{"unknown", "Bearer prr_what", http.StatusUnauthorized, service.ReasonUnknownKey},
		{"revoked", "Bearer prr_gone", http.StatusUnauthorized, service.ReasonRevoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			got := body(t, resp)
			if tt.status == http.StatusOK && got != "owner-1|key-1" {
				t.Errorf("locals = %q", got)
			}
			if tt.reason != "" && !strings.Contains(got, tt.reason) {
				t.Errorf("body %q lacks reason %q", got, tt.reason)
			}
		})
	}
}

func TestAPIKeyAuthStoreError(t *testing.T) {
	app := fiber.New()
	app.Get("/v1/me", APIKeyAuth(&stubKeys{err: errors.New("redis down")}), whoami)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer prr_good")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	rl := NewRateLimiter(limiter)

	app := fiber.New()
	app.Get("/v1/ping", func(c *fiber.Ctx) error {
		c.Locals("apiKeyId", c.Get("X-Key"))
		return c.Next()
	}, rl.PerCredential(), func(c *fiber.Ctx) error { return c.SendString("pong") })

	send := func(key string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
		req.Header.Set("X-Key", key)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp
	}

	first := send("k1")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	if first.Header.Get(HeaderRateLimitLimit) != "2" || first.Header.Get(HeaderRateLimitRemaining) != "1" {
		t.Errorf("headers = %v", first.Header)
	}
	reset, err := strconv.ParseInt(first.Header.Get(HeaderRateLimitReset), 10, 64)
	if err != nil || reset < time.Now().Unix() {
		t.Errorf("reset header = %q", first.Header.Get(HeaderRateLimitReset))
	}

	send("k1")
	third := send("k1")
	if third.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third status = %d", third.StatusCode)
	}
	if third.Header.Get(HeaderRateLimitRemaining) != "0" {
		t.Errorf("remaining = %q", third.Header.Get(HeaderRateLimitRemaining))
	}
	retry, err := strconv.Atoi(third.Header.Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %q", third.Header.Get("Retry-After"))
	}

	if other := send("k2"); other.StatusCode != http.StatusOK {
		t.Errorf("separate credential limited: %d", other.StatusCode)
	}
	if anon := send(""); anon.StatusCode != http.StatusOK || anon.Header.Get(HeaderRateLimitLimit) != "" {
		t.Errorf("request without key should pass unlimited")
	}
}

func TestRateLimitKeyFromRequestHeader(t *testing.T) {
	rl := NewRateLimiter(ratelimit.NewMemoryLimiter(2, time.Minute))

	app := fiber.New()
	app.Get("/ping", rl.Limit(func(c *fiber.Ctx) string { return c.Get("X-Key") }),
		func(c *fiber.Ctx) error { return c.SendString("pong") })

	var codes []int
	for _, key := range []string{"k1", "k1", "k1", "k2"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Key", key)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		codes = append(codes, resp.StatusCode)
	}

	want := []int{200, 200, 429, 200}
	if fmt.Sprint(codes) != fmt.Sprint(want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("connection refused")
}

func TestRateLimitFailsOpen(t *testing.T) {
	app := fiber.New()
	app.Get("/x", NewRateLimiter(brokenLimiter{}).Limit(func(*fiber.Ctx) string { return "k" }),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil), -1)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWebhookSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{"match", "s3cret", "Bearer s3cret", http.StatusOK},
		{"mismatch", "s3cret", "Bearer other", http.StatusUnauthorized},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"unconfigured", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/hook", WebhookSecret(tt.secret), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, _ := app.Test(req, -1)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestLogger())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("request id header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	resp, _ = app.Test(req, -1)
	if resp.Header.Get(HeaderRequestID) != "abc" {
		t.Errorf("incoming request id not kept: %q", resp.Header.Get(HeaderRequestID))
	}
}
