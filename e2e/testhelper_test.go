package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/config"
	"github.com/prreel/api/internal/handler"
	"github.com/prreel/api/internal/middleware"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/ratelimit"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/internal/store"
	"github.com/prreel/api/internal/worker"
)

const (
	testJWTSecret     = "test-secret-for-e2e"
	testWebhookSecret = "render-callback-secret"
	testPublicURL     = "http://prreel.test"
)

// collaborators fakes every external service over HTTP so the real
// clients are exercised end to end.
type collaborators struct {
	github *httptest.Server
	llm    *httptest.Server
	speech *httptest.Server
	render *httptest.Server
	result *httptest.Server

	mu       sync.Mutex
	renders  []client.RenderRequest
	results  []model.ResultWebhookPayload
	llmReply string
}

func (c *collaborators) renderRequests() []client.RenderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]client.RenderRequest(nil), c.renders...)
}

func (c *collaborators) resultPayloads() []model.ResultWebhookPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ResultWebhookPayload(nil), c.results...)
}

func newCollaborators(t *testing.T) *collaborators {
	t.Helper()
	c := &collaborators{
		llmReply: `{"summary":"Search is faster now.","script":"Today we made search fly.","changeType":"feature"}`,
	}

	gh := http.NewServeMux()
	gh.HandleFunc("/repos/acme/web/pulls/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/repos/acme/web/pulls/")
		switch {
		case strings.HasSuffix(rest, "/files"):
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"filename": "search.go", "status": "modified", "additions": 20, "deletions": 4, "patch": "@@ -1 +1 @@\n-old\n+new"},
			})
		case strings.HasSuffix(rest, "/commits"):
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"sha": "abc123", "commit": map[string]interface{}{"message": "speed up search"}},
			})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"title":         "Faster search #" + rest,
				"body":          "Uses an index",
				"user":          map[string]string{"login": "octo", "avatar_url": "https://avatars.test/octo"},
				"changed_files": 1,
				"additions":     20,
				"deletions":     4,
			})
		}
	})
	gh.HandleFunc("/repos/acme/web/issues/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 501, "body": "Before/after ![after](https://user-images.githubusercontent.com/1/after.png)", "user": map[string]string{"login": "octo"}},
		})
	})
	c.github = httptest.NewServer(gh)

	c.llm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		reply := c.llmReply
		c.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))

	c.speech = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(make([]byte, 32000))
	}))

	c.render = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testWebhookSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req client.RenderRequest
		json.NewDecoder(r.Body).Decode(&req)
		c.mu.Lock()
		c.renders = append(c.renders, req)
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))

	c.result = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p model.ResultWebhookPayload
		json.NewDecoder(r.Body).Decode(&p)
		c.mu.Lock()
		c.results = append(c.results, p)
		c.mu.Unlock()
	}))

	t.Cleanup(func() {
		c.github.Close()
		c.llm.Close()
		c.speech.Close()
		c.render.Close()
		c.result.Close()
	})
	return c
}

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	jobs    *store.JobStore
	keys    *service.APIKeyService
	session *auth.HMACVerifier
	fakes   *collaborators
}

// setupApp creates a Fiber app wired like main.go, with miniredis, the local
// worker pool and HTTP fakes for every collaborator.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	fakes := newCollaborators(t)
	validate := validator.New()

	githubClient, err := client.NewGitHubClient(&config.GitHubConfig{Token: "gh", BaseURL: fakes.github.URL})
	if err != nil {
		t.Fatalf("NewGitHubClient: %v", err)
	}
	chatClient := client.NewChatClient(&config.LLMConfig{APIKey: "llm", BaseURL: fakes.llm.URL, Model: "test"})
	speechClient := client.NewSpeechClient(&config.SpeechConfig{APIKey: "tts", BaseURL: fakes.speech.URL, VoiceID: "v1"})
	renderClient := client.NewRenderClient(&config.RenderConfig{ServiceURL: fakes.render.URL, WebhookSecret: testWebhookSecret, Timeout: 5})

	storage, err := client.NewFileStore(t.TempDir(), testPublicURL+"/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	jobStore := store.NewJobStore(redisClient)
	notifications := service.NewNotifications(nil, client.NewWebhookClient(), testPublicURL)

	pipeline := worker.NewPipelineWorker(worker.PipelineDeps{
		Jobs:        jobStore,
		Metadata:    service.NewMetadataService(githubClient),
		Screenshots: service.NewScreenshotService(nil, storage),
		Narrative:   service.NewNarrativeService(chatClient),
		Voice:       service.NewVoiceService(speechClient),
		Storage:     storage,
		Renderer:    renderClient,
		Notify:      notifications,
		PublicURL:   testPublicURL,
	})
	pool := worker.NewLocalPool(2, 10, pipeline.Run)
	pool.Start()
	t.Cleanup(pool.Stop)

	jobService := service.NewJobService(jobStore, pool, storage, notifications, testPublicURL,
		config.RecordingConfig{MaxBytes: 10 << 20, MaxDurationMs: 300000})
	apiKeyService := service.NewAPIKeyService(store.NewCredentialStore(redisClient), "e2e-salt", 10)

	session := auth.NewHMACVerifier(testJWTSecret)
	verifiers := auth.Chain{session}

	videoHandler := handler.NewVideoHandler(jobService, validate)
	publicHandler := handler.NewPublicHandler(jobService, validate)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, validate)
	rateLimiter := middleware.NewRateLimiter(ratelimit.NewMemoryLimiter(10, time.Minute))

	app := fiber.New()
	app.Use(middleware.RequestLogger())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", handler.Health(handler.Collaborators{
		GitHub:  githubClient.IsConfigured(),
		LLM:     chatClient.IsConfigured(),
		Speech:  speechClient.IsConfigured(),
		Render:  renderClient.IsConfigured(),
		Storage: "local",
		Auth:    true,
	}))
	app.Get("/auth/verify", handler.NewAuthHandler(verifiers).Verify)
	app.Get("/share/:shareId", handler.NewShareHandler(jobService).View)
	app.Post("/webhooks/render", middleware.WebhookSecret(testWebhookSecret), handler.NewWebhookHandler(jobService, validate).Render)

	api := app.Group("/api", middleware.NewAuthMiddleware(verifiers).Authenticate())
	api.Post("/videos", videoHandler.Create)
	api.Get("/videos/:id", videoHandler.Get)
	api.Post("/videos/:id/retry", videoHandler.Retry)
	api.Get("/keys", apiKeyHandler.List)
	api.Post("/keys", apiKeyHandler.Create)
	api.Delete("/keys/:id", apiKeyHandler.Revoke)

	v1 := app.Group("/v1", middleware.APIKeyAuth(apiKeyService), rateLimiter.PerCredential())
	v1.Post("/videos", publicHandler.Create)
	v1.Get("/videos/:id", publicHandler.Status)

	return &testApp{
		app:     app,
		jobs:    jobStore,
		keys:    apiKeyService,
		session: session,
		fakes:   fakes,
	}
}

// generateToken issues a session token for test requests.
func (ta *testApp) generateToken(t *testing.T) string {
	t.Helper()
	token, err := ta.session.Issue("test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// waitForStatus polls the store until the job reaches want or the deadline passes.
func (ta *testApp) waitForStatus(t *testing.T, jobID string, want model.JobStatus) *model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var job *model.Job
	for time.Now().Before(deadline) {
		var err error
		job, err = ta.jobs.Get(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job != nil {
		t.Fatalf("job %s stuck in %s (error %v), want %s", jobID, job.Status, job.ErrorMessage, want)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request with an owner session token.
func (ta *testApp) doAuthRequest(t *testing.T, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + ta.generateToken(t),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
