package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/config"
	"github.com/prreel/api/internal/handler"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/middleware"
	"github.com/prreel/api/internal/ratelimit"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/internal/store"
	ws "github.com/prreel/api/internal/websocket"
	"github.com/prreel/api/internal/worker"
	"github.com/prreel/api/pkg/response"
)

// @title          PRReel API
// @version        1.0
// @description    Turns pull requests into narrated explainer videos.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Session token or API key in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.Env, cfg.Server.LogLevel)
	log := logger.Log

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis not available")
	}

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External collaborators
	githubClient, err := client.NewGitHubClient(&cfg.GitHub)
	if err != nil {
		log.Fatalf("Failed to create GitHub client: %v", err)
	}
	chatClient := client.NewChatClient(&cfg.LLM)
	speechClient := client.NewSpeechClient(&cfg.Speech)

	var capturer client.PageCapturer
	captureClient := client.NewCaptureClient(&cfg.Capture)
	if captureClient.IsConfigured() {
		capturer = captureClient
	} else {
		log.Info("Capture service not configured, preview screenshots disabled")
	}

	var renderer client.RenderDispatcher
	renderClient := client.NewRenderClient(&cfg.Render)
	if renderClient.IsConfigured() {
		renderer = renderClient
	} else {
		log.Warn("Render service not configured, jobs complete after audio")
	}

	storage, storageKind, fileStore := newStorage(cfg)

	// Session verifiers: Zitadel first, locally issued tokens as fallback
	var verifiers auth.Chain
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.WithError(err).Warn("JWKS verifier not initialized")
		} else {
			defer jwksVerifier.Close()
			verifiers = append(verifiers, jwksVerifier)
		}
	}
	if cfg.JWT.Secret != "" {
		verifiers = append(verifiers, auth.NewHMACVerifier(cfg.JWT.Secret))
	}

	// Stores and services
	jobStore := store.NewJobStore(redisClient)
	credentialStore := store.NewCredentialStore(redisClient)
	notifications := service.NewNotifications(hub, client.NewWebhookClient(), cfg.Server.PublicURL)

	pipeline := worker.NewPipelineWorker(worker.PipelineDeps{
		Jobs:        jobStore,
		Metadata:    service.NewMetadataService(githubClient),
		Screenshots: service.NewScreenshotService(capturer, storage),
		Narrative:   service.NewNarrativeService(chatClient),
		Voice:       service.NewVoiceService(speechClient),
		Storage:     storage,
		Renderer:    renderer,
		Notify:      notifications,
		PublicURL:   cfg.Server.PublicURL,
	})

	var (
		dispatcher  service.PipelineDispatcher
		asynqServer *asynq.Server
		localPool   *worker.LocalPool
	)
	if strings.EqualFold(cfg.Queue.Mode, "local") {
		localPool = worker.NewLocalPool(cfg.Queue.Concurrency, 100, pipeline.Run)
		localPool.Start()
		dispatcher = localPool
	} else {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient)
		asynqServer = startWorkerServer(cfg, redisOpt, pipeline)
	}

	jobService := service.NewJobService(jobStore, dispatcher, storage, notifications, cfg.Server.PublicURL, cfg.Recording)
	apiKeyService := service.NewAPIKeyService(credentialStore, cfg.APIKey.Salt, cfg.APIKey.MaxActivePerOwner)

	// Handlers
	videoHandler := handler.NewVideoHandler(jobService, validate)
	publicHandler := handler.NewPublicHandler(jobService, validate)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, validate)
	shareHandler := handler.NewShareHandler(jobService)
	webhookHandler := handler.NewWebhookHandler(jobService, validate)
	authHandler := handler.NewAuthHandler(verifiers)

	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(verifiers).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(newLimiter(cfg, redisClient))

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Recording.MaxBytes) + 1024*1024,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization",
		ExposeHeaders: "X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After,X-Request-ID",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", handler.Health(handler.Collaborators{
		GitHub:  githubClient.IsConfigured(),
		LLM:     chatClient.IsConfigured(),
		Speech:  speechClient.IsConfigured(),
		Capture: capturer != nil,
		Render:  renderer != nil,
		Storage: storageKind,
		Auth:    len(verifiers) > 0 || cfg.Gateway.Enabled,
	}))

	if fileStore != nil {
		app.Static("/media", fileStore.BasePath())
	}

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Public share data and service callbacks
	app.Get("/share/:shareId", shareHandler.View)
	app.Post("/webhooks/render", middleware.WebhookSecret(cfg.Render.WebhookSecret), webhookHandler.Render)

	// Owner API
	api := app.Group("/api", apiAuthMiddleware)

	videos := api.Group("/videos")
	videos.Post("/", videoHandler.Create)
	videos.Get("/:id", videoHandler.Get)
	videos.Post("/:id/retry", videoHandler.Retry)
	videos.Post("/:id/recording", videoHandler.UploadRecording)
	videos.Delete("/:id/recording", videoHandler.DeleteRecording)

	keys := api.Group("/keys")
	keys.Get("/", apiKeyHandler.List)
	keys.Post("/", apiKeyHandler.Create)
	keys.Delete("/:id", apiKeyHandler.Revoke)

	// Public ingestion API
	v1 := app.Group("/v1", middleware.APIKeyAuth(apiKeyService), rateLimiter.PerCredential())
	v1.Post("/videos", publicHandler.Create)
	v1.Get("/videos/:id", publicHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.WithField("addr", addr).Info("Server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Error("Server error")
	}

	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if localPool != nil {
		localPool.Stop()
	}
	redisClient.Close()
}

// newStorage picks R2 when credentials are present and the local file store
// otherwise. The file store is returned separately so it can be served.
func newStorage(cfg *config.Config) (client.StorageClient, string, *client.FileStore) {
	log := logger.Log
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err == nil {
			return r2Client, "r2", nil
		}
		log.WithError(err).Warn("R2 client not initialized, falling back to local storage")
	} else {
		log.Info("R2 storage not configured, using local storage")
	}

	fileStore, err := client.NewFileStore(cfg.Storage.LocalDir, cfg.Server.PublicURL+"/media")
	if err != nil {
		log.Fatalf("Failed to create local storage: %v", err)
	}
	return fileStore, "local", fileStore
}

func newLimiter(cfg *config.Config, redisClient *redis.Client) ratelimit.Limiter {
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") {
		return ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, window)
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, window)
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, pipeline *worker.PipelineWorker) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			worker.PipelineQueue: 1,
		},
		Logger:   logger.Log,
		LogLevel: asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypePipeline, pipeline.ProcessTask)

	if err := srv.Start(mux); err != nil {
		logger.Log.WithError(err).Fatal("Asynq worker failed to start")
	}
	return srv
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
