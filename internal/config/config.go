package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	GitHub    GitHubConfig
	LLM       LLMConfig
	Speech    SpeechConfig
	Capture   CaptureConfig
	Render    RenderConfig
	R2        R2Config
	Storage   StorageConfig
	APIKey    APIKeyConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Recording RecordingConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	PublicURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type GitHubConfig struct {
	Token   string
	BaseURL string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SpeechConfig struct {
	APIKey     string
	BaseURL    string
	VoiceID    string
	Model      string
	Stability  float64
	Similarity float64
}

type CaptureConfig struct {
	ServiceURL     string
	Timeout        int // seconds
	ViewportWidth  int
	ViewportHeight int
}

type RenderConfig struct {
	ServiceURL    string
	WebhookSecret string
	Timeout       int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type StorageConfig struct {
	LocalDir string
}

type APIKeyConfig struct {
	Salt              string
	MaxActivePerOwner int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	Backend       string // memory | redis
}

type QueueConfig struct {
	Mode        string // asynq | local
	Concurrency int
}

type RecordingConfig struct {
	MaxBytes      int64
	MaxDurationMs int64
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GITHUB_TOKEN")
	readSecret("LLM_API_KEY")
	readSecret("SPEECH_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("RENDER_WEBHOOK_SECRET")
	readSecret("APIKEY_SALT")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("github.base_url", "GITHUB_BASE_URL")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("speech.api_key", "SPEECH_API_KEY")
	_ = v.BindEnv("speech.base_url", "SPEECH_BASE_URL")
	_ = v.BindEnv("speech.voice_id", "SPEECH_VOICE_ID")
	_ = v.BindEnv("speech.model", "SPEECH_MODEL")
	_ = v.BindEnv("speech.stability", "SPEECH_STABILITY")
	_ = v.BindEnv("speech.similarity", "SPEECH_SIMILARITY")
	_ = v.BindEnv("capture.service_url", "CAPTURE_SERVICE_URL")
	_ = v.BindEnv("capture.timeout", "CAPTURE_TIMEOUT")
	_ = v.BindEnv("render.service_url", "RENDER_SERVICE_URL")
	_ = v.BindEnv("render.webhook_secret", "RENDER_WEBHOOK_SECRET")
	_ = v.BindEnv("render.timeout", "RENDER_TIMEOUT")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("storage.local_dir", "STORAGE_LOCAL_DIR")
	_ = v.BindEnv("apikey.salt", "APIKEY_SALT")
	_ = v.BindEnv("ratelimit.backend", "RATE_LIMIT_BACKEND")
	_ = v.BindEnv("queue.mode", "QUEUE_MODE")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("gateway.enabled", false)

	// Collaborator defaults
	v.SetDefault("github.base_url", "https://api.github.com/")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("speech.base_url", "https://api.elevenlabs.io")
	v.SetDefault("speech.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("speech.model", "eleven_multilingual_v2")
	v.SetDefault("speech.stability", 0.5)
	v.SetDefault("speech.similarity", 0.75)
	v.SetDefault("capture.timeout", 30)
	v.SetDefault("capture.viewport_width", 1280)
	v.SetDefault("capture.viewport_height", 800)
	v.SetDefault("render.timeout", 30)
	v.SetDefault("storage.local_dir", "./data/media")

	// API keys and quotas
	v.SetDefault("apikey.salt", "change-me-in-production")
	v.SetDefault("apikey.max_active_per_owner", 10)
	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window_seconds", 60)
	v.SetDefault("ratelimit.backend", "memory")

	// Queue
	v.SetDefault("queue.mode", "asynq")
	v.SetDefault("queue.concurrency", 4)

	// Screen recordings
	v.SetDefault("recording.max_bytes", 100*1024*1024)
	v.SetDefault("recording.max_duration_ms", 5*60*1000)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			PublicURL: strings.TrimRight(v.GetString("server.public_url"), "/"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		GitHub: GitHubConfig{
			Token:   v.GetString("github.token"),
			BaseURL: v.GetString("github.base_url"),
		},
		LLM: LLMConfig{
			APIKey:  v.GetString("llm.api_key"),
			BaseURL: v.GetString("llm.base_url"),
			Model:   v.GetString("llm.model"),
		},
		Speech: SpeechConfig{
			APIKey:     v.GetString("speech.api_key"),
			BaseURL:    v.GetString("speech.base_url"),
			VoiceID:    v.GetString("speech.voice_id"),
			Model:      v.GetString("speech.model"),
			Stability:  v.GetFloat64("speech.stability"),
			Similarity: v.GetFloat64("speech.similarity"),
		},
		Capture: CaptureConfig{
			ServiceURL:     v.GetString("capture.service_url"),
			Timeout:        v.GetInt("capture.timeout"),
			ViewportWidth:  v.GetInt("capture.viewport_width"),
			ViewportHeight: v.GetInt("capture.viewport_height"),
		},
		Render: RenderConfig{
			ServiceURL:    v.GetString("render.service_url"),
			WebhookSecret: v.GetString("render.webhook_secret"),
			Timeout:       v.GetInt("render.timeout"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Storage: StorageConfig{
			LocalDir: v.GetString("storage.local_dir"),
		},
		APIKey: APIKeyConfig{
			Salt:              v.GetString("apikey.salt"),
			MaxActivePerOwner: v.GetInt("apikey.max_active_per_owner"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("ratelimit.requests"),
			WindowSeconds: v.GetInt("ratelimit.window_seconds"),
			Backend:       strings.ToLower(v.GetString("ratelimit.backend")),
		},
		Queue: QueueConfig{
			Mode:        strings.ToLower(v.GetString("queue.mode")),
			Concurrency: v.GetInt("queue.concurrency"),
		},
		Recording: RecordingConfig{
			MaxBytes:      v.GetInt64("recording.max_bytes"),
			MaxDurationMs: v.GetInt64("recording.max_duration_ms"),
		},
	}

	return cfg, nil
}
