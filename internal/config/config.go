package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the gateway.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	EventSubject         string
	JWTSecret            string
	BackendBaseURL       string
	BackendTimeout       time.Duration
	StorageTimeout       time.Duration
	UploadMaxSizeMB      int
	UploadRateLimit      int
	RefreshRetries       int
	RefreshBaseDelay     time.Duration
	RefreshBackoffFactor float64
	TimerTickInterval    time.Duration
	UploadSessionTTL     time.Duration
	QuizSubmitMemoTTL    time.Duration
	QuizDraftTTL         time.Duration
	QuizClaimTTL         time.Duration
	UploadProxyTimeout   time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadMaxBytes is the payload ceiling enforced before registration.
func (c Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxSizeMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Submission Gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.subject", "gema.submissions")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("storage.timeout", "0s")
	v.SetDefault("upload.max_size_mb", 50)
	v.SetDefault("upload.rate_limit", 20)
	v.SetDefault("refresh.retries", 2)
	v.SetDefault("refresh.base_delay", "1s")
	v.SetDefault("refresh.backoff_factor", 1.5)
	v.SetDefault("timer.tick_interval", "1s")
	v.SetDefault("upload.session_ttl", "15m")
	v.SetDefault("quiz.submit_memo_ttl", "24h")
	v.SetDefault("quiz.draft_ttl", "6h")
	v.SetDefault("quiz.claim_ttl", "30s")
	v.SetDefault("upload.proxy_timeout", "2m")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"backend.timeout",
		"storage.timeout",
		"refresh.base_delay",
		"timer.tick_interval",
		"upload.session_ttl",
		"quiz.submit_memo_ttl",
		"quiz.draft_ttl",
		"quiz.claim_ttl",
		"upload.proxy_timeout",
	} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventSubject:         strings.TrimSuffix(v.GetString("events.subject"), "."),
		JWTSecret:            v.GetString("jwt.secret"),
		BackendBaseURL:       v.GetString("backend.base_url"),
		BackendTimeout:       durations["backend.timeout"],
		StorageTimeout:       durations["storage.timeout"],
		UploadMaxSizeMB:      v.GetInt("upload.max_size_mb"),
		UploadRateLimit:      v.GetInt("upload.rate_limit"),
		RefreshRetries:       v.GetInt("refresh.retries"),
		RefreshBaseDelay:     durations["refresh.base_delay"],
		RefreshBackoffFactor: v.GetFloat64("refresh.backoff_factor"),
		TimerTickInterval:    durations["timer.tick_interval"],
		UploadSessionTTL:     durations["upload.session_ttl"],
		QuizSubmitMemoTTL:    durations["quiz.submit_memo_ttl"],
		QuizDraftTTL:         durations["quiz.draft_ttl"],
		QuizClaimTTL:         durations["quiz.claim_ttl"],
		UploadProxyTimeout:   durations["upload.proxy_timeout"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("backend base url must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 50
	}
	if cfg.RefreshRetries < 0 {
		cfg.RefreshRetries = 0
	}
	if cfg.RefreshBackoffFactor < 1 {
		cfg.RefreshBackoffFactor = 1
	}
	if cfg.TimerTickInterval <= 0 {
		cfg.TimerTickInterval = time.Second
	}
	// A claim must outlive the backend call it guards.
	if cfg.QuizClaimTTL <= cfg.BackendTimeout {
		cfg.QuizClaimTTL = 2 * cfg.BackendTimeout
	}
	if cfg.UploadProxyTimeout <= 0 {
		cfg.UploadProxyTimeout = 2 * time.Minute
	}

	return cfg, nil
}
