package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath    string
	StorageBaseURL string
	CDNBaseURL     string
	GeoIPDBPath    string

	PromptProvider string
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	VeoModel       string
	FFmpegPath     string

	RenderMaxConcurrency int
	CacheFreshness       time.Duration
	ProbeTimeout         time.Duration
	RetryMaxAttempts     int
	RetryBaseBackoff     time.Duration
	ImageGenTimeout      time.Duration
	VideoGenTimeout      time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: os.Getenv("STORAGE_BASE_URL"),
		CDNBaseURL:     getEnv("CDN_BASE_URL", "https://cdn.storyreel.dev"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		PromptProvider: getEnv("PROMPT_PROVIDER", "gemini"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VeoModel:       getEnv("VEO_MODEL", "veo-2"),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),

		RenderMaxConcurrency: getEnvInt("RENDER_MAX_CONCURRENCY", 4),
		CacheFreshness:       time.Hour * time.Duration(getEnvInt("CACHE_FRESHNESS_HOURS", 12)),
		ProbeTimeout:         time.Second * time.Duration(getEnvInt("PROBE_TIMEOUT_SECONDS", 5)),
		RetryMaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseBackoff:     time.Second * time.Duration(getEnvInt("RETRY_BASE_BACKOFF_SECONDS", 2)),
		ImageGenTimeout:      time.Minute * time.Duration(getEnvInt("IMAGE_GEN_TIMEOUT_MINUTES", 2)),
		VideoGenTimeout:      time.Minute * time.Duration(getEnvInt("VIDEO_GEN_TIMEOUT_MINUTES", 10)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/static"
	}
	if _, err := url.Parse(cfg.CDNBaseURL); err != nil {
		return nil, fmt.Errorf("CDN_BASE_URL invalid: %w", err)
	}
	if cfg.RenderMaxConcurrency < 1 {
		cfg.RenderMaxConcurrency = 1
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, part := range strings.Split(origins, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, part)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
