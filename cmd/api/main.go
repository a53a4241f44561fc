package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyreel/internal/adapter/repo"
	"storyreel/internal/assemble"
	"storyreel/internal/assets"
	"storyreel/internal/http/handlers"
	"storyreel/internal/http/httpapi"
	"storyreel/internal/infra"
	"storyreel/internal/infra/credentials"
	"storyreel/internal/infra/geoip"
	"storyreel/internal/middleware"
	"storyreel/internal/providers/genai"
	"storyreel/internal/providers/image"
	"storyreel/internal/providers/video"
	"storyreel/internal/render"
	"storyreel/internal/storyboard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	sqlRunner := infra.NewSQLRunner(dbpool, logger)
	projects := repo.NewProjectRepo(sqlRunner)
	analytics := repo.NewAnalyticsRepo(sqlRunner)
	creds := credentials.NewStore(sqlRunner)

	states := render.NewStateStore(projects, logger)

	files, err := assets.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open asset storage")
	}

	retry := render.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseBackoff,
		Logger:      logger,
	}

	cdn, err := assets.NewCDNClient(cfg.CDNBaseURL, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure remote asset store")
	}
	cache := render.NewAssetCache(cdn, states, retry, render.CacheConfig{
		FreshFor:     cfg.CacheFreshness,
		ProbeTimeout: cfg.ProbeTimeout,
	}, logger)

	// env wins; the credential store carries keys rotated at runtime
	apiKey := cfg.GeminiAPIKey
	if apiKey == "" {
		if stored, err := creds.GeminiAPIKey(ctx); err == nil {
			apiKey = stored
		}
	}
	if apiKey == "" {
		logger.Warn().Msg("no gemini api key configured, providers run in synthetic mode")
	}

	imageClient, err := genai.NewClient(genai.Options{
		APIKey:    apiKey,
		BaseURL:   cfg.GeminiBaseURL,
		Model:     cfg.GeminiModel,
		AssetBase: cfg.CDNBaseURL,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image client")
	}
	videoClient, err := genai.NewClient(genai.Options{
		APIKey:    apiKey,
		BaseURL:   cfg.GeminiBaseURL,
		Model:     cfg.VeoModel,
		AssetBase: cfg.CDNBaseURL,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build video client")
	}

	submitter := storyboard.NewProviderSubmitter(
		image.NewGeminiGenerator(imageClient),
		video.NewVEO(videoClient),
		"en",
	)
	dispatcher := render.NewDispatcher(ctx, render.DispatcherConfig{
		MaxConcurrency: cfg.RenderMaxConcurrency,
		ImageTimeout:   cfg.ImageGenTimeout,
		VideoTimeout:   cfg.VideoGenTimeout,
	}, cache, states, submitter, retry, logger)

	var writer storyboard.Writer = storyboard.NewStaticWriter()
	if cfg.PromptProvider == "gemini" && apiKey != "" {
		writer = storyboard.NewGeminiWriter(imageClient, nil, logger)
	}
	storyboards := storyboard.NewService(writer, states, logger)

	assembler := assemble.NewAssembler(cfg.FFmpegPath, logger)

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Logger:      logger,
		Cfg:         cfg,
		Projects:    projects,
		Analytics:   analytics,
		States:      states,
		Dispatcher:  dispatcher,
		Files:       files,
		Storyboards: storyboards,
		Assembler:   assembler,
		HTTPClient:  &http.Client{Timeout: 2 * time.Minute},
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  "en",
		CountryLookup:  lookup,
		Analytics:      analytics,
		RateLimit:      cfg.RateLimitPerMin,
		RatePer:        time.Minute,
		StaticDir:      files.BasePath(),
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	dispatcher.Wait()
	logger.Info().Msg("api: stopped")
}
