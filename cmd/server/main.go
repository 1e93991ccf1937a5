package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moviepicker/internal/affinity"
	apihttp "moviepicker/internal/api/http"
	"moviepicker/internal/app"
	"moviepicker/internal/genres"
	"moviepicker/internal/metrics"
	"moviepicker/internal/providers/mdblist"
	"moviepicker/internal/providers/omdb"
	"moviepicker/internal/providers/tmdb"
	"moviepicker/internal/reccache"
	"moviepicker/internal/scoring"
	"moviepicker/internal/search"
	mongostore "moviepicker/internal/store/mongo"
	"moviepicker/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "movie-picker")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "movie-picker"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("mongoDatabase", cfg.MongoDatabase),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("hasOMDBKey", cfg.OMDBAPIKey != ""),
		slog.Bool("hasMDBListKey", cfg.MDBListAPIKey != ""),
		slog.Int("searchPageWindow", cfg.SearchPageWindow),
		slog.Bool("fastHydration", cfg.FastHydration),
	)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongostore.Connect(connectCtx, cfg.MongoURI,
		options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		cancelConnect()
		logger.Error("mongodb connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(connectCtx, nil); err != nil {
		cancelConnect()
		logger.Error("mongodb not reachable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cancelConnect()
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	normalizer := genres.NewNormalizer()
	store := mongostore.NewStore(mongoClient, cfg.MongoDatabase, normalizer)
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 15*time.Second)
	if err := store.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("index creation failed", slog.String("error", err.Error()))
	}
	cancelIndex()

	redisClient := buildRedisClient(cfg, logger)

	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Language: cfg.TMDBLanguage,
		Client:   newProviderHTTPClient(cfg.ProviderTimeout),
		Redis:    redisClient,
		CacheTTL: cfg.TMDBCacheTTL,
	})
	if !tmdbClient.Enabled() {
		logger.Warn("tmdb api key not configured; provider search is disabled")
	}
	omdbClient := omdb.NewClient(omdb.Config{
		APIKey:  cfg.OMDBAPIKey,
		BaseURL: cfg.OMDBBaseURL,
		Client:  newProviderHTTPClient(cfg.ProviderTimeout),
	})
	mdblistClient := mdblist.NewClient(mdblist.Config{
		APIKey:  cfg.MDBListAPIKey,
		BaseURL: cfg.MDBListBaseURL,
		Client:  newProviderHTTPClient(cfg.ProviderTimeout),
	})

	recCache, err := reccache.New(cfg.RecCacheSize, cfg.RecCacheMaxAge, store,
		tmdbClient.Recommendations, reccache.WithLogger(logger))
	if err != nil {
		logger.Error("recommendation cache init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	engine := scoring.NewEngine(recCache, store, logger)
	maintainer := affinity.NewMaintainer(store, logger)

	searchService := search.NewService(
		[]search.MetadataProvider{tmdbClient},
		[]search.RatingProvider{omdbClient, mdblistClient},
		store,
		normalizer,
		recCache,
		engine,
		search.WithLogger(logger),
		search.WithTimeout(cfg.RequestTimeout),
		search.WithPageWindow(cfg.SearchPageWindow),
		search.WithFastHydration(cfg.FastHydration),
	)

	handler := apihttp.NewServer(searchService, store,
		apihttp.WithLogger(logger),
		apihttp.WithAffinity(maintainer),
		apihttp.WithGenres(normalizer),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Search fan-outs bound themselves with the request timeout;
		// the poster proxy streams larger bodies, so keep a margin.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("movie picker service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("movie picker service stopped")
}

func newProviderHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildRedisClient returns nil when Redis is not configured or not
// reachable; the TMDB client then skips its read-through cache.
func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, provider cache disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, provider cache disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}
