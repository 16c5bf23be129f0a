package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stylegan-api/internal/adapter/mongorepo"
	"stylegan-api/internal/adapter/repo"
	"stylegan-api/internal/domain"
	"stylegan-api/internal/http/handlers"
	"stylegan-api/internal/http/httpapi"
	"stylegan-api/internal/infra"
	"stylegan-api/internal/infra/auth0"
	"stylegan-api/internal/middleware"
	"stylegan-api/internal/providers/gan"
	"stylegan-api/internal/ratelimit"
	"stylegan-api/internal/service"
	"stylegan-api/internal/storage"
	"stylegan-api/internal/stylegan"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	records, closeRecords, err := openRecords(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.MetadataBackend).Msg("failed to open metadata store")
	}
	defer closeRecords()

	limiter, closeLimiter, err := openLimiter(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build rate limiter")
	}
	defer closeLimiter()

	catalog, err := gan.NewCatalog(cfg.ModelsDir, cfg.ModelVersion)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ModelsDir).Msg("failed to read model catalog")
	}
	backend, err := generatorBackend(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generator backend")
	}

	blobs, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to open blob storage")
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	engine := stylegan.NewEngine(
		stylegan.NewModelCache(catalog.Loader(backend)),
		stylegan.NewResolver(service.NewVectorSource(blobs), nil),
		&engineLogger,
	)
	studio := service.NewStudio(engine, catalog, blobs, records, logger, service.Options{
		JPEGQuality:           cfg.JPEGQuality,
		ProjectionMaxSteps:    cfg.ProjectionMaxSteps,
		ProjectionWAvgSamples: cfg.ProjectionWAvgSamples,
	})

	app := handlers.NewApp(studio, logger, cfg.ImageBaseURL)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:        logger,
		Verifier:      tokenVerifier(cfg),
		RequiredScope: cfg.AuthRequiredScope,
		Limiter:       limiter,
		CORSOrigins:   cfg.CORSOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Int("models", len(catalog.List())).
			Str("generator", cfg.GeneratorBackend).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// openRecords connects the configured metadata backend and prepares its
// schema or indexes.
func openRecords(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.ArtifactRepository, func(), error) {
	if cfg.MetadataBackend == infra.MetadataMongo {
		client, db, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		r := mongorepo.NewArtifactRepository(db)
		if err := r.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return r, closeFn, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	r := repo.NewArtifactRepository(infra.NewSQLRunner(pool, logger))
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return r, pool.Close, nil
}

// openLimiter shares limits through Redis when configured, otherwise keeps
// them in process.
func openLimiter(ctx context.Context, cfg *infra.Config) (ratelimit.Limiter, func(), error) {
	rate := ratelimit.Rate{Requests: cfg.RateLimitRequests, Period: cfg.RateLimitPeriod}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		limiter, err := ratelimit.NewMemory(rate)
		return limiter, func() {}, err
	}
	limiter, err := ratelimit.NewRedis(client, rate, "stylegan:ratelimit:")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return limiter, func() { _ = client.Close() }, nil
}

func generatorBackend(cfg *infra.Config, logger infra.Logger) (gan.Backend, error) {
	if cfg.GeneratorBackend != infra.GeneratorRemote {
		return gan.SyntheticBackend, nil
	}
	remoteLogger := logger.With().Str("component", "generator").Logger()
	remote, err := gan.NewRemote(gan.RemoteOptions{
		BaseURL: cfg.GeneratorURL,
		APIKey:  cfg.GeneratorAPIKey,
		Logger:  &remoteLogger,
	})
	if err != nil {
		return nil, err
	}
	return remote.Backend(), nil
}

func tokenVerifier(cfg *infra.Config) middleware.TokenVerifier {
	if cfg.JWTSecret != "" {
		return middleware.HMACVerifier{Secret: cfg.JWTSecret}
	}
	return middleware.Auth0Verifier{
		Verifier: auth0.NewVerifier(cfg.Auth0Issuer(), cfg.Auth0Audience, &http.Client{Timeout: 10 * time.Second}),
	}
}
