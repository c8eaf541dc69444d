package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"roomstaging/internal/bootstrap"
	"roomstaging/internal/fulfillment"
	"roomstaging/internal/http/handlers"
	httpapi "roomstaging/internal/http/httpapi"
	"roomstaging/internal/infra"
	"roomstaging/internal/staging"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	components, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("asset_store", cfg.AssetStore).Msg("failed to initialise collaborators")
	}

	limiter, redisClient := bootstrap.NewRateLimiter(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	app := handlers.NewApp(
		staging.NewService(components.Store, components.Renders, components.Fetcher, nil, &logger),
		fulfillment.NewService(components.Store, components.Renders, components.Fetcher, &logger),
		components.Payments,
		components.Renders,
		&logger,
	)

	var static http.Handler
	if components.Files != nil {
		static = components.Files.Handler()
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
		Limiter:        limiter,
		Static:         static,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("asset_store", cfg.AssetStore).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
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
