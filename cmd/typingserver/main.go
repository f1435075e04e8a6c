package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lab1702/typingserver/auth"
	"github.com/lab1702/typingserver/config"
	"github.com/lab1702/typingserver/controller"
	"github.com/lab1702/typingserver/fanout"
	"github.com/lab1702/typingserver/repository"
	"github.com/lab1702/typingserver/tick"
	"github.com/lab1702/typingserver/transport"
	"github.com/lab1702/typingserver/words"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("invalid configuration")
	}

	logLevel := zerolog.InfoLevel
	if cfg.Verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(logLevel).With().Timestamp().Caller().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pgPool.Close()
	repo := repository.NewPostgresRepository(pgPool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	bus := fanout.NewBus(rdb)

	wordSource := &words.FileWordSource{RegularPath: "data/words.txt", YoPath: "data/yo_words.txt"}
	registry := controller.NewRegistry()
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)

	endpoint := transport.NewEndpoint(registry, repo, wordSource, bus, jwtService, logger)
	restHandler := transport.NewRESTHandler(repo, logger)

	broadcaster := tick.NewBroadcaster(bus, registry, cfg.TickInterval, logger)
	go broadcaster.Run(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/play/{sessionID}", endpoint.HandleWebSocket)
	router.HandleFunc("/play/{sessionID}/", endpoint.HandleWebSocket)
	router.HandleFunc("/play/{sessionID}/{token}", endpoint.HandleWebSocket)
	restHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         cfg.Bind + ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting typing competition server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown error")
	}

	logger.Info().Msg("server stopped")
}
