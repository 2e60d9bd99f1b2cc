package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/config"
	"github.com/dstadnik/truefalse/internal/dispatch"
	"github.com/dstadnik/truefalse/internal/game"
	"github.com/dstadnik/truefalse/internal/gateway"
	"github.com/dstadnik/truefalse/internal/lock"
	"github.com/dstadnik/truefalse/internal/questions"
	"github.com/dstadnik/truefalse/internal/rooms"
	"github.com/dstadnik/truefalse/internal/roomsync"
	"github.com/dstadnik/truefalse/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	st, err := setupStore(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, err := setupQuestions(ctx, cfg)
	if err != nil {
		return err
	}

	sync := roomsync.New(st)
	locker := lock.New(st, clock, lock.DefaultOptions())
	engine := game.NewService(sync, provider, locker, clock)
	roomService := rooms.NewService(sync, locker, engine)

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go manager.Start(ctx)

	dispatcher := dispatch.New(st, manager, engine)
	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- dispatcher.Run(ctx)
	}()

	mux := http.NewServeMux()
	hub := gateway.NewHandler(manager, roomService)
	mux.HandleFunc("/api/hub", hub.ServeHub)
	gateway.NewRESTHandler(roomService, provider, manager).Register(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler: c.Handler(mux),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	engine.Shutdown()
	<-dispatcherDone
	log.Info().Msg("server stopped")
	return nil
}

func setupStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn().Msg("using in-memory store: coordination works on this process only")
		return store.NewMemory(clock), nil
	case "redis":
		return store.NewRedis(ctx, cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func setupQuestions(ctx context.Context, cfg *config.Config) (questions.Provider, error) {
	switch cfg.Questions.Source {
	case "memory":
		return questions.NewMemoryProvider(questions.SeededQuestions(100)), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Info().Str("host", cfg.Postgres.Host).Str("db", cfg.Postgres.Database).Msg("connected to postgres")
		return questions.NewPostgresProvider(ctx, pool, cfg.Questions.Buffer), nil
	default:
		return nil, fmt.Errorf("unknown questions source %q", cfg.Questions.Source)
	}
}

func init() {
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
