package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub/internal/auth"
	"taskhub/internal/logger"
	"taskhub/internal/realtime"
	"taskhub/internal/server"
	"taskhub/internal/service"
	db "taskhub/repository/db"
	inmemory "taskhub/repository/inmemory"
	mongostore "taskhub/repository/mongo"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	boot := logger.Bootstrap()

	cfg, err := server.ReadConfig(os.Args[1:])
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to read config")
	}

	log, err := logger.New(cfg.Env, os.Stdout)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to init logger")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("service stopped")
}

func run(cfg *server.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := initializeRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	api, hub, err := buildAPI(cfg, log, repos)
	if err != nil {
		return err
	}
	if cfg.Env == logger.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr()).
			Str("storage", repos.kind).
			Msg("starting server")
		serverErr <- api.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		hub.Close()
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("graceful shutdown complete")
	return nil
}

func buildAPI(cfg *server.Config, log zerolog.Logger, repos *repositories) (*server.TaskAPI, *realtime.Hub, error) {
	hasher, err := auth.NewPasswordHasher(cfg.PasswordHasher)
	if err != nil {
		return nil, nil, err
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)

	hub := realtime.NewHub(log)
	authSvc := service.NewAuthService(log, repos.users, hasher, tokens)
	taskSvc := service.NewTaskService(log, repos.tasks, repos.users, hub)

	api := server.NewTaskAPI(authSvc, taskSvc, hub, cfg, log)
	if api == nil {
		return nil, nil, fmt.Errorf("failed to initialize API")
	}
	return api, hub, nil
}

type repositories struct {
	kind  string
	users service.UserRepository
	tasks service.TaskRepository
	close func()
}

func memoryRepositories() *repositories {
	store := inmemory.NewStorage()
	return &repositories{kind: server.StorageMemory, users: store, tasks: store, close: func() {}}
}

// initializeRepositories opens the configured backend. An unreachable
// postgres falls back to memory; a reachable one with failing migrations is
// an error.
func initializeRepositories(ctx context.Context, cfg *server.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage {
	case server.StorageMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return memoryRepositories(), nil

	case server.StorageMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := mongostore.NewStorage(connectCtx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		return &repositories{
			kind:  server.StorageMongo,
			users: store,
			tasks: store,
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.Close(closeCtx); err != nil {
					log.Warn().Err(err).Msg("failed to disconnect from mongo")
				}
			},
		}, nil

	case server.StoragePostgres:
		store, err := db.NewStorage(ctx, cfg.DBStr, log)
		if err != nil {
			log.Warn().Err(err).Msg("database unreachable, falling back to in-memory storage")
			return memoryRepositories(), nil
		}
		if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
			store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info().Str("path", cfg.MigratePath).Msg("migrations applied")
		return &repositories{kind: server.StoragePostgres, users: store, tasks: store, close: store.Close}, nil
	}

	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
