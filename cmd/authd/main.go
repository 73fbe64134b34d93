// Command authd runs the authentication service: the HTTP surface and
// the AMQP workers over a shared set of stores.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/config"
	"github.com/openmatchmaking/auth/internal/httpapi"
	"github.com/openmatchmaking/auth/internal/mq"
	"github.com/openmatchmaking/auth/internal/password"
	"github.com/openmatchmaking/auth/internal/permissions"
	"github.com/openmatchmaking/auth/internal/refresh"
	"github.com/openmatchmaking/auth/internal/registry"
	"github.com/openmatchmaking/auth/internal/storage/mongo"
	"github.com/openmatchmaking/auth/internal/token"
	"github.com/openmatchmaking/auth/internal/users"
)

const defaultGroupName = "Game client"

const syncQueueSize = 64

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("authd failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := mongo.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(context.Background()) }()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	defer func() { _ = redisClient.Close() }()

	refreshStore := refresh.NewStore(redisClient, cfg.JWT.RefreshFieldName)
	if err := refreshStore.Ping(connectCtx); err != nil {
		return err
	}

	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		return err
	}
	defer func() { _ = amqpConn.Close() }()

	codec, err := token.NewCodec(cfg.JWT.SecretKey, cfg.JWT.Lifetime)
	if err != nil {
		return err
	}

	stores := db.Stores()
	hasher := password.NewHasher()
	resolver := permissions.NewResolver(stores.Groups, stores.Permissions)

	tokens := token.NewManager(codec, stores.Users, refreshStore, hasher, token.ManagerConfig{
		HeaderPrefix:       cfg.JWT.AuthHeaderPrefix,
		RefreshTokenLength: cfg.JWT.RefreshTokenChars,
	})
	userService := users.NewService(stores.Users, stores.Groups, resolver, hasher, defaultGroupName)

	sync := registry.NewSynchronizer(stores.Groups, cfg.DefaultGroups, logger, syncQueueSize)
	defer sync.Close()
	registryService := registry.NewService(stores, sync)

	supervisor := mq.NewSupervisor(amqpConn, cfg.AMQP.ResponseExchange, logger)
	handlers := mq.NewHandlers(tokens, userService, registryService, cfg.JWT.AccessFieldName, cfg.JWT.RefreshFieldName)
	if err := supervisor.Start(ctx, mq.Workers(handlers)); err != nil {
		return err
	}

	api := httpapi.NewServer(tokens, userService, cfg.JWT.AuthHeaderName, logger)
	server := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("authd listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	supervisor.Wait()
	return nil
}
