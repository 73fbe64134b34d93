// Command prepare-db bootstraps the document store: it creates the
// collection indexes and provisions the configured default groups.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/config"
	"github.com/openmatchmaking/auth/internal/storage"
	"github.com/openmatchmaking/auth/internal/storage/mongo"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("prepare-db failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(context.Background()) }()

	logger.Info("creating indexes")
	if err := db.EnsureIndexes(ctx); err != nil {
		return err
	}

	stores := db.Stores()
	for _, group := range cfg.DefaultGroups {
		_, err := stores.Groups.FindByName(ctx, group.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if err := stores.Groups.Insert(ctx, &storage.Group{Name: group.Name}); err != nil {
			return err
		}
		logger.Info("created default group", zap.String("name", group.Name))
	}

	logger.Info("done")
	return nil
}
