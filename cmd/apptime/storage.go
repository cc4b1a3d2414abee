package main

import (
	"fmt"

	"github.com/goodtune/apptime/internal/config"
	"github.com/goodtune/apptime/internal/storage"
	"github.com/goodtune/apptime/internal/storage/bolt"
	"github.com/goodtune/apptime/internal/storage/redis"
	"github.com/goodtune/apptime/internal/storage/sqlite"
)

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		return sqlite.Open(cfg.Path, cfg.EntityCacheSize)
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected sqlite, bolt or redis)", storageType)
	}
}
