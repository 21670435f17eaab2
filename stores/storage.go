package stores

import (
	"context"
	"imagedesk/config"
	"imagedesk/core"
	"imagedesk/stores/aws"
	"imagedesk/stores/filesystem"
	"imagedesk/stores/memory"
	"imagedesk/stores/postgres"
	"imagedesk/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore builds the image store selected by cfg.StorageType.
func GetStore(cfg *config.Config) core.ImageStore {
	var store core.ImageStore

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store = filesystem.NewStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewStore(cfg.DataSourceName)
	case "postgres":
		if cfg.DatabaseURL == "" {
			logrus.Fatal("DATABASE_URL environment variable must be set for postgres storage type")
		}
		pg, err := postgres.NewStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open postgres store")
		}
		store = pg
	case "s3":
		if cfg.S3BucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3BucketName
		store = aws.NewStore(cfg.S3BucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
