package core

import (
	"context"
	"fmt"
	"os"

	"tabala/internal/infra/storage/memory"
	"tabala/internal/infra/storage/postgres"
	"tabala/internal/infra/storage/s3"
	"tabala/internal/infra/storage/sqlite"
	"tabala/pkg/domain"
)

// StorageDriver identifies a concrete shared-store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-process only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file shared between local processes
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageS3       StorageDriver = "s3"       // S3-compatible object storage
)

// OpenKV selects a store adapter using environment variables. Defaults to
// sqlite when unset.
//
//	TABALA_STORAGE_DRIVER: memory|sqlite|postgres|s3 (default sqlite)
//	TABALA_SQLITE_PATH: path to sqlite file (default ./tabala.db)
//	TABALA_POSTGRES_DSN: postgres DSN when driver=postgres
//	TABALA_S3_BUCKET / TABALA_S3_REGION / TABALA_S3_ENDPOINT /
//	TABALA_S3_PATH_STYLE: object storage settings when driver=s3
func OpenKV(ctx context.Context) (domain.KV, error) {
	driver := os.Getenv("TABALA_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("TABALA_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(ctx, os.Getenv("TABALA_POSTGRES_DSN"))
	case StorageS3:
		return s3.NewStore(ctx, s3.Config{
			Bucket:    os.Getenv("TABALA_S3_BUCKET"),
			Region:    os.Getenv("TABALA_S3_REGION"),
			Endpoint:  os.Getenv("TABALA_S3_ENDPOINT"),
			PathStyle: os.Getenv("TABALA_S3_PATH_STYLE") == "true",
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
