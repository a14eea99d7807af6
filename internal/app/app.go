// Package app wires configuration into the directory's collaborators. Both
// the HTTP server and dirctl build their dependencies through Open.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/api"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/config"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/enrichment"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/imagery"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/distlock"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/places"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/repository/dynamo"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/repository/postgres"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/storage"
)

// App holds every wired collaborator. Optional parts are nil when their
// configuration is missing.
type App struct {
	Config *config.Config

	DB    *sql.DB
	Redis *redis.Client
	S3    *s3.Client

	Listings   *listing.Service
	Broken     *brokenimage.Service
	Importer   *datanorm.Importer
	ImportLogs *postgres.ImportLogRepo
	Images     *storage.ImageStore
	Resolver   *imagery.Resolver
	Places     *places.Client
	Enricher   *enrichment.Enricher
}

// Open connects to Postgres (required), Redis and AWS (optional) and builds
// the services on top of them.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &App{Config: cfg, DB: db}

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			logger.Warn("app: redis unreachable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			a.Redis.Close()
			a.Redis = nil
		}
	}

	var brokenRepo brokenimage.Repository = postgres.NewBrokenImageRepo(db)
	if cfg.Storage.S3Bucket != "" || cfg.BrokenImages.Backend == "dynamodb" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.Storage.S3Bucket != "" {
			a.S3 = storage.NewS3Client(awsCfg, cfg.Storage.Endpoint)
			a.Images = storage.New(a.S3, storage.OptionsFromConfig(cfg.Storage, cfg.Images))
		}
		if cfg.BrokenImages.Backend == "dynamodb" {
			brokenRepo = dynamo.NewBrokenImageRepo(storage.NewDynamoClient(awsCfg), cfg.BrokenImages.DynamoDBTable)
		}
	}

	listingRepo := postgres.NewListingRepo(db)
	a.Listings = listing.NewService(listingRepo)
	a.Broken = brokenimage.NewService(brokenRepo)
	a.ImportLogs = postgres.NewImportLogRepo(db)
	a.Importer = datanorm.NewImporter(listingRepo, datanorm.Config{
		LocationPlaceholder: cfg.Import.LocationPlaceholder,
		MaxRows:             cfg.Import.MaxRows,
	})

	var usage imagery.UsageCache = imagery.NewMemoryUsageCache()
	if cfg.Images.UsageCache == "redis" && a.Redis != nil {
		usage = imagery.NewRedisUsageCache(a.Redis, cfg.Images.UsageTTL())
	}
	var pool imagery.CategoryPool
	if a.Images != nil {
		pool = a.Images
	}
	a.Resolver = imagery.NewResolver(a.Broken, pool, usage, cfg.Images.Placeholder)

	a.Places = places.New(cfg.Places)
	var photos enrichment.PhotoStore
	if a.Images != nil {
		photos = a.Images
	}
	lock := distlock.NewLock(a.Redis, db, enrichment.LockKey, cfg.Enrichment.LockTTL())
	a.Enricher = enrichment.New(a.Places, a.Listings, photos, lock,
		enrichment.OptionsFromConfig(cfg.Enrichment, cfg.Images))

	logger.Info("app: dependencies ready",
		"redis", a.Redis != nil,
		"s3_bucket", cfg.Storage.S3Bucket,
		"broken_images", cfg.BrokenImages.Backend,
		"usage_cache", cfg.Images.UsageCache,
		"places", a.Places.Configured())
	return a, nil
}

// Handlers builds the API handlers over the app's services.
func (a *App) Handlers() *api.Handlers {
	d := api.Deps{
		Listings: a.Listings,
		Resolver: a.Resolver,
		Broken:   a.Broken,
		Importer: a.Importer,
		Logs:     a.ImportLogs,
		Limits: api.Limits{
			ImportBytes: a.Config.Import.MaxUploadBytes(),
			ImageBytes:  a.Config.Images.MaxUploadBytes(),
		},
	}
	if a.Images != nil {
		d.Uploader = a.Images
	}
	if a.Config.Enrichment.Enabled {
		d.Enricher = a.Enricher
	}
	return api.NewHandlers(d)
}

// HealthChecker builds the dependency health checks.
func (a *App) HealthChecker() *api.HealthChecker {
	var rdb redis.Cmdable
	if a.Redis != nil {
		rdb = a.Redis
	}
	var bucket api.BucketHeader
	if a.S3 != nil {
		bucket = a.S3
	}
	return api.NewHealthChecker(a.DB, rdb, bucket, a.Config.Storage.S3Bucket)
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
