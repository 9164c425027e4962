// Package main wires together the scout service binary.
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

	gcstorage "cloud.google.com/go/storage"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/compscout/compscout/internal/api"
	"github.com/compscout/compscout/internal/browser"
	"github.com/compscout/compscout/internal/clock/system"
	"github.com/compscout/compscout/internal/config"
	"github.com/compscout/compscout/internal/dispatcher"
	"github.com/compscout/compscout/internal/hash/sha256"
	"github.com/compscout/compscout/internal/id/uuid"
	"github.com/compscout/compscout/internal/landscape"
	"github.com/compscout/compscout/internal/logging"
	"github.com/compscout/compscout/internal/places"
	"github.com/compscout/compscout/internal/products"
	kafkapublisher "github.com/compscout/compscout/internal/publisher/kafka"
	memorypublisher "github.com/compscout/compscout/internal/publisher/memory"
	pubsubpublisher "github.com/compscout/compscout/internal/publisher/pubsub"
	queuememory "github.com/compscout/compscout/internal/queue/memory"
	"github.com/compscout/compscout/internal/storage/gcs"
	"github.com/compscout/compscout/internal/storage/local"
	memorystorage "github.com/compscout/compscout/internal/storage/memory"
	"github.com/compscout/compscout/internal/storage/postgres"
	"github.com/compscout/compscout/internal/storage/s3"
	"github.com/compscout/compscout/internal/travel"
	"github.com/compscout/compscout/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeJobStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeJobStore()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	queue := queuememory.NewQueue(cfg.Workers.QueueDepth)
	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.New()

	session, err := browser.New(browser.Config{
		Headless:          cfg.Browser.Headless,
		MaxParallel:       cfg.Browser.MaxParallel,
		UserAgent:         cfg.Browser.UserAgent,
		AcceptLanguage:    cfg.Browser.AcceptLanguage,
		NavigationTimeout: cfg.NavTimeout(),
	})
	if err != nil {
		logger.Fatal("browser session init failed", zap.Error(err))
	}
	defer session.Close()

	var emailFetcher places.EmailFetcher
	if cfg.Places.ExtractEmails {
		emailFetcher = places.NewCollyEmailFetcher(cfg.Browser.UserAgent, cfg.NavTimeout())
	}
	placeScraper := places.New(places.Config{
		SearchBaseURL: cfg.Places.SearchBaseURL,
		PlacePageQPS:  cfg.Places.PlacePageQPS,
	}, session, emailFetcher, logger.Named("places"))

	productScraper := products.New(products.Config{
		StorefrontURL:     cfg.Products.StorefrontURL,
		MaxParallelStores: cfg.Products.MaxParallelStores,
	}, session, logger.Named("products"))

	var travelProvider landscape.TravelTimeProvider
	if cfg.Directions.APIKey != "" {
		client, err := travel.NewClient(travel.Config{
			BaseURL:       cfg.Directions.BaseURL,
			APIKey:        cfg.Directions.APIKey,
			Timeout:       cfg.DirectionsTimeout(),
			MaxConcurrent: cfg.Directions.MaxConcurrent,
		}, clock, logger.Named("travel"))
		if err != nil {
			logger.Fatal("directions client init failed", zap.Error(err))
		}
		travelProvider = client
	} else {
		logger.Warn("no routing credential configured; proximity jobs need an inline matrix")
	}

	workerCfg := worker.Config{
		ContentType: cfg.Storage.ContentType,
		BlobPrefix:  cfg.Storage.Prefix,
		Topic:       cfg.Publisher.Topic,
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Workers.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			blobStore,
			publisher,
			hasher,
			clock,
			placeScraper,
			productScraper,
			travelProvider,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, travelProvider, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Workers.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
}

func buildJobStore(ctx context.Context, cfg config.Config) (landscape.JobStore, func(), error) {
	switch cfg.DB.Backend {
	case "postgres":
		store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return memorystorage.NewJobStore(), func() {}, nil
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (landscape.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			UseSSL:    cfg.Storage.S3.UseSSL,
			Bucket:    cfg.Storage.S3.Bucket,
			Region:    cfg.Storage.S3.Region,
		})
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (landscape.Publisher, func(), error) {
	switch cfg.Publisher.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Publisher.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		return pubsubpublisher.New(client), func() { _ = client.Close() }, nil
	case "kafka":
		pub, err := kafkapublisher.New(kafkapublisher.Config{Brokers: cfg.Publisher.Kafka.Brokers})
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { _ = pub.Close() }, nil
	default:
		return memorypublisher.New(), func() {}, nil
	}
}
