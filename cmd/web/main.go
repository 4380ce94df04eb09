package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"snapcast/internal/admin"
	"snapcast/internal/bunny"
	"snapcast/internal/captions"
	"snapcast/internal/config"
	"snapcast/internal/database"
	"snapcast/internal/ratelimit"
	"snapcast/internal/storage"
	"snapcast/internal/transcript"
	"snapcast/internal/upload"
	"snapcast/internal/video"
	"snapcast/internal/web"
)

// printUsage prints the usage information for the application
func printUsage() {
	fmt.Println("Usage: ./web [OPTIONS]")
	fmt.Println()
	fmt.Println("Configuration is read from the environment (and an optional .env file).")
	fmt.Println("Required: BUNNY_STREAM_BASE_URL, BUNNY_STORAGE_BASE_URL, BUNNY_LIBRARY_ID,")
	fmt.Println("          BUNNY_STREAM_ACCESS_KEY, BUNNY_STORAGE_ACCESS_KEY")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

func main() {
	port := flag.Int("port", 8080, "Port number for the web server")
	host := flag.String("host", "localhost", "Host address for the web server")
	adminPort := flag.Int("admin-port", 8081, "Port number for the admin gRPC health server")
	flag.Usage = printUsage
	flag.Parse()

	if *port <= 0 || *adminPort <= 0 {
		fmt.Println("Error: Invalid port number")
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fmt.Sprintf("%s:%d", *host, *port), fmt.Sprintf("%s:%d", *host, *adminPort)); err != nil {
		slog.Error("web server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, listenAddr, adminAddr string) error {
	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// loaded lazily; only the dynamodb, s3 and sqs backends need it
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
			}
			awsCfg = &c
		}
		return *awsCfg, nil
	}

	var limitStore ratelimit.Store
	switch cfg.RateLimitBackend {
	case "sql":
		sqlStore := ratelimit.NewSQLStore(db)
		go sqlStore.RunPruner(ctx, 5*time.Minute)
		limitStore = sqlStore
	case "dynamodb":
		c, err := loadAWS()
		if err != nil {
			return err
		}
		limitStore, err = ratelimit.NewDynamoDBStore(dynamodb.NewFromConfig(c), cfg.RateLimitTable)
		if err != nil {
			return err
		}
	case "memory":
		limitStore = ratelimit.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported rate limit backend: %s", cfg.RateLimitBackend)
	}

	// no client timeout: large binary transfers are bounded by the request context
	client := bunny.NewClient(cfg.Bunny.StreamBaseURL, cfg.Bunny.LibraryID, cfg.Bunny.StreamAccessKey, &http.Client{})

	var thumbnails storage.Allocator
	switch cfg.ThumbnailBackend {
	case "bunny":
		thumbnails = storage.NewZoneAllocator(cfg.Bunny.StorageBaseURL, cfg.Bunny.CDNURL, cfg.Bunny.StorageAccessKey)
	case "s3":
		c, err := loadAWS()
		if err != nil {
			return err
		}
		thumbnails, err = storage.NewS3Allocator(s3.NewFromConfig(c), cfg.S3ThumbnailBucket, cfg.AWSRegion, "")
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported thumbnail backend: %s", cfg.ThumbnailBackend)
	}

	pool := captions.NewPool(captions.NewJob(client, nil), cfg.CaptionWorkers, cfg.CaptionQueueSize, cfg.CaptionJobTimeout)
	var dispatcher upload.Dispatcher = pool
	var sqsDispatcher *captions.SQSDispatcher
	if cfg.SQSQueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return err
		}
		sqsDispatcher = captions.NewSQSDispatcher(sqs.NewFromConfig(c), cfg.SQSQueueURL, pool)
		dispatcher = sqsDispatcher
		slog.Info("caption jobs enqueued to SQS", "queue_url", cfg.SQSQueueURL)
	}

	videos := video.NewSQLStore(db)
	orchestrator := upload.New(upload.Config{
		Assets:       client,
		Thumbnails:   thumbnails,
		Gate:         ratelimit.NewGate(limitStore),
		Window:       ratelimit.Window{Duration: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		Videos:       videos,
		Captions:     dispatcher,
		CollectionID: cfg.Bunny.CollectionID,
		LibraryID:    cfg.Bunny.LibraryID,
		EmbedURL:     cfg.Bunny.EmbedURL,
	})

	fetchClient := &http.Client{Timeout: cfg.TranscriptTierTimeout}
	resolver := transcript.NewResolver(client, cfg.TranscriptTierTimeout,
		&transcript.APIStrategy{Client: client},
		&transcript.CDNStrategy{Template: cfg.Bunny.CaptionCDNTemplate, HTTPClient: fetchClient},
		&transcript.EmbedStrategy{BaseURL: cfg.Bunny.EmbedURL, LibraryID: cfg.Bunny.LibraryID, HTTPClient: fetchClient},
	)

	server := web.NewServer(web.Options{
		Uploads:     orchestrator,
		Sessions:    upload.NewSessions(time.Hour),
		Videos:      videos,
		Transcripts: resolver,
		Auth:        web.HeaderAuthenticator{Header: cfg.ActorHeader},
		CORSOrigins: cfg.CORSOrigins,
	})

	adminLis, err := net.Listen("tcp", adminAddr)
	if err != nil {
		return fmt.Errorf("failed to start admin listener: %w", err)
	}
	health := admin.NewServer(map[string]admin.Check{
		"database": db.PingContext,
	})
	go func() {
		if err := health.Serve(ctx, adminLis, 30*time.Second); err != nil {
			slog.Error("admin gRPC server stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting web server", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	// pending sends may still fall back to the pool, so drain them first
	if sqsDispatcher != nil {
		if err := sqsDispatcher.Close(shutdownCtx); err != nil {
			slog.Warn("caption sends still in flight at shutdown", "error", err)
		}
	}
	if err := pool.Close(shutdownCtx); err != nil {
		slog.Warn("caption jobs still running at shutdown", "error", err)
	}
	return nil
}
