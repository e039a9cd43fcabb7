package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/config"
	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/handlers"
	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/logging"
	"github.com/xelth-com/eckscan/internal/utils"
	"github.com/xelth-com/eckscan/internal/websocket"
)

func main() {
	var (
		port        = pflag.String("port", "", "listen port (overrides PORT)")
		envFile     = pflag.String("env-file", ".env", "dotenv file to load")
		dbDriver    = pflag.String("db-driver", "", "sqlite or postgres (overrides DB_DRIVER)")
		dedupWindow = pflag.Duration("dedup-window", 0, "debounce window (overrides DEDUP_WINDOW_MS)")
		mintToken   = pflag.String("mint-admin-token", "", "print an admin token for this subject and exit")
		hashPass    = pflag.String("hash-password", "", "print a bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	)
	pflag.Parse()

	if *hashPass != "" {
		hash, err := utils.HashPassword(*hashPass)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// 1. Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *dedupWindow > 0 {
		cfg.Scanner.DedupWindow = *dedupWindow
	}

	if *mintToken != "" {
		token, err := utils.GenerateAdminToken(cfg.Admin.JWTSecret, *mintToken, 24*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 2. Persistence: durable backend or the in-memory fallback, chosen once
	store := database.Open(cfg.Database, log)
	log.Info("Persistence backend selected", zap.String("backend", store.Backend()))

	// 3. Pipeline and hub reference each other
	dedup := utils.NewDeduplicator(cfg.Scanner.DedupWindow, cfg.Scanner.DedupCapacity)
	pipeline := ingest.NewPipeline(store, dedup, nil, log, ingest.Options{
		StoreTimeout: cfg.Scanner.StoreTimeout,
		Decoder:      ingest.NewQRDecoder(),
	})
	hub := websocket.NewHub(pipeline, log)
	pipeline.SetBroadcaster(hub)

	// 4. Set up HTTP router
	router := handlers.NewRouter(cfg, pipeline, hub, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Optional Pub/Sub source
	var psClient *pubsub.Client
	if cfg.PubSub.Enabled() {
		psClient, err = startSubscriber(ctx, cfg.PubSub, pipeline, log)
		if err != nil {
			log.Error("Pub/Sub source disabled", zap.Error(err))
		}
	}

	// 6. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.NodeEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}
	hub.Shutdown()
	if psClient != nil {
		psClient.Close()
	}

	// Close database (this also stops embedded PostgreSQL)
	if err := store.Close(); err != nil {
		log.Warn("Database close error", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

func startSubscriber(ctx context.Context, cfg config.PubSubConfig, pipeline *ingest.Pipeline, log *zap.Logger) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	var dlq ingest.DLQPublisher = &ingest.NoopDLQPublisher{}
	if cfg.DLQTopicID != "" {
		dlq = ingest.NewPubSubDLQPublisher(client.Topic(cfg.DLQTopicID))
	}

	sub := client.Subscription(cfg.SubscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding

	subscriber := ingest.NewSubscriber(pipeline, dlq, log)
	go func() {
		if err := subscriber.Run(ctx, sub); err != nil {
			log.Error("Subscription receive ended", zap.Error(err))
		}
	}()
	return client, nil
}
