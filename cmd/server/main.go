package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"handpose-backend/internal/api"
	"handpose-backend/internal/blob"
	"handpose-backend/internal/config"
	"handpose-backend/internal/ingest"
	"handpose-backend/internal/queue"
	"handpose-backend/internal/retention"
	"handpose-backend/internal/store"
	"handpose-backend/internal/temp"
)

func main() {
	ctx := context.Background()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	db, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}

	tempStore, err := temp.NewStore(cfg.TempDir)
	if err != nil {
		log.Error("failed to initialize staging store", "err", err)
		os.Exit(1)
	}

	blobStore, err := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsPath)
	if err != nil {
		log.Error("failed to initialize blob store", "err", err)
		os.Exit(1)
	}
	defer blobStore.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Error("failed to load aws config", "err", err)
		os.Exit(1)
	}
	jobQueue := queue.NewSQSQueue(
		sqs.NewFromConfig(awsCfg),
		redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		map[queue.JobType]string{
			queue.JobTypeAnalysis: cfg.AnalysisQueueURL,
			queue.JobTypeVideo:    cfg.VideoQueueURL,
			queue.JobTypeReport:   cfg.ReportQueueURL,
		},
	)

	ingestSvc := ingest.NewService(cfg, db, tempStore, blobStore, jobQueue, log)
	retentionSvc := retention.NewService(db, blobStore, jobQueue, cfg.RetentionWindow(), log)
	handler := api.NewHandler(cfg, ingestSvc, retentionSvc, tempStore)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go retention.NewSweeper(retentionSvc, cfg.CleanupInterval).Run(sweepCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  5 * time.Minute, // video uploads are large
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		log.Info("ingestion service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down ingestion service")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "err", err)
	}
}
