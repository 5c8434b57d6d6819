// Package main wires together the submission service binary.
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

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/spunwebtech/wayback-submitter/internal/api"
	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/clock/system"
	"github.com/spunwebtech/wayback-submitter/internal/config"
	"github.com/spunwebtech/wayback-submitter/internal/content"
	"github.com/spunwebtech/wayback-submitter/internal/id/uuid"
	"github.com/spunwebtech/wayback-submitter/internal/logging"
	"github.com/spunwebtech/wayback-submitter/internal/notify"
	notifymemory "github.com/spunwebtech/wayback-submitter/internal/notify/memory"
	notifypubsub "github.com/spunwebtech/wayback-submitter/internal/notify/pubsub"
	"github.com/spunwebtech/wayback-submitter/internal/policy"
	"github.com/spunwebtech/wayback-submitter/internal/scheduler"
	"github.com/spunwebtech/wayback-submitter/internal/store"
	storememory "github.com/spunwebtech/wayback-submitter/internal/store/memory"
	storepostgres "github.com/spunwebtech/wayback-submitter/internal/store/postgres"
	"github.com/spunwebtech/wayback-submitter/internal/submitter"
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

	var submissionStore store.SubmissionStore
	if cfg.DB.DSN != "" {
		pgStore, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("connect submission store", zap.Error(err))
		}
		submissionStore = pgStore
		logger.Info("using postgres submission store", zap.String("table", cfg.DB.Table))
	} else {
		submissionStore = storememory.New()
		logger.Info("using in-memory submission store")
	}
	defer submissionStore.Close()

	var publisher notify.Publisher
	if cfg.PubSub.Enabled {
		psClient, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("create pubsub client", zap.Error(err))
		}
		defer psClient.Close()
		publisher = notifypubsub.New(psClient.Publisher(cfg.PubSub.TopicName))
		logger.Info("publishing events to pubsub", zap.String("topic", cfg.PubSub.TopicName))
	} else {
		publisher = notifymemory.New()
	}

	clock := system.New()
	idGen := uuid.New()
	registry := content.NewRegistry()
	client := archive.NewClient(archive.ClientConfig{
		SaveEndpoint:         cfg.Archive.SaveEndpoint,
		ProbeEndpoint:        cfg.Archive.ProbeEndpoint,
		AvailabilityEndpoint: cfg.Archive.AvailabilityEndpoint,
		UserAgent:            cfg.Archive.UserAgent,
		SubmitTimeout:        time.Duration(cfg.Archive.SubmitTimeoutSec) * time.Second,
		TestTimeout:          time.Duration(cfg.Archive.TestTimeoutSec) * time.Second,
		AvailabilityTimeout:  time.Duration(cfg.Archive.AvailTimeoutSec) * time.Second,
	}, clock)

	sub := submitter.New(submitter.Deps{
		Store:     submissionStore,
		Client:    client,
		Policy:    policy.New(nil),
		Source:    registry,
		Publisher: publisher,
		Clock:     clock,
		Config:    cfg,
		Logger:    logger.Named("submitter"),
	})

	sched := scheduler.New(logger.Named("scheduler"))
	sched.Every(ctx, "queue_sweep",
		time.Duration(cfg.Scheduler.QueueSweepMinutes)*time.Minute,
		func(ctx context.Context) {
			if _, err := sub.ProcessQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("queue sweep failed", zap.Error(err))
			}
		})
	sched.Every(ctx, "retry_sweep",
		time.Duration(cfg.Scheduler.RetrySweepHours)*time.Hour,
		func(ctx context.Context) {
			if _, err := sub.RetrySweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("retry sweep failed", zap.Error(err))
			}
		})

	apiServer := api.NewServer(submissionStore, sub, registry, client, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

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
	sched.Wait()
	logger.Info("shutdown complete")
}
