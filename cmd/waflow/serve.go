package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waflow/internal/auth"
	"waflow/internal/billing"
	"waflow/internal/bot"
	"waflow/internal/campaign"
	"waflow/internal/db"
	"waflow/internal/events"
	httpx "waflow/internal/http"
	"waflow/internal/jobs"
	"waflow/internal/lock"
	"waflow/internal/media"
	"waflow/internal/metrics"
	"waflow/internal/session"
	"waflow/internal/whatsapp"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the delivery worker and the WhatsApp sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, gdb, err := open()
	if err != nil {
		return err
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	m := metrics.New()

	var pub events.Publisher = events.Noop{}
	if cfg.RabbitURL != "" {
		amqp, err := events.DialAMQP(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer amqp.Close()
		pub = amqp
	}

	var bill billing.Billing = billing.Static{Default: billing.Active}
	if cfg.BillingURL != "" {
		c, err := billing.NewClient(cfg.BillingURL, cfg.BillingToken, cfg.BillingCacheTTL)
		if err != nil {
			return err
		}
		bill = c
	} else {
		log.Warn().Msg("BILLING_URL not set; every owner is treated as subscribed")
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb)
	}

	var fetcher media.Fetcher
	if cfg.S3Bucket != "" {
		s3, err := media.NewS3(media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return err
		}
		fetcher = s3
	}

	registry := session.NewRegistry()
	jobRepo := &jobs.Repo{DB: gdb}
	rules := &bot.Store{DB: gdb}

	campaigns := campaign.NewService(campaign.Config{
		DB:           gdb,
		Sessions:     registry,
		Events:       pub,
		Metrics:      m,
		Location:     loc,
		NumberColumn: cfg.CSVNumberColumn,
	})
	engine := bot.NewEngine(bot.EngineConfig{
		Store:    rules,
		Jobs:     jobRepo,
		Billing:  bill,
		Events:   pub,
		Metrics:  m,
		Location: loc,
	})
	worker := jobs.NewWorker(jobs.WorkerConfig{
		Repo:           jobRepo,
		Sessions:       registry,
		Billing:        bill,
		Events:         pub,
		Metrics:        m,
		Locker:         locker,
		Interval:       cfg.WorkerInterval,
		Batch:          cfg.WorkerBatch,
		TrialTrailer:   cfg.TrialTrailer,
		ContactTrailer: cfg.ContactTrailer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wa, err := whatsapp.NewManager(ctx, cfg.WhatsAppStoreDSN, registry, fetcher, func(ctx context.Context, owner string, in bot.Inbound) {
		if _, err := engine.HandleInbound(ctx, owner, in); err != nil {
			log.Error().Err(err).Str("owner", owner).Msg("inbound handling failed")
		}
	})
	if err != nil {
		return err
	}
	if err := wa.Start(ctx); err != nil {
		return err
	}
	defer wa.Close()

	go worker.Run(ctx)

	r := httpx.NewRouter(cfg, httpx.Deps{
		JWT:       auth.NewJWT(cfg.JWTSecret),
		Campaigns: campaigns,
		Rules:     rules,
		Metrics:   m,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	worker.Wait()
	engine.Wait()
	campaigns.Wait()
	log.Info().Msg("stopped")
	return nil
}
