package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/restrict-content-pro/membership-scheduler/internal/api"
	"github.com/restrict-content-pro/membership-scheduler/internal/app"
	"github.com/restrict-content-pro/membership-scheduler/internal/config"
	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/restrict-content-pro/membership-scheduler/internal/hooks"
	"github.com/restrict-content-pro/membership-scheduler/internal/lock"
	"github.com/restrict-content-pro/membership-scheduler/internal/mail"
	"github.com/restrict-content-pro/membership-scheduler/internal/store"
	"github.com/restrict-content-pro/membership-scheduler/pkg/rabbitmq"
)

type dependencies struct {
	pool       *pgxpool.Pool
	repository *store.Repository
	jobs       *app.Jobs
	hooks      *hooks.Registry
	closers    []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func bootstrap(ctx context.Context, logger *slog.Logger, cfg config.Config) (*dependencies, error) {
	deps := &dependencies{hooks: hooks.NewRegistry()}
	if err := registerBuiltinHooks(deps.hooks, cfg); err != nil {
		return nil, err
	}

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	deps.pool = pool
	deps.closers = append(deps.closers, pool.Close)
	logger.Info("database connection established")

	deps.repository = store.NewRepository(pool)

	sender, err := newMailSender(ctx, logger, cfg)
	if err != nil {
		deps.close()
		return nil, err
	}
	notifier := mail.NewNotifier(sender, cfg.SiteName, cfg.Location(),
		mail.Template{Subject: cfg.RenewNoticeSubject, Body: cfg.RenewNoticeBody},
		mail.Template{Subject: cfg.ExpiredSubject, Body: cfg.ExpiredBody})

	var publisher app.EventPublisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("RABBITMQ_URL not set; lifecycle events will not be published")
	} else {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		deps.closers = append(deps.closers, producer.Close)
		publisher = producer
		logger.Info("RabbitMQ producer connected")
	}

	var locker app.JobLocker
	if client := newRedisClient(ctx, logger, cfg); client != nil {
		deps.closers = append(deps.closers, func() { client.Close() })
		locker = lock.NewRedisLocker(client, cfg.RedisLockPrefix, cfg.JobLockTTL(), logger)
	}

	deps.jobs = app.NewJobs(deps.repository, notifier, publisher, locker, deps.hooks, logger, cfg)
	return deps, nil
}

func registerBuiltinHooks(registry *hooks.Registry, cfg config.Config) error {
	if cfg.ExpirationSweepLimit > 0 {
		registry.AddExpiredMembersQueryFilter(hooks.DefaultPriority, hooks.LimitExpiredMembers(cfg.ExpirationSweepLimit))
	}
	excluded, err := cfg.ExcludedLevelIDs()
	if err != nil {
		return err
	}
	if len(excluded) > 0 {
		registry.AddExpiredMembersFilter(hooks.DefaultPriority, hooks.ExcludeLevels(excluded))
	}
	return nil
}

func newMailSender(ctx context.Context, logger *slog.Logger, cfg config.Config) (mail.Sender, error) {
	switch cfg.MailDriver {
	case config.MailDriverSES:
		sender, err := mail.NewSESSender(ctx, mail.SESOptions{
			Region:          cfg.SESRegion,
			Endpoint:        cfg.SESEndpoint,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
			From:            cfg.MailFrom,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	case config.MailDriverSMTP:
		return mail.NewSMTPSender(mail.SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}), nil
	default:
		logger.Warn("mail driver is log; member emails will not be delivered")
		return mail.NewLogSender(logger), nil
	}
}

func newRedisClient(ctx context.Context, logger *slog.Logger, cfg config.Config) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Info("REDIS_URL not set; job overlap guard disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; job overlap guard disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; job overlap guard disabled", "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis connected")
	return client
}

func serve(parent context.Context, logger *slog.Logger, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	scheduler := app.NewScheduler(deps.jobs, logger, cfg)
	if err := scheduler.Start(); err != nil {
		logger.Error("some jobs could not be scheduled", "error", err)
	}
	logger.Info("scheduler started")

	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Error("failed to connect renewal consumer", "error", err)
		} else {
			defer consumer.Close()
			handler := app.NewRenewalHandler(deps.repository, logger)
			go func() {
				err := consumer.Consume(ctx, cfg.EventsExchange, cfg.RenewalQueue, domain.RoutingKeyMembershipRenewed, handler.HandleMembershipRenewed)
				if err != nil {
					logger.Error("renewal consumer stopped", "error", err)
				}
			}()
			logger.Info("renewal consumer started", "queue", cfg.RenewalQueue)
		}
	}

	handler := api.NewHandler(deps.jobs, deps.repository, deps.repository, logger)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(handler, cfg.InternalAPIKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping scheduler")
	case err := <-serverErr:
		if err != nil {
			logger.Error("ops server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for running jobs to finish
	logger.Info("scheduler stopped gracefully")
	return nil
}
