// Package app wires configuration into the running services shared by the
// server and worker binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign-backend/internal/config"
	"github.com/unclebandit/mailcampaign-backend/internal/db"
	"github.com/unclebandit/mailcampaign-backend/internal/lock"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/model"
	"github.com/unclebandit/mailcampaign-backend/internal/provider"
	"github.com/unclebandit/mailcampaign-backend/internal/queue"
	"github.com/unclebandit/mailcampaign-backend/internal/repository"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB
	Redis  *redis.Client
	Queue  queue.Queue

	// Distributed is false when the queue is in-process, so resend jobs
	// must be consumed by the same process that publishes them.
	Distributed bool

	Campaigns   *repository.CampaignRepository
	SMTPConfigs *repository.SMTPConfigRepository
	Accounts    *repository.AccountRepository
	Datasets    *repository.DatasetRepository

	Selector       *provider.Selector
	Service        *service.CampaignService
	DatasetService *service.DatasetService
}

// New connects the stores and builds the campaign service. Redis and
// RabbitMQ are optional; without them the lock falls back to Postgres
// advisory locks and the queue to the in-memory one.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Logger: log}

	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.DB = conn

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	if cfg.RabbitMQ.URL != "" {
		q, err := queue.DialAMQP(cfg.RabbitMQ.URL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
		a.Distributed = true
	} else {
		log.Warn("RABBITMQ_URL not set, using in-memory queue")
		a.Queue = queue.NewInMemoryQueue(log)
	}

	a.Campaigns = &repository.CampaignRepository{DB: conn}
	a.SMTPConfigs = &repository.SMTPConfigRepository{DB: conn}
	a.Accounts = &repository.AccountRepository{DB: conn}
	a.Datasets = &repository.DatasetRepository{DB: conn}

	var transactional provider.Provider
	if cfg.Transactional.APIKey != "" {
		transactional = provider.NewTransactionalProvider(provider.TransactionalConfig{
			APIKey:      cfg.Transactional.APIKey,
			SenderEmail: cfg.Transactional.SenderEmail,
			SenderName:  cfg.Transactional.SenderName,
			Timeout:     cfg.Transactional.Timeout(),
		})
	} else {
		log.Warn("RESEND_API_KEY not set, transactional provider disabled")
	}

	a.Selector = &provider.Selector{
		Preferences:   a.Accounts,
		SMTPConfigs:   a.SMTPConfigs,
		Transactional: transactional,
		SMTP: provider.SMTPOptions{
			SenderName: cfg.SMTP.SenderName,
			HeloName:   cfg.SMTP.HeloName,
			Timeout:    cfg.SMTP.Timeout(),
		},
		Logger: log,
	}

	a.Service = &service.CampaignService{
		CampaignRepo: a.Campaigns,
		DatasetRepo:  a.Datasets,
		Dispatcher: &service.Dispatcher{
			CampaignRepo: a.Campaigns,
			Providers:    a.Selector,
			Logger:       log,
		},
		Locker:   lock.New(a.Redis, conn, cfg.Redis.LockTTL()),
		Notifier: &queue.QueueNotifier{Queue: a.Queue, Topic: cfg.RabbitMQ.UpdatesQueue, Log: log},
		Jobs:     &queue.Jobs{Queue: a.Queue, Topic: cfg.RabbitMQ.ResendQueue},
		Logger:   log,
	}
	a.DatasetService = &service.DatasetService{Datasets: a.Datasets, Logger: log}
	return a, nil
}

// StartResendWorker consumes resend jobs through a channel of capacity one
// and a single worker, so one campaign resend runs at a time per process.
func (a *App) StartResendWorker(ctx context.Context) error {
	jobs := make(chan model.ResendJob, 1)
	if err := a.Queue.Subscribe(a.Config.RabbitMQ.ResendQueue, queue.ResendJobHandler(jobs)); err != nil {
		return fmt.Errorf("subscribe to resend jobs: %w", err)
	}
	go service.NewWorker(a.Service, jobs, a.Logger).Start(ctx)
	return nil
}

func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			logger.OrNop(a.Logger).Warn("close queue", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
