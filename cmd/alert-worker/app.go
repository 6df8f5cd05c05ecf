package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ShipAlert/config"
	"github.com/BearBump/ShipAlert/internal/broker/kafka"
	"github.com/BearBump/ShipAlert/internal/cache/rediscache"
	"github.com/BearBump/ShipAlert/internal/integrations/notify"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/fake"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/mailhttp"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/smshttp"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/dispatcher"
	"github.com/BearBump/ShipAlert/internal/storage/pgnotify"
)

// workerStorage — всё, что воркеру нужно от postgres: очередь и леджер
// для диспетчеров плюс выборка DEAD job-ов для админки.
type workerStorage interface {
	dispatcher.Queue
	dispatcher.Ledger
	ListDeadJobs(ctx context.Context, limit, offset int) ([]*models.NotificationJob, error)
	FirstSeen(ctx context.Context, signature string) (*time.Time, error)
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newProducer    func(cfg *config.Config) dispatcher.Producer
	newRateLimiter func(cfg *config.Config) dispatcher.RateLimiter
	newSMSSender   func(cfg *config.Config) notify.SMSSender
	newEmailSender func(cfg *config.Config) notify.EmailSender
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgnotify.New(connString)
			if err != nil {
				return nil, nil, err
			}
			st = st.WithRetryPolicy(
				int32(cfg.ShipAlert.NotifyMaxAttempts),
				time.Duration(cfg.ShipAlert.NotifyBackoffBaseMs)*time.Millisecond,
				time.Duration(cfg.ShipAlert.NotifyBackoffCapMs)*time.Millisecond,
			)
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) dispatcher.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) dispatcher.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newSMSSender: func(cfg *config.Config) notify.SMSSender {
			// Реальный HTTP-провайдер только при mode=http и заданном base_url,
			// иначе — локальный fake (демо и тесты).
			if cfg.ShipAlert.SmsProviderMode == "http" && cfg.ShipAlert.SmsProviderBaseURL != "" {
				return smshttp.New(cfg.ShipAlert.SmsProviderBaseURL, cfg.ShipAlert.SmsProviderAPIKey, cfg.ShipAlert.SmsProviderFrom)
			}
			return fake.New()
		},
		newEmailSender: func(cfg *config.Config) notify.EmailSender {
			if cfg.ShipAlert.EmailProviderMode == "http" && cfg.ShipAlert.EmailProviderBaseURL != "" {
				return mailhttp.New(cfg.ShipAlert.EmailProviderBaseURL, cfg.ShipAlert.EmailProviderAPIKey, cfg.ShipAlert.EmailProviderFrom)
			}
			return fake.New()
		},
	}
}

type alertWorkerOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)
}

func RunAlertWorker(ctx context.Context, cfg *config.Config, opts alertWorkerOpts, f workerFactories) error {
	deadTopic := cfg.Kafka.DeadLetterTopicName
	if deadTopic == "" {
		deadTopic = "notifications.dead"
	}

	channels := cfg.ShipAlert.Channels
	if len(channels) == 0 {
		channels = []string{models.ChannelSMS, models.ChannelEmail}
	}

	pollInterval := time.Duration(cfg.ShipAlert.NotifyPollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	lease := time.Duration(cfg.ShipAlert.NotifyLeaseDurationMs) * time.Millisecond
	if lease <= 0 {
		lease = 60 * time.Second
	}
	batchSize := cfg.ShipAlert.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := cfg.ShipAlert.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	rlPerMin := int64(cfg.ShipAlert.SendRateLimitPerMinute)

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	rep := metrics.NewReporter()

	var dispatchers []*dispatcher.Dispatcher
	for _, ch := range channels {
		var d *dispatcher.Dispatcher
		switch ch {
		case models.ChannelSMS:
			d = dispatcher.NewSMS(st, st, f.newSMSSender(cfg), rep)
		case models.ChannelEmail:
			d = dispatcher.NewEmail(st, st, f.newEmailSender(cfg), rep)
		default:
			return fmt.Errorf("unknown notification channel in config: %q", ch)
		}
		d = d.WithSettings(pollInterval, batchSize, concurrency, lease).
			WithDeadLetterProducer(producer, deadTopic)
		if rlPerMin > 0 && rl != nil {
			d = d.WithRateLimiter(rl, rlPerMin)
		}
		dispatchers = append(dispatchers, d)
	}

	dispatchErr := make(chan error, len(dispatchers))
	for _, d := range dispatchers {
		go func(d *dispatcher.Dispatcher) {
			slog.Info("dispatcher started", "channel", d.Channel(), "pollInterval", pollInterval.String())
			dispatchErr <- d.Run(ctx)
		}(d)
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    opts.httpAddr,
			swaggerPath: opts.swaggerPath,
			onListen:    opts.onListen,
			dispatchers: dispatchers,
			storage:     st,
			rep:         rep,
			cfg:         cfg,
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-dispatchErr:
		return err
	case err := <-httpErr:
		return err
	}
}
