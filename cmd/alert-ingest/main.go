package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ShipAlert/config"
	"github.com/BearBump/ShipAlert/internal/broker/kafka"
	"github.com/BearBump/ShipAlert/internal/cache/rediscache"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/pipeline"
	"github.com/BearBump/ShipAlert/internal/storage/pgnotify"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipAlert.IngestHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8081"
	}
	topic := cfg.Kafka.ShipmentUpdatesTopicName
	if topic == "" {
		topic = "shipment.updates"
	}
	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "alert-ingest"
	}
	channels := cfg.ShipAlert.Channels
	if len(channels) == 0 {
		channels = []string{models.ChannelSMS, models.ChannelEmail}
	}
	cacheTTL := time.Duration(cfg.ShipAlert.SuppressionCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgnotify.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()
	st = st.WithRetryPolicy(
		int32(cfg.ShipAlert.NotifyMaxAttempts),
		time.Duration(cfg.ShipAlert.NotifyBackoffBaseMs)*time.Millisecond,
		time.Duration(cfg.ShipAlert.NotifyBackoffCapMs)*time.Millisecond,
	)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	rep := metrics.NewReporter()
	svc := pipeline.New(st, st, channels, rep).WithSuppressionCache(rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runAlertIngest(ctx, ingestOpts{
		httpAddr:      httpAddr,
		topic:         topic,
		consumerGroup: consumerGroup,
	}, svc, consumer, rep); err != nil && err != context.Canceled {
		panic(err)
	}
}
