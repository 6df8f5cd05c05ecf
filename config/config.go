package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ShipAlert ShipAlertConfig `yaml:"shipalert"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentUpdatesTopicName string `yaml:"shipment_updates_topic_name"`
	DeadLetterTopicName      string `yaml:"dead_letter_topic_name"`
	ConsumerGroup            string `yaml:"consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ShipAlertConfig struct {
	IngestHTTPAddr string `yaml:"ingest_http_addr"`
	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Каналы, по которым слать уведомления: "SMS", "EMAIL".
	Channels []string `yaml:"channels"`

	// Очередь и ретраи.
	NotifyPollIntervalMs  int `yaml:"notify_poll_interval_ms"`
	NotifyLeaseDurationMs int `yaml:"notify_lease_duration_ms"`
	NotifyMaxAttempts     int `yaml:"notify_max_attempts"`
	NotifyBackoffBaseMs   int `yaml:"notify_backoff_base_ms"`
	NotifyBackoffCapMs    int `yaml:"notify_backoff_cap_ms"`

	WorkerBatchSize   int `yaml:"worker_batch_size"`
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// Rate limit исходящих отправок на канал, в минуту (0 = выключен).
	SendRateLimitPerMinute int `yaml:"send_rate_limit_per_minute"`

	// TTL кэша подавления дублей в Redis.
	SuppressionCacheTTLSeconds int `yaml:"suppression_cache_ttl_seconds"`

	// Провайдеры каналов. Mode: "http" | "fake".
	SmsProviderMode    string `yaml:"sms_provider_mode"`
	SmsProviderBaseURL string `yaml:"sms_provider_base_url"`
	SmsProviderAPIKey  string `yaml:"sms_provider_api_key"`
	SmsProviderFrom    string `yaml:"sms_provider_from"`

	EmailProviderMode    string `yaml:"email_provider_mode"`
	EmailProviderBaseURL string `yaml:"email_provider_base_url"`
	EmailProviderAPIKey  string `yaml:"email_provider_api_key"`
	EmailProviderFrom    string `yaml:"email_provider_from"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
