package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  shipment_updates_topic_name: "shipment.updates"
  dead_letter_topic_name: "notifications.dead"
  consumer_group: "shipalert-ingest"
redis:
  host: "localhost"
  port: 6379
shipalert:
  worker_http_addr: ":8082"
  channels: ["SMS", "EMAIL"]
  notify_poll_interval_ms: 1000
  notify_lease_duration_ms: 60000
  notify_max_attempts: 3
  notify_backoff_base_ms: 30000
  notify_backoff_cap_ms: 1800000
  sms_provider_mode: "fake"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "shipment.updates", cfg.Kafka.ShipmentUpdatesTopicName)
	require.Equal(t, "notifications.dead", cfg.Kafka.DeadLetterTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, []string{"SMS", "EMAIL"}, cfg.ShipAlert.Channels)
	require.Equal(t, 3, cfg.ShipAlert.NotifyMaxAttempts)
	require.Equal(t, ":8082", cfg.ShipAlert.WorkerHTTPAddr)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
