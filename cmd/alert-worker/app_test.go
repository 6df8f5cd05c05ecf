package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ShipAlert/config"
	"github.com/BearBump/ShipAlert/internal/integrations/notify"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/fake"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/mailhttp"
	"github.com/BearBump/ShipAlert/internal/integrations/notify/smshttp"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/dispatcher"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	deadJobs  []*models.NotificationJob
	firstSeen *time.Time
}

func (s *fakeStorage) Claim(ctx context.Context, channel string, lease time.Duration) (*models.NotificationJob, error) {
	return nil, nil
}
func (s *fakeStorage) Ack(ctx context.Context, jobID string) error { return nil }
func (s *fakeStorage) Nack(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error) {
	return nil, nil
}
func (s *fakeStorage) MarkDead(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error) {
	return nil, nil
}
func (s *fakeStorage) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (s *fakeStorage) QueueDepthByChannel(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}
func (s *fakeStorage) RecordNotified(ctx context.Context, signature, channel string, at time.Time) error {
	return nil
}
func (s *fakeStorage) ListDeadJobs(ctx context.Context, limit, offset int) ([]*models.NotificationJob, error) {
	return s.deadJobs, nil
}
func (s *fakeStorage) FirstSeen(ctx context.Context, signature string) (*time.Time, error) {
	return s.firstSeen, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestDefaultWorkerFactories_SelectSenders(t *testing.T) {
	f := defaultWorkerFactories()

	cfgHTTP := &config.Config{
		ShipAlert: config.ShipAlertConfig{
			SmsProviderMode:      "http",
			SmsProviderBaseURL:   "http://localhost:9100",
			SmsProviderAPIKey:    "k",
			EmailProviderMode:    "http",
			EmailProviderBaseURL: "http://localhost:9200",
			EmailProviderAPIKey:  "k",
		},
	}
	_, ok := f.newSMSSender(cfgHTTP).(*smshttp.Client)
	require.True(t, ok)
	_, ok = f.newEmailSender(cfgHTTP).(*mailhttp.Client)
	require.True(t, ok)

	// Без base_url режим http не активируется, падаем обратно на fake.
	cfgNoURL := &config.Config{
		ShipAlert: config.ShipAlertConfig{SmsProviderMode: "http", EmailProviderMode: "http"},
	}
	_, ok = f.newSMSSender(cfgNoURL).(*fake.FakeClient)
	require.True(t, ok)
	_, ok = f.newEmailSender(cfgNoURL).(*fake.FakeClient)
	require.True(t, ok)

	cfgDefault := &config.Config{}
	_, ok = f.newSMSSender(cfgDefault).(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func testFactories(calledClose *bool) workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			return &fakeStorage{}, func() { *calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) dispatcher.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) dispatcher.RateLimiter {
			return nil
		},
		newSMSSender:   func(cfg *config.Config) notify.SMSSender { return fake.New() },
		newEmailSender: func(cfg *config.Config) notify.EmailSender { return fake.New() },
	}
}

func TestRunAlertWorker_UnknownChannel(t *testing.T) {
	calledClose := false
	cfg := &config.Config{
		ShipAlert: config.ShipAlertConfig{Channels: []string{"PIGEON"}},
	}

	err := RunAlertWorker(context.Background(), cfg, alertWorkerOpts{}, testFactories(&calledClose))
	require.Error(t, err)
	require.Contains(t, err.Error(), "PIGEON")
	require.True(t, calledClose)
}

func TestRunAlertWorker_ContextCanceled(t *testing.T) {
	calledClose := false
	cfg := &config.Config{
		ShipAlert: config.ShipAlertConfig{Channels: []string{models.ChannelSMS}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// swaggerPath пустой: HTTP-сервер и диспетчер наперегонки вернут ошибку,
	// но в любом случае RunAlertWorker обязан завершиться и закрыть хранилище.
	err := RunAlertWorker(ctx, cfg, alertWorkerOpts{httpAddr: ":0"}, testFactories(&calledClose))
	require.Error(t, err)
	require.True(t, calledClose)
}

func TestRunWorkerHTTPServer_Endpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	lastErr := "provider down"
	seenAt := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	st := &fakeStorage{firstSeen: &seenAt, deadJobs: []*models.NotificationJob{{
		ID:             "job-1",
		Channel:        models.ChannelSMS,
		DelaySignature: "deadbeef",
		State:          models.JobStateDead,
		Attempt:        3,
		LastError:      &lastErr,
	}}}

	d := dispatcher.NewSMS(st, st, fake.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
			dispatchers: []*dispatcher.Dispatcher{d},
			storage:     st,
			cfg:         &config.Config{ShipAlert: config.ShipAlertConfig{NotifyMaxAttempts: 3}},
		})
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for HTTP listener")
	}

	get := func(path string) string {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, 200, resp.StatusCode, path)
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	require.Contains(t, get("/healthz"), `"ok"`)
	require.Contains(t, get("/stats"), `"SMS"`)
	require.Contains(t, get("/dead-jobs"), "deadbeef")
	require.Contains(t, get("/signatures/deadbeef"), "firstSeenAt")
	require.Contains(t, get("/config"), `"maxAttempts":3`)
	require.Contains(t, get("/swagger.json"), `"swagger"`)

	resp, err := http.Post("http://"+addr+"/trigger", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	select {
	case <-srvErr:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}
