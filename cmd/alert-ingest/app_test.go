package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/pipeline"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct{}

func (l *fakeLedger) HasNotified(ctx context.Context, signature, channel string) (bool, error) {
	return false, nil
}
func (l *fakeLedger) MarkSeen(ctx context.Context, signature string, at time.Time) error {
	return nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []models.NotificationJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, job models.NotificationJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return job.ID, nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

// oneShotConsumer отдаёт одно сообщение и ждёт отмены контекста,
// как настоящий consumer без новых offset-ов.
type oneShotConsumer struct {
	value []byte
}

func (c *oneShotConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	if err := handler(nil, c.value); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func delayedUpdateJSON(t *testing.T) []byte {
	t.Helper()
	msg := messages.ShipmentUpdateReceived{
		OrderID:       "ORD-1001",
		CustomerPhone: "+15550001122",
		CustomerEmail: "buyer@example.com",
		Tracking: messages.RawTrackingPayload{
			TrackingNumber:            "TRK123",
			Carrier:                   "cdek",
			Status:                    "in_transit",
			EstimatedDelivery:         "2026-09-05",
			OriginalEstimatedDelivery: "2026-09-01",
		},
		ReceivedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestRunAlertIngest_ConsumesAndEnqueues(t *testing.T) {
	queue := &fakeQueue{}
	rep := metrics.NewReporter()
	svc := pipeline.New(&fakeLedger{}, queue, []string{models.ChannelSMS, models.ChannelEmail}, rep)

	consumer := &oneShotConsumer{value: delayedUpdateJSON(t)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	runErr := make(chan error, 1)
	go func() {
		runErr <- runAlertIngest(ctx, ingestOpts{
			httpAddr:      "127.0.0.1:0",
			topic:         "shipment.updates",
			consumerGroup: "alert-ingest",
			onListen:      func(addr string) { addrCh <- addr },
		}, svc, consumer, rep)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for HTTP listener")
	}

	// сообщение отдаётся синхронно до блокировки consumer-а, но даём запас
	require.Eventually(t, func() bool { return queue.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "jobs_enqueued")

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Equal(t, int64(2), snap.JobsEnqueued)

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting ingest to stop")
	}
}

func TestRunAlertIngest_MalformedMessageCommitted(t *testing.T) {
	queue := &fakeQueue{}
	rep := metrics.NewReporter()
	svc := pipeline.New(&fakeLedger{}, queue, []string{models.ChannelSMS}, rep)

	consumer := &oneShotConsumer{value: []byte(`{not json`)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- runAlertIngest(ctx, ingestOpts{httpAddr: "127.0.0.1:0"}, svc, consumer, rep)
	}()

	// handler вернул nil — consumer не падает, висит в ожидании следующих сообщений
	require.Eventually(t, func() bool { return rep.Snapshot().InputErrors == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, queue.count())

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting ingest to stop")
	}
}
