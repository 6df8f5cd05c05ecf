package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/integrations/notify"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/pkg/errors"
)

type Queue interface {
	Claim(ctx context.Context, channel string, lease time.Duration) (*models.NotificationJob, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error)
	MarkDead(ctx context.Context, jobID string, sendErr string) (*models.NotificationJob, error)
	ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	QueueDepthByChannel(ctx context.Context) (map[string]int64, error)
}

type Ledger interface {
	RecordNotified(ctx context.Context, signature, channel string, at time.Time) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Dispatcher — воркер одного канала: claim -> render -> send -> ack/nack.
// Экземпляров может быть сколько угодно, вся координация — в атомарных
// операциях очереди; локального разделяемого состояния job-ов нет.
type Dispatcher struct {
	channel string
	queue   Queue
	ledger  Ledger
	rep     *metrics.Reporter

	sms   notify.SMSSender
	email notify.EmailSender

	rl                 RateLimiter
	rateLimitPerMinute int64

	producer  Producer
	deadTopic string

	pollInterval time.Duration
	lease        time.Duration
	batchSize    int
	concurrency  int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	totalClaimed        atomic.Int64
	totalSucceeded      atomic.Int64
	totalRetried        atomic.Int64
	totalDead           atomic.Int64
	totalReclaimed      atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewSMS(queue Queue, ledger Ledger, sender notify.SMSSender, rep *metrics.Reporter) *Dispatcher {
	d := newDispatcher(models.ChannelSMS, queue, ledger, rep)
	d.sms = sender
	return d
}

func NewEmail(queue Queue, ledger Ledger, sender notify.EmailSender, rep *metrics.Reporter) *Dispatcher {
	d := newDispatcher(models.ChannelEmail, queue, ledger, rep)
	d.email = sender
	return d
}

func newDispatcher(channel string, queue Queue, ledger Ledger, rep *metrics.Reporter) *Dispatcher {
	if rep == nil {
		rep = metrics.NewReporter()
	}
	return &Dispatcher{
		channel:           channel,
		queue:             queue,
		ledger:            ledger,
		rep:               rep,
		pollInterval:      2 * time.Second,
		lease:             60 * time.Second,
		batchSize:         50,
		concurrency:       5,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (d *Dispatcher) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Dispatcher {
	if pollInterval > 0 {
		d.pollInterval = pollInterval
	}
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	if concurrency > 0 {
		d.concurrency = concurrency
	}
	if lease > 0 {
		d.lease = lease
	}
	return d
}

func (d *Dispatcher) WithRateLimiter(rl RateLimiter, perMinute int64) *Dispatcher {
	d.rl = rl
	if perMinute > 0 {
		d.rateLimitPerMinute = perMinute
	}
	return d
}

func (d *Dispatcher) WithDeadLetterProducer(p Producer, topic string) *Dispatcher {
	d.producer = p
	d.deadTopic = topic
	return d
}

func (d *Dispatcher) Channel() string { return d.channel }

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (d *Dispatcher) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	Channel        string     `json:"channel"`
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalSucceeded int64      `json:"totalSucceeded"`
	TotalRetried   int64      `json:"totalRetried"`
	TotalDead      int64      `json:"totalDead"`
	TotalReclaimed int64      `json:"totalReclaimed"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (d *Dispatcher) Stats() Stats {
	st := Stats{
		Channel:        d.channel,
		StartedAt:      time.Unix(0, d.startedAtUnixNano).UTC(),
		TotalClaimed:   d.totalClaimed.Load(),
		TotalSucceeded: d.totalSucceeded.Load(),
		TotalRetried:   d.totalRetried.Load(),
		TotalDead:      d.totalDead.Load(),
		TotalReclaimed: d.totalReclaimed.Load(),
		InFlight:       d.inFlight.Load(),
	}
	if n := d.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	d.lastErrorMu.Lock()
	st.LastError = d.lastError
	d.lastErrorMu.Unlock()
	return st
}

// Run крутит poll-цикл до отмены ctx. Отмена прекращает claim новых job-ов;
// уже начатые отправки дорабатывают (см. processOne), упавшие посреди
// отправки воркеры подбираются через истечение lease.
func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			d.runOnce(ctx)
		case <-d.triggerCh:
			d.runOnce(ctx)
		}
	}
}

func (d *Dispatcher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	d.lastCycleUnixNano.Store(now.UnixNano())

	if n, err := d.queue.ReclaimExpiredLeases(ctx, now); err != nil {
		d.noteError(err)
		slog.Error("reclaim expired leases", "channel", d.channel, "error", err.Error())
	} else if n > 0 {
		d.totalReclaimed.Add(n)
		slog.Warn("reclaimed expired leases", "channel", d.channel, "count", n)
	}

	if depth, err := d.queue.QueueDepthByChannel(ctx); err == nil {
		d.rep.SetQueueDepth(depth)
	}

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < d.batchSize; i++ {
		job, err := d.queue.Claim(ctx, d.channel, d.lease)
		if err != nil {
			d.noteError(err)
			slog.Error("claim notification job", "channel", d.channel, "error", err.Error())
			break
		}
		if job == nil {
			break
		}
		d.totalClaimed.Add(1)

		sem <- struct{}{}
		wg.Add(1)
		d.inFlight.Add(1)
		go func(job *models.NotificationJob) {
			defer func() {
				d.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := d.processOne(ctx, job); err != nil {
				d.noteError(err)
				slog.Error("process notification job",
					"channel", d.channel, "job_id", job.ID, "error", err.Error())
			}
		}(job)
	}
	wg.Wait()
}

func (d *Dispatcher) processOne(ctx context.Context, job *models.NotificationJob) error {
	// Начатую отправку не обрываем отменой ctx: её исход неизвестен и его
	// нельзя молча выбросить. Таймаут держит HTTP-клиент провайдера.
	sendCtx := context.WithoutCancel(ctx)

	if d.rl != nil && d.rateLimitPerMinute > 0 {
		now := time.Now().UTC()
		minuteKey := fmt.Sprintf("rl:notify:%s:%s", d.channel, now.Format("200601021504"))
		allowed, n, err := d.rl.Allow(sendCtx, minuteKey, d.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Warn("provider rate limit exceeded", "channel", d.channel, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	started := time.Now()
	sendErr := d.send(sendCtx, job.Payload)
	d.rep.ObserveSendLatency(time.Since(started))

	if sendErr == nil {
		// Порядок важен: сперва леджер, потом ack. Если леджер упал после
		// успешной отправки, всё равно ack-аем: повторная запись в леджер
		// идемпотентна, а не-ack-нутый job повторил бы отправку клиенту.
		if err := d.ledger.RecordNotified(sendCtx, job.DelaySignature, d.channel, time.Now().UTC()); err != nil {
			slog.Error("record notified after successful send; duplicate-send window stays open until a future ledger write",
				"channel", d.channel, "job_id", job.ID, "delay_signature", job.DelaySignature, "error", err.Error())
		}
		if err := d.queue.Ack(sendCtx, job.ID); err != nil {
			return errors.Wrap(err, "ack job")
		}
		d.totalSucceeded.Add(1)
		d.rep.JobSucceeded()
		slog.Info("notification sent",
			"channel", d.channel, "job_id", job.ID,
			"order_id", job.Payload.OrderID, "attempt", job.Attempt)
		return nil
	}

	if !notify.IsRetryable(sendErr) {
		dead, err := d.queue.MarkDead(sendCtx, job.ID, sendErr.Error())
		if err != nil {
			return errors.Wrap(err, "mark job dead")
		}
		d.reportDead(sendCtx, dead)
		return nil
	}

	updated, err := d.queue.Nack(sendCtx, job.ID, sendErr.Error())
	if err != nil {
		return errors.Wrap(err, "nack job")
	}
	if updated.State == models.JobStateDead {
		d.reportDead(sendCtx, updated)
		return nil
	}
	d.totalRetried.Add(1)
	d.rep.JobRetried()
	slog.Warn("notification send failed, will retry",
		"channel", d.channel, "job_id", job.ID,
		"attempt", job.Attempt, "next_attempt_at", updated.NextAttemptAt, "error", sendErr.Error())
	return nil
}

// send собирает канальный payload исчерпывающим switch-ом по каналу.
func (d *Dispatcher) send(ctx context.Context, p models.NotificationPayload) error {
	switch d.channel {
	case models.ChannelSMS:
		if d.sms == nil {
			return notify.Permanent("dispatcher", "no sms sender configured")
		}
		return d.sms.SendSMS(ctx, renderSMS(p))
	case models.ChannelEmail:
		if d.email == nil {
			return notify.Permanent("dispatcher", "no email sender configured")
		}
		return d.email.SendEmail(ctx, renderEmail(p))
	default:
		return notify.Permanent("dispatcher", "unknown channel %q", d.channel)
	}
}

func (d *Dispatcher) reportDead(ctx context.Context, job *models.NotificationJob) {
	d.totalDead.Add(1)
	d.rep.JobDead()

	lastErr := ""
	if job.LastError != nil {
		lastErr = *job.LastError
	}
	slog.Error("notification job dead",
		"channel", d.channel, "job_id", job.ID,
		"order_id", job.Payload.OrderID, "attempt", job.Attempt, "error", lastErr)

	if d.producer == nil || d.deadTopic == "" {
		return
	}
	msg := messages.NotificationDead{
		JobID:          job.ID,
		Channel:        job.Channel,
		DelaySignature: job.DelaySignature,
		OrderID:        job.Payload.OrderID,
		Attempt:        job.Attempt,
		LastError:      lastErr,
		DeadAt:         time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal dead-letter message", "job_id", job.ID, "error", err.Error())
		return
	}
	// Operator-топик best-effort: job уже DEAD в Postgres и никуда не денется.
	if err := d.producer.Publish(ctx, d.deadTopic, []byte(job.ID), b); err != nil {
		slog.Error("publish dead-letter message", "job_id", job.ID, "error", err.Error())
	}
}

func (d *Dispatcher) noteError(err error) {
	d.lastErrorMu.Lock()
	d.lastError = err.Error()
	d.lastErrorMu.Unlock()
}
