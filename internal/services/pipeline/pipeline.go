package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/cache"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/BearBump/ShipAlert/internal/services/delaycheck"
	"github.com/BearBump/ShipAlert/internal/services/normalize"
	"github.com/BearBump/ShipAlert/internal/storage/pgnotify"
	"github.com/pkg/errors"
)

type Ledger interface {
	HasNotified(ctx context.Context, signature, channel string) (bool, error)
	MarkSeen(ctx context.Context, signature string, at time.Time) error
}

type Queue interface {
	Enqueue(ctx context.Context, job models.NotificationJob) (string, error)
}

// Service — produce-сторона ядра: нормализация, вердикт, дедупликация,
// fan-out job-ов по включённым каналам.
type Service struct {
	ledger Ledger
	queue  Queue
	rep    *metrics.Reporter

	channels []string

	// Best-effort кэш "уже уведомляли" перед походом в леджер.
	cache    cache.BytesCache
	cacheTTL time.Duration
}

func New(ledger Ledger, queue Queue, channels []string, rep *metrics.Reporter) *Service {
	if rep == nil {
		rep = metrics.NewReporter()
	}
	return &Service{ledger: ledger, queue: queue, channels: channels, rep: rep}
}

func (s *Service) WithSuppressionCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

// Handle обрабатывает одно сообщение webhook-слоя.
//
// Ошибки данных (битый payload, нет дат) не ретраются: без новых данных
// повтор не поможет — логируем и отвечаем nil, consumer коммитит offset.
// Ошибки хранилища возвращаем наверх: offset не коммитится, сообщение
// придёт снова. Состояние "уведомили" мы никогда не выдумываем.
func (s *Service) Handle(ctx context.Context, msg messages.ShipmentUpdateReceived) error {
	if msg.OrderID == "" {
		s.rep.InputError()
		slog.Warn("shipment update without order_id, dropped")
		return nil
	}

	snap, err := normalize.Snapshot(msg.Tracking)
	if err != nil {
		s.rep.InputError()
		slog.Warn("unparseable tracking payload, dropped",
			"order_id", msg.OrderID, "error", err.Error())
		return nil
	}

	verdict := delaycheck.Evaluate(snap)
	if verdict.Error != nil {
		s.rep.InputError()
		slog.Warn("delay verdict not computable, dropped",
			"order_id", msg.OrderID, "tracking_number", snap.TrackingNumber, "error", *verdict.Error)
		return nil
	}
	if !verdict.IsDelayed {
		return nil
	}

	sig := delaycheck.Signature(msg.OrderID, snap.TrackingNumber, verdict.Reason, verdict.DelayDays)

	seenAt := msg.ReceivedAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	if err := s.ledger.MarkSeen(ctx, sig, seenAt); err != nil {
		return errors.Wrap(err, "mark signature seen")
	}

	for _, channel := range s.channels {
		if err := s.enqueueChannel(ctx, channel, sig, msg, snap, verdict); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) enqueueChannel(
	ctx context.Context,
	channel, sig string,
	msg messages.ShipmentUpdateReceived,
	snap models.TrackingSnapshot,
	verdict models.DelayVerdict,
) error {
	contact := models.CustomerContact{PhoneNumber: msg.CustomerPhone, Email: msg.CustomerEmail}
	switch channel {
	case models.ChannelSMS:
		if contact.PhoneNumber == "" {
			return nil
		}
	case models.ChannelEmail:
		if contact.Email == "" {
			return nil
		}
	}

	key := suppressionKey(sig, channel)
	if s.cache != nil && s.cacheTTL > 0 {
		if _, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			s.rep.DuplicateSuppressed()
			return nil
		}
	}

	notified, err := s.ledger.HasNotified(ctx, sig, channel)
	if err != nil {
		return errors.Wrap(err, "ledger lookup")
	}
	if notified {
		s.rep.DuplicateSuppressed()
		if s.cache != nil && s.cacheTTL > 0 {
			_ = s.cache.Set(ctx, key, []byte("1"), s.cacheTTL)
		}
		return nil
	}

	_, err = s.queue.Enqueue(ctx, models.NotificationJob{
		Channel:        channel,
		DelaySignature: sig,
		Payload: models.NotificationPayload{
			OrderID:        msg.OrderID,
			TrackingNumber: snap.TrackingNumber,
			CarrierCode:    snap.CarrierCode,
			Contact:        contact,
			DelayDays:      verdict.DelayDays,
			DelayReason:    verdict.Reason,
			NewEstimate:    snap.EstimatedDeliveryDate,
		},
	})
	if errors.Is(err, pgnotify.ErrDuplicateJob) {
		// Конкурентный продьюсер успел раньше — это успех, не ошибка.
		s.rep.DuplicateSuppressed()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "enqueue notification job")
	}

	s.rep.JobEnqueued()
	slog.Info("notification job enqueued",
		"order_id", msg.OrderID, "channel", channel,
		"delay_signature", sig, "delay_days", verdict.DelayDays, "delay_reason", verdict.Reason)
	return nil
}

func suppressionKey(sig, channel string) string {
	return fmt.Sprintf("notified:%s:%s", sig, channel)
}
