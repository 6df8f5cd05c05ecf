package normalize

import (
	"strings"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/models"
	"github.com/pkg/errors"
)

// Маппинг сырых статусов перевозчиков в канонические.
// Неизвестное значение -> UNKNOWN (не ошибка: движок разберётся по датам).
var statusAliases = map[string]string{
	"in_transit":       models.TrackingStatusInTransit,
	"in transit":       models.TrackingStatusInTransit,
	"transit":          models.TrackingStatusInTransit,
	"out_for_delivery": models.TrackingStatusInTransit,
	"delivered":        models.TrackingStatusDelivered,
	"delayed":          models.TrackingStatusDelayed,
	"late":             models.TrackingStatusDelayed,
	"exception":        models.TrackingStatusException,
	"failure":          models.TrackingStatusException,
	"alert":            models.TrackingStatusException,
	"pending":          models.TrackingStatusPending,
	"pre_transit":      models.TrackingStatusPending,
	"info_received":    models.TrackingStatusPending,
	"unknown":          models.TrackingStatusUnknown,
}

// Snapshot превращает сырой payload перевозчика в канонический TrackingSnapshot.
func Snapshot(raw messages.RawTrackingPayload) (models.TrackingSnapshot, error) {
	if raw.TrackingNumber == "" {
		return models.TrackingSnapshot{}, errors.New("tracking_number is required")
	}

	s := models.TrackingSnapshot{
		TrackingNumber: strings.TrimSpace(raw.TrackingNumber),
		CarrierCode:    strings.ToLower(strings.TrimSpace(raw.Carrier)),
		Status:         Status(raw.Status),
	}

	var err error
	if s.EstimatedDeliveryDate, err = parseDate(raw.EstimatedDelivery); err != nil {
		return models.TrackingSnapshot{}, errors.Wrap(err, "estimated_delivery")
	}
	if s.OriginalEstimatedDeliveryDate, err = parseDate(raw.OriginalEstimatedDelivery); err != nil {
		return models.TrackingSnapshot{}, errors.Wrap(err, "original_estimated_delivery")
	}

	for _, e := range raw.Events {
		s.Events = append(s.Events, models.SnapshotEvent{
			Timestamp:   e.Timestamp.UTC(),
			Description: e.Description,
		})
	}

	return s, nil
}

// Status нормализует сырой статус перевозчика.
func Status(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.ReplaceAll(k, "-", "_")
	if st, ok := statusAliases[k]; ok {
		return st
	}
	return models.TrackingStatusUnknown
}

// parseDate принимает RFC3339 либо дату YYYY-MM-DD. Пустая строка — нет данных.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		u := t.UTC()
		return &u, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, errors.Wrapf(err, "bad date %q", s)
	}
	u := t.UTC()
	return &u, nil
}
