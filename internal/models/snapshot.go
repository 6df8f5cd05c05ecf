package models

import "time"

// Нормализованные статусы трекинга (можно расширять).
const (
	TrackingStatusInTransit = "IN_TRANSIT"
	TrackingStatusDelivered = "DELIVERED"
	TrackingStatusDelayed   = "DELAYED"
	TrackingStatusException = "EXCEPTION"
	TrackingStatusPending   = "PENDING"
	TrackingStatusUnknown   = "UNKNOWN"
)

// TrackingSnapshot — каноническое состояние отправления на момент одного
// webhook-а. Immutable: нормализатор создаёт, дальше только читаем.
type TrackingSnapshot struct {
	TrackingNumber string
	CarrierCode    string
	Status         string

	EstimatedDeliveryDate         *time.Time
	OriginalEstimatedDeliveryDate *time.Time

	// Events are informational only; the delay decision never reads them.
	Events []SnapshotEvent
}

type SnapshotEvent struct {
	Timestamp   time.Time
	Description string
}

// Причины задержки в вердикте.
const (
	DelayReasonNone            = "NONE"
	DelayReasonDateSlip        = "DATE_SLIP"
	DelayReasonDelayedStatus   = "DELAYED_STATUS"
	DelayReasonExceptionStatus = "EXCEPTION_STATUS"
	DelayReasonMissingData     = "MISSING_DATA"
)

// DelayVerdict — результат движка. Не персистится, потребляется сразу.
// Инварианты: IsDelayed => Reason != NONE; Error != nil => !IsDelayed && DelayDays == 0.
type DelayVerdict struct {
	IsDelayed bool
	DelayDays int
	Reason    string
	Error     *string
}
