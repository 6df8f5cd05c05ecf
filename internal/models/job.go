package models

import "time"

// Каналы уведомлений.
const (
	ChannelSMS   = "SMS"
	ChannelEmail = "EMAIL"
)

// Состояния job-а. Переходами владеет только очередь (pgnotify),
// диспетчеры просят переходы через Claim/Ack/Nack/MarkDead.
const (
	JobStatePending         = "PENDING"
	JobStateInFlight        = "IN_FLIGHT"
	JobStateSucceeded       = "SUCCEEDED"
	JobStateFailedRetryable = "FAILED_RETRYABLE"
	JobStateDead            = "DEAD"
)

// CustomerContact — контакт получателя для конкретного канала.
type CustomerContact struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
}

// NotificationPayload — закрытый набор данных для рендера шаблона.
// Никаких map[string]any: диспетчер обрабатывает каналы исчерпывающе.
type NotificationPayload struct {
	OrderID        string          `json:"order_id"`
	TrackingNumber string          `json:"tracking_number"`
	CarrierCode    string          `json:"carrier_code"`
	Contact        CustomerContact `json:"contact"`
	DelayDays      int             `json:"delay_days"`
	DelayReason    string          `json:"delay_reason"`
	NewEstimate    *time.Time      `json:"new_estimate,omitempty"`
}

type NotificationJob struct {
	ID             string
	Channel        string
	DelaySignature string
	Payload        NotificationPayload
	Attempt        int32
	State          string
	NextAttemptAt  time.Time
	LeaseExpiresAt *time.Time
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LedgerEntry — запись idempotency-леджера: когда сигнатура впервые замечена
// и по каким каналам уже уведомили.
type LedgerEntry struct {
	DelaySignature string
	Channel        string
	NotifiedAt     time.Time
}
