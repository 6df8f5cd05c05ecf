package messages

import "time"

// ShipmentUpdateReceived — сообщение из webhook-слоя (вне ядра): сырой payload
// перевозчика плюс идентификаторы заказа и контакты клиента.
type ShipmentUpdateReceived struct {
	OrderID string `json:"order_id"`

	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	Tracking RawTrackingPayload `json:"tracking"`

	ReceivedAt time.Time `json:"received_at"`
}

// RawTrackingPayload — то, что прислал перевозчик, до нормализации.
type RawTrackingPayload struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	Status         string `json:"status"`

	// Даты в формате RFC3339 либо YYYY-MM-DD; пустая строка = нет данных.
	EstimatedDelivery         string `json:"estimated_delivery,omitempty"`
	OriginalEstimatedDelivery string `json:"original_estimated_delivery,omitempty"`

	Events []RawTrackingEvent `json:"events,omitempty"`
}

type RawTrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// NotificationDead — терминальный job для operator-топика.
type NotificationDead struct {
	JobID          string    `json:"job_id"`
	Channel        string    `json:"channel"`
	DelaySignature string    `json:"delay_signature"`
	OrderID        string    `json:"order_id"`
	Attempt        int32     `json:"attempt"`
	LastError      string    `json:"last_error,omitempty"`
	DeadAt         time.Time `json:"dead_at"`
}
