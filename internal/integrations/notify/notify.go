package notify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Закрытые варианты payload-а по каналам. Диспетчер собирает нужный вариант
// исчерпывающим switch-ом по каналу, клиенты типизированы конкретно —
// никаких map[string]any и рефлексии.

type SmsPayload struct {
	To   string
	Text string
}

type EmailPayload struct {
	To      string
	Subject string
	Body    string
}

type SMSSender interface {
	SendSMS(ctx context.Context, p SmsPayload) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, p EmailPayload) error
}

// SendError — явный контракт ретраябельности вместо угадывания по типу
// исключения: провайдерский клиент сам классифицирует свой отказ.
type SendError struct {
	Provider  string
	Reason    string
	Retryable bool
}

func (e *SendError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("%s: %s send error: %s", e.Provider, kind, e.Reason)
}

func Transient(provider, format string, args ...any) error {
	return &SendError{Provider: provider, Reason: fmt.Sprintf(format, args...), Retryable: true}
}

func Permanent(provider, format string, args ...any) error {
	return &SendError{Provider: provider, Reason: fmt.Sprintf(format, args...), Retryable: false}
}

// IsRetryable: неклассифицированные ошибки (сеть, таймауты) считаем
// транзиентными — исход отправки неизвестен, молча выбрасывать нельзя.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}
