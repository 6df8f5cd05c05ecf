package fake

import (
	"context"
	"hash/fnv"

	"github.com/BearBump/ShipAlert/internal/integrations/notify"
)

// FakeClient — заглушка провайдера для локального запуска без SMS/email
// шлюзов. Детерминированно по адресату: часть отправок "падает" транзиентно,
// чтобы было видно ретраи.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) SendSMS(ctx context.Context, p notify.SmsPayload) error {
	return outcome("fake-sms", p.To)
}

func (f *FakeClient) SendEmail(ctx context.Context, p notify.EmailPayload) error {
	return outcome("fake-email", p.To)
}

func outcome(provider, to string) error {
	if to == "" {
		return notify.Permanent(provider, "empty recipient")
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(to))
	v := h.Sum32()

	// ~10% адресатов фейлим транзиентно.
	if v%10 == 0 {
		return notify.Transient(provider, "simulated provider hiccup")
	}
	return nil
}
